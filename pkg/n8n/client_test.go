package n8n

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWebhookPath(t *testing.T) {
	require.Equal(t, "/webhook/campaign-enrollment-resolved", WebhookPath("campaign:enrollment.resolved"))
	require.Equal(t, "/webhook/guarantee-conditions-met", WebhookPath("guarantee:conditions_met"))
}

func TestTriggerPostsPayload(t *testing.T) {
	var gotPath, gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	err := c.Trigger(context.Background(), "guarantee:conditions_met", []byte(`{"instance_id":"g1"}`))
	require.NoError(t, err)
	require.Equal(t, "/webhook/guarantee-conditions-met", gotPath)
	require.Equal(t, `{"instance_id":"g1"}`, gotBody)
	require.Contains(t, gotType, "application/json")
}

func TestTriggerNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, time.Second).Trigger(context.Background(), "x", []byte(`{}`))
	require.ErrorContains(t, err, "502")
}

func TestTriggerWithoutBaseURL(t *testing.T) {
	err := New("", 0).Trigger(context.Background(), "x", []byte(`{}`))
	require.Error(t, err)
}
