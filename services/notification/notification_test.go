package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guarantee-controlplane/pkg/featureflags"
	"guarantee-controlplane/pkg/taskname"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task_1"}, nil
}

type fakeTrigger struct {
	events   []string
	payloads [][]byte
	err      error
}

func (f *fakeTrigger) Trigger(_ context.Context, event string, payload []byte) error {
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return f.err
}

func TestPublishEnqueuesTask(t *testing.T) {
	enq := &fakeEnqueuer{}
	pub := NewPublisher(enq)

	pub.Publish(context.Background(), taskname.GuaranteeConditionsMet, map[string]string{"instance_id": "g1"})

	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.GuaranteeConditionsMet, enq.tasks[0].Type())

	var body map[string]string
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &body))
	require.Equal(t, "g1", body["instance_id"])
}

func TestPublishSwallowsEnqueueError(t *testing.T) {
	pub := NewPublisher(&fakeEnqueuer{err: errors.New("redis down")})

	require.NotPanics(t, func() {
		pub.Publish(context.Background(), taskname.CampaignEnrollmentResolved, map[string]string{"id": "e1"})
	})
}

func TestPublishSwallowsEncodeError(t *testing.T) {
	enq := &fakeEnqueuer{}
	NewPublisher(enq).Publish(context.Background(), taskname.CampaignEnrollmentResolved, make(chan int))
	require.Empty(t, enq.tasks)
}

func TestHandleNotificationDelivers(t *testing.T) {
	trig := &fakeTrigger{}
	h := NewHandler(HandlerParams{N8N: trig, Flags: featureflags.Static{}, Enabled: true})

	err := h.HandleNotification(context.Background(), asynq.NewTask(taskname.CampaignEnrollmentResolved, []byte(`{"id":"e1"}`)))
	require.NoError(t, err)
	require.Equal(t, []string{taskname.CampaignEnrollmentResolved}, trig.events)
}

func TestHandleNotificationReturnsDeliveryError(t *testing.T) {
	trig := &fakeTrigger{err: errors.New("502")}
	h := NewHandler(HandlerParams{N8N: trig, Flags: featureflags.Static{}, Enabled: true})

	err := h.HandleNotification(context.Background(), asynq.NewTask(taskname.GuaranteeConditionsMet, []byte(`{}`)))
	require.Error(t, err)
}

func TestHandleNotificationFlagOff(t *testing.T) {
	trig := &fakeTrigger{}
	h := NewHandler(HandlerParams{N8N: trig, Flags: featureflags.Static{featureflags.N8NNotifications: false}, Enabled: true})

	err := h.HandleNotification(context.Background(), asynq.NewTask(taskname.GuaranteeConditionsMet, []byte(`{}`)))
	require.NoError(t, err)
	require.Empty(t, trig.events)
}

func TestHandleNotificationEmptyPayloadSkipsRetry(t *testing.T) {
	h := NewHandler(HandlerParams{N8N: &fakeTrigger{}, Flags: featureflags.Static{}, Enabled: true})

	err := h.HandleNotification(context.Background(), asynq.NewTask(taskname.GuaranteeConditionsMet, nil))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRegisterRoutesAllNotifications(t *testing.T) {
	trig := &fakeTrigger{}
	h := NewHandler(HandlerParams{N8N: trig, Flags: featureflags.Static{}, Enabled: true})
	mux := asynq.NewServeMux()
	Register(mux, h)

	for _, name := range taskname.Notifications {
		require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(name, []byte(`{}`))))
	}
	require.Equal(t, taskname.Notifications, trig.events)
}
