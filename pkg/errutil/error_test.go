package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusBadRequest:         http.StatusBadRequest,
		StatusValidationFailed:   http.StatusBadRequest,
		StatusUnauthorized:       http.StatusUnauthorized,
		StatusForbidden:          http.StatusForbidden,
		StatusNotFound:           http.StatusNotFound,
		StatusConflict:           http.StatusConflict,
		StatusServiceUnavailable: http.StatusServiceUnavailable,
		StatusInternal:           http.StatusInternalServerError,
		StatusUnknown:            http.StatusInternalServerError,
	}

	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), string(code))
	}
}

func TestJSONHidesCause(t *testing.T) {
	err := Internal("Internal server error", errors.New("pq: connection refused"))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, map[string]any{"error": "Internal server error"}, be.JSON())
	require.Contains(t, be.Error(), "connection refused")
}

func TestJSONIncludesDetails(t *testing.T) {
	err := BadRequest("Invalid conditions", nil, WithDetails(Detail{Field: "conditions[0].id", Message: "required"}))

	be := err.(BaseError)
	body := be.JSON()
	require.Equal(t, "Invalid conditions", body["error"])
	require.Len(t, body["details"], 1)
}

func TestFromDB(t *testing.T) {
	require.Nil(t, FromDB(nil, "x"))

	err := FromDB(fmt.Errorf("load: %w", gorm.ErrRecordNotFound), "Campaign not found")
	require.True(t, IsStatus(err, StatusNotFound))
	require.Equal(t, "Campaign not found", err.(BaseError).Message)

	require.True(t, IsStatus(FromDB(gorm.ErrDuplicatedKey, ""), StatusConflict))
	require.True(t, IsStatus(FromDB(errors.New("boom"), ""), StatusInternal))

	original := Forbidden("Admin access required", nil)
	require.Equal(t, original, FromDB(original, ""))
}
