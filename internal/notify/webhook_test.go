package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSinkDispatch(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.Header().Set("X-Reference-Id", "msg-42")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, 5*time.Second, logrus.New())
	result, err := sink.Dispatch(context.Background(), "oncall", Payload{
		AlertID:   "a1",
		AlertType: "cpu_high",
		Severity:  "critical",
		Message:   "CPU pegged",
		Level:     2,
		Action:    "notify_oncall",
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "msg-42", result.ReferenceID)

	assert.Equal(t, "oncall", received["channel"])
	payload, ok := received["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a1", payload["alert_id"])
}

func TestWebhookSinkNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, 5*time.Second, logrus.New())
	_, err := sink.Dispatch(context.Background(), "ops", Payload{AlertID: "a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookSinkUnreachable(t *testing.T) {
	sink := NewWebhookSink("http://127.0.0.1:1/hook", time.Second, logrus.New())
	_, err := sink.Dispatch(context.Background(), "ops", Payload{AlertID: "a1"})
	require.Error(t, err)
}

func TestLogSinkAlwaysSucceeds(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sink := NewLogSink(logger)
	result, err := sink.Dispatch(context.Background(), "ops", Payload{
		AlertID: "a1",
		Message: "batch backlogged",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.ReferenceID)
}
