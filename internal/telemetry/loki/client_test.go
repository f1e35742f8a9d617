package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureServer(t *testing.T, status int, got *PushRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient("  ", "")
	assert.Error(t, err)
}

func TestPushJSON_LabelsAndTimestamp(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	c, err := NewClient(srv.URL+"/", "")
	require.NoError(t, err)

	raw := []byte(`{"id":"n1","kind":"security_alert","userId":"u1","event":"suspicious sessions!","createdAt":"2026-02-03T04:05:06Z"}`)
	require.NoError(t, c.PushJSON(context.Background(), raw))

	require.Len(t, got.Streams, 1)
	s := got.Streams[0]
	assert.Equal(t, map[string]string{
		"job":   "resume-auth",
		"kind":  "security_alert",
		"event": "suspicious_sessions_",
	}, s.Stream)
	require.Len(t, s.Values, 1)
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC).UnixNano()
	assert.Equal(t, []string{jsonInt(ts), string(raw)}, s.Values[0])
}

func TestPushJSON_UnparsableLinePushedRaw(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	c, err := NewClient(srv.URL, "worker")
	require.NoError(t, err)

	require.NoError(t, c.PushJSON(context.Background(), []byte("plain text")))
	require.Len(t, got.Streams, 1)
	assert.Equal(t, map[string]string{"job": "worker"}, got.Streams[0].Stream)
	assert.Equal(t, "plain text", got.Streams[0].Values[0][1])
}

func TestPush_Non2xx(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusBadRequest, &got)
	c, err := NewClient(srv.URL, "")
	require.NoError(t, err)
	err = c.Push(context.Background(), time.Now(), "line", nil)
	assert.ErrorContains(t, err, "400")
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
