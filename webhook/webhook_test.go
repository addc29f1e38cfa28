package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/neardup/config"
)

func testDeliverer(retries int) *Deliverer {
	d := New(config.WebhookConfig{MaxRetries: retries, Timeout: 2 * time.Second})
	d.initial = time.Millisecond
	d.maxInterval = 5 * time.Millisecond
	return d
}

func TestDeliver_Signed(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := &Event{Type: "dedupe.completed", JobID: "j1", Timestamp: 1, Data: map[string]int{"pairs": 2}}
	require.NoError(t, testDeliverer(0).Deliver(context.Background(), srv.URL, "s3cret", ev))

	assert.True(t, Verify("s3cret", gotBody, gotSig))
	assert.False(t, Verify("other", gotBody, gotSig))

	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "j1", decoded.JobID)
}

func TestDeliver_DefaultSecret(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
	}))
	defer srv.Close()

	d := New(config.WebhookConfig{Secret: "fallback", Timeout: time.Second})
	require.NoError(t, d.Deliver(context.Background(), srv.URL, "", &Event{Type: "t"}))
	assert.NotEmpty(t, gotSig)

	d = New(config.WebhookConfig{Timeout: time.Second})
	require.NoError(t, d.Deliver(context.Background(), srv.URL, "", &Event{Type: "t"}))
	assert.Empty(t, gotSig, "unsigned without any secret")
}

func TestDeliverWithRetry_RecoversFromServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := testDeliverer(5).DeliverWithRetry(context.Background(), srv.URL, "", &Event{Type: "t"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverWithRetry_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := testDeliverer(5).DeliverWithRetry(context.Background(), srv.URL, "", &Event{Type: "t"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliverWithRetry_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := testDeliverer(2).DeliverWithRetry(context.Background(), srv.URL, "", &Event{Type: "t"})
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
}
