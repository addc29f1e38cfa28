package handler

import (
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
	"github.com/use-agent/neardup/engine"
	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/store"
	"github.com/use-agent/neardup/webhook"
)

func TestJobs_CloseCancelsQueuedJobAndDeliversWebhook(t *testing.T) {
	var delivered atomic.Int32
	var eventType atomic.Value
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		var ev webhook.Event
		if err := json.Unmarshal(body, &ev); err == nil {
			eventType.Store(ev.Type)
		}
		delivered.Add(1)
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Jobs.Concurrency = 1
	st, err := store.Open(config.StoreConfig{InMemory: true}, cfg.Finder.Rotations)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.Put("docs", []store.Record{{ID: "a", Fingerprint: 1}, {ID: "b", Fingerprint: 3}})
	require.NoError(t, err)

	jobs := NewJobs(cfg.Jobs, cfg.Finder, st, engine.NewDispatcher(1), webhook.New(cfg.Webhook))

	// Hold the only slot so the job stays queued.
	jobs.sem <- struct{}{}

	d := 2
	job, err := jobs.Submit("docs", models.DedupeRequest{MaxDistance: &d, WebhookURL: hook.URL})
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		jobs.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on a queued job")
	}

	snap := job.Snapshot()
	assert.Equal(t, models.JobFailed, snap.Status)
	assert.Equal(t, int32(1), delivered.Load(), "webhook delivered before Close returns")
	assert.Equal(t, "dedupe.failed", eventType.Load())
}

func TestJobs_SubmitEmptyCollection(t *testing.T) {
	cfg := config.Default()
	st, err := store.Open(config.StoreConfig{InMemory: true}, cfg.Finder.Rotations)
	require.NoError(t, err)
	defer st.Close()

	jobs := NewJobs(cfg.Jobs, cfg.Finder, st, engine.NewDispatcher(1), nil)
	defer jobs.Close()

	d := 1
	_, err = jobs.Submit("nothing", models.DedupeRequest{MaxDistance: &d})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeNotFound, toAPIError(err).Code)
}
