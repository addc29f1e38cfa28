package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/neardup/api/handler"
	"github.com/use-agent/neardup/cache"
	"github.com/use-agent/neardup/config"
	"github.com/use-agent/neardup/engine"
	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/simhash"
	"github.com/use-agent/neardup/store"
	"github.com/use-agent/neardup/webhook"
)

const testKey = "test-key"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.Auth.APIKeys = []string{testKey}
	cfg.RateLimit.Burst = 10_000
	cfg.RateLimit.RequestsPerSecond = 10_000
	cfg.Store.InMemory = true
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config, withStore bool) *gin.Engine {
	t.Helper()
	var st *store.Store
	if withStore {
		var err error
		st, err = store.Open(cfg.Store, cfg.Finder.Rotations)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
	}
	disp := engine.NewDispatcher(cfg.Finder.Concurrency)
	jobs := handler.NewJobs(cfg.Jobs, cfg.Finder, st, disp, webhook.New(cfg.Webhook))
	t.Cleanup(jobs.Close)
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	return NewRouter(cfg, st, disp, cc, jobs, time.Now())
}

func call(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth_NoAuth(t *testing.T) {
	r := newTestRouter(t, testConfig(), true)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[models.HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, handler.Version, resp.Version)
	require.NotNil(t, resp.Store)
	assert.Equal(t, 2, resp.Jobs.Capacity)
}

func TestProtectedRequiresKey(t *testing.T) {
	r := newTestRouter(t, testConfig(), false)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/hamming", bytes.NewBufferString(`{"a":1,"b":2}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFingerprint(t *testing.T) {
	r := newTestRouter(t, testConfig(), false)

	rec := call(t, r, http.MethodPost, "/api/v1/fingerprint", `{"hashes":[1,2,3,4]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.FingerprintResponse](t, rec)
	assert.Equal(t, models.Hash(3), resp.Fingerprint)
	assert.Equal(t, "0000000000000003", resp.Hex)
	assert.Equal(t, 4, resp.TokenCount)

	rec = call(t, r, http.MethodPost, "/api/v1/fingerprint", `{"hashes":[1,2,3,4],"legacy":true}`)
	resp = decode[models.FingerprintResponse](t, rec)
	assert.Equal(t, models.Hash(1<<63), resp.Fingerprint)
	assert.Equal(t, "legacy", resp.Layout)

	rec = call(t, r, http.MethodPost, "/api/v1/fingerprint", `{}`)
	resp = decode[models.FingerprintResponse](t, rec)
	assert.Equal(t, models.Hash(^uint64(0)), resp.Fingerprint, "empty input sets every bit")

	rec = call(t, r, http.MethodPost, "/api/v1/fingerprint", `{"tokens":["a"],"hasher":"md5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), models.ErrCodeInvalidInput)

	rec = call(t, r, http.MethodPost, "/api/v1/fingerprint", `{"hashes":[1.5]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFingerprint_TokensMatchHash(t *testing.T) {
	r := newTestRouter(t, testConfig(), false)

	rec := call(t, r, http.MethodPost, "/api/v1/hash", `{"texts":["a","foobar"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hashes := decode[models.HashResponse](t, rec)
	assert.Equal(t, "fnv1a", hashes.Hasher)
	assert.Equal(t, []models.Hash{0xaf63dc4c8601ec8c, 0x85944171f73967e8}, hashes.Hashes)

	rec = call(t, r, http.MethodPost, "/api/v1/fingerprint", `{"tokens":["a","foobar"]}`)
	fp := decode[models.FingerprintResponse](t, rec)
	want := simhash.Fingerprint(models.Uint64s(hashes.Hashes))
	assert.Equal(t, models.Hash(want), fp.Fingerprint)

	rec = call(t, r, http.MethodPost, "/api/v1/hash", `{"texts":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeightedFingerprint(t *testing.T) {
	r := newTestRouter(t, testConfig(), false)

	rec := call(t, r, http.MethodPost, "/api/v1/fingerprint/weighted", `{"tokens":[[1,1],[2,1],{"hash":3},{"hash":"4","weight":1}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.Hash(3), decode[models.FingerprintResponse](t, rec).Fingerprint)

	for _, body := range []string{
		`{"tokens":[[1]]}`,
		`{"tokens":[[5,null]]}`,
		`{"tokens":[{"hash":5,"weight":null}]}`,
		`{"tokens":[{"hash":5,"weight":"2"}]}`,
		`{"tokens":[[1,1],["x",1]]}`,
	} {
		rec = call(t, r, http.MethodPost, "/api/v1/fingerprint/weighted", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHamming(t *testing.T) {
	r := newTestRouter(t, testConfig(), false)

	rec := call(t, r, http.MethodPost, "/api/v1/hamming", `{"a":0,"b":"0xffffffffffffffff"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 64, decode[models.HammingResponse](t, rec).Distance)

	rec = call(t, r, http.MethodPost, "/api/v1/hamming", `{"a":-1,"b":18446744073709551615}`)
	assert.Equal(t, 0, decode[models.HammingResponse](t, rec).Distance)

	rec = call(t, r, http.MethodPost, "/api/v1/hamming", `{"a":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimilar(t *testing.T) {
	r := newTestRouter(t, testConfig(), false)

	rec := call(t, r, http.MethodPost, "/api/v1/similar", `{"fingerprints":[0,1,7],"max_distance":1,"rotate_bits":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.SimilarResponse](t, rec)
	assert.Equal(t, []simhash.Pair{{I: 0, J: 1}}, resp.Pairs)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Passes, 1)
	assert.Equal(t, "rotate-4", resp.Passes[0].Name)
	assert.Empty(t, resp.CacheStatus)

	rec = call(t, r, http.MethodPost, "/api/v1/similar", `{"fingerprints":[0,1,7],"max_distance":3,"exact":true}`)
	resp = decode[models.SimilarResponse](t, rec)
	assert.Equal(t, []simhash.Pair{{I: 0, J: 1}, {I: 0, J: 2}, {I: 1, J: 2}}, resp.Pairs)

	rec = call(t, r, http.MethodPost, "/api/v1/similar", `{"fingerprints":[5],"max_distance":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `[]`, string(mustRaw(t, rec, "pairs")))
}

func TestSimilar_Cache(t *testing.T) {
	r := newTestRouter(t, testConfig(), false)
	body := `{"fingerprints":[10,11,12],"max_distance":2,"max_age":60000}`

	first := decode[models.SimilarResponse](t, call(t, r, http.MethodPost, "/api/v1/similar", body))
	assert.Equal(t, "miss", first.CacheStatus)

	second := decode[models.SimilarResponse](t, call(t, r, http.MethodPost, "/api/v1/similar", body))
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, first.Pairs, second.Pairs)

	third := decode[models.SimilarResponse](t, call(t, r, http.MethodPost, "/api/v1/similar",
		`{"fingerprints":[10,11,12],"max_distance":1,"max_age":60000}`))
	assert.Equal(t, "miss", third.CacheStatus, "different parameters do not share an entry")
}

func TestSimilar_Invalid(t *testing.T) {
	cfg := testConfig()
	cfg.Finder.ExactLimit = 2
	cfg.Finder.MaxFingerprints = 4
	r := newTestRouter(t, cfg, false)

	cases := map[string]string{
		"missing distance": `{"fingerprints":[1,2]}`,
		"distance 65":      `{"fingerprints":[1,2],"max_distance":65}`,
		"rotate 64":        `{"fingerprints":[1,2],"max_distance":1,"rotate_bits":64}`,
		"rotation 0":       `{"fingerprints":[1,2],"max_distance":1,"rotations":[8,0]}`,
		"exact too large":  `{"fingerprints":[1,2,3],"max_distance":1,"exact":true}`,
		"too many":         `{"fingerprints":[1,2,3,4,5],"max_distance":1}`,
		"negative max age": `{"fingerprints":[1,2],"max_distance":1,"max_age":-1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := call(t, r, http.MethodPost, "/api/v1/similar", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), models.ErrCodeInvalidInput)
		})
	}
}

func TestCollections(t *testing.T) {
	r := newTestRouter(t, testConfig(), true)

	rec := call(t, r, http.MethodPut, "/api/v1/collections/docs", `{"items":[
		{"id":"a","fingerprint":"0xF0F0000000000000"},
		{"id":"b","fingerprint":"0xF0F0000000000001"},
		{"id":"c","fingerprint":"0x0F0FFFFFFFFFFFFF"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[models.CollectionPutResponse](t, rec).Stored)

	rec = call(t, r, http.MethodGet, "/api/v1/collections/docs/fingerprints/b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.RecordResponse](t, rec)
	assert.Equal(t, "f0f0000000000001", got.Record.Hex)

	rec = call(t, r, http.MethodPost, "/api/v1/collections/docs/query", `{"fingerprint":"0xF0F0000000000000","max_distance":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[models.QueryResponse](t, rec)
	require.Len(t, q.Matches, 2)
	assert.Equal(t, "a", q.Matches[0].ID)
	assert.Equal(t, "b", q.Matches[1].ID)
	assert.Equal(t, 1, q.Matches[1].Distance)

	rec = call(t, r, http.MethodDelete, "/api/v1/collections/docs/fingerprints/b", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, r, http.MethodGet, "/api/v1/collections/docs/fingerprints/b", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), models.ErrCodeNotFound)

	rec = call(t, r, http.MethodDelete, "/api/v1/collections/docs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[models.DeleteResponse](t, rec).Deleted)

	rec = call(t, r, http.MethodPut, "/api/v1/collections/bad:name", `{"items":[{"id":"a","fingerprint":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDedupeJob(t *testing.T) {
	const secret = "hook-secret"
	events := make(chan webhook.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		if !webhook.Verify(secret, body, req.Header.Get(webhook.SignatureHeader)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var ev webhook.Event
		_ = json.Unmarshal(body, &ev)
		events <- ev
	}))
	defer hook.Close()

	r := newTestRouter(t, testConfig(), true)
	rec := call(t, r, http.MethodPut, "/api/v1/collections/news", `{"items":[
		{"id":"x1","fingerprint":"0xAB00000000000000"},
		{"id":"x2","fingerprint":"0xAB00000000000003"},
		{"id":"y","fingerprint":"0x00FF00FF00FF00FF"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, r, http.MethodPost, "/api/v1/collections/news/dedupe", map[string]any{
		"max_distance":   2,
		"webhook_url":    hook.URL,
		"webhook_secret": secret,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	started := decode[models.DedupeResponse](t, rec)
	assert.Equal(t, 3, started.Total)

	var status models.JobStatusResponse
	require.Eventually(t, func() bool {
		status = decode[models.JobStatusResponse](t, call(t, r, http.MethodGet, "/api/v1/jobs/"+started.ID, nil))
		return status.Status != models.JobProcessing
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.JobCompleted, status.Status)
	assert.Equal(t, []models.IDPair{{A: "x1", B: "x2", Distance: 2}}, status.Pairs)
	assert.Len(t, status.Passes, len(simhash.DefaultRotations))

	select {
	case ev := <-events:
		assert.Equal(t, "dedupe.completed", ev.Type)
		assert.Equal(t, started.ID, ev.JobID)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}

	rec = call(t, r, http.MethodPost, "/api/v1/collections/missing/dedupe", `{"max_distance":2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, r, http.MethodGet, "/api/v1/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreDisabled(t *testing.T) {
	r := newTestRouter(t, testConfig(), false)
	rec := call(t, r, http.MethodPut, "/api/v1/collections/docs", `{"items":[{"id":"a","fingerprint":1}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), models.ErrCodeStoreDisabled)

	rec = call(t, r, http.MethodPost, "/api/v1/collections/docs/dedupe", `{"max_distance":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, testConfig(), false)
	call(t, r, http.MethodPost, "/api/v1/hamming", `{"a":1,"b":2}`)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "neardup_api_requests_total")
}

func mustRaw(t *testing.T, rec *httptest.ResponseRecorder, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m[field]
}
