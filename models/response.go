package models

import "github.com/use-agent/neardup/simhash"

// FingerprintResponse is the response for POST /api/v1/fingerprint and
// POST /api/v1/fingerprint/weighted.
type FingerprintResponse struct {
	Success bool `json:"success"`

	// Fingerprint is the 64-bit simhash.
	Fingerprint Hash `json:"fingerprint"`

	// Hex is Fingerprint as 16 hex digits.
	Hex string `json:"hex"`

	// TokenCount is the number of tokens that voted.
	TokenCount int `json:"token_count"`

	// Layout is "standard" or "legacy".
	Layout string `json:"layout,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// HammingResponse is the response for POST /api/v1/hamming.
type HammingResponse struct {
	Success  bool         `json:"success"`
	Distance int          `json:"distance"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// HashResponse is the response for POST /api/v1/hash.
type HashResponse struct {
	Success bool         `json:"success"`
	Hasher  string       `json:"hasher"`
	Hashes  []Hash       `json:"hashes"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// PassInfo reports one search pass.
type PassInfo struct {
	Name       string `json:"name"`
	Pairs      int    `json:"pairs"`
	DurationMs int64  `json:"duration_ms"`
}

// SimilarResponse is the response for POST /api/v1/similar.
type SimilarResponse struct {
	Success bool `json:"success"`

	// Pairs are index pairs into the request's fingerprints, each with I < J.
	Pairs []simhash.Pair `json:"pairs"`

	// Count is len(Pairs).
	Count int `json:"count"`

	// Passes describes how the pairs were found.
	Passes []PassInfo `json:"passes,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// SearchMs is the time spent inside the pair search.
	SearchMs int64 `json:"search_ms"`
}

// Record is a stored fingerprint.
type Record struct {
	ID          string `json:"id"`
	Fingerprint Hash   `json:"fingerprint"`
	Hex         string `json:"hex"`
}

// Match is a stored fingerprint near a query.
type Match struct {
	Record
	Distance int `json:"distance"`
}

// CollectionPutResponse is the response for PUT /api/v1/collections/:name.
type CollectionPutResponse struct {
	Success    bool         `json:"success"`
	Collection string       `json:"collection"`
	Stored     int          `json:"stored"` // distinct IDs written
	Error      *ErrorDetail `json:"error,omitempty"`
}

// RecordResponse is the response for GET /api/v1/collections/:name/fingerprints/:id.
type RecordResponse struct {
	Success bool         `json:"success"`
	Record  *Record      `json:"record,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// DeleteResponse is the response for the collection DELETE endpoints.
type DeleteResponse struct {
	Success bool         `json:"success"`
	Deleted int          `json:"deleted"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// QueryResponse is the response for POST /api/v1/collections/:name/query.
type QueryResponse struct {
	Success bool         `json:"success"`
	Matches []Match      `json:"matches"`
	Timing  TimingInfo   `json:"timing"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string      `json:"status"` // "healthy" or "degraded"
	Uptime  string      `json:"uptime"`
	Version string      `json:"version"`
	Store   *StoreStats `json:"store,omitempty"`
	Jobs    JobStats    `json:"jobs"`
}

// StoreStats reports the fingerprint store.
type StoreStats struct {
	Collections int   `json:"collections"`
	Records     int   `json:"records"`
	LSMBytes    int64 `json:"lsm_bytes"`
	VLogBytes   int64 `json:"vlog_bytes"`
}

// JobStats reports dedupe jobs held in memory.
type JobStats struct {
	Processing int `json:"processing"`
	Finished   int `json:"finished"`
	Capacity   int `json:"capacity"`
}
