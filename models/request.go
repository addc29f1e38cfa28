package models

// FingerprintRequest is the payload for POST /api/v1/fingerprint.
//
// Hashes and Tokens may be combined; tokens are hashed with Hasher and
// appended after the explicit hashes. An empty request is legal and yields
// the all-ones fingerprint.
type FingerprintRequest struct {
	// Hashes are pre-computed 64-bit token hashes.
	Hashes []Hash `json:"hashes,omitempty"`

	// Tokens are raw token strings, hashed server-side.
	Tokens []string `json:"tokens,omitempty"`

	// Hasher names the token hasher for Tokens ("fnv1a", "xxhash", "farmhash",
	// "siphash"). Default: the server's configured hasher.
	Hasher string `json:"hasher,omitempty"`

	// Legacy selects the historical reversed bit layout.
	Legacy bool `json:"legacy,omitempty"`
}

// WeightedFingerprintRequest is the payload for POST /api/v1/fingerprint/weighted.
type WeightedFingerprintRequest struct {
	// Tokens are (hash, weight) pairs, as arrays or objects.
	Tokens []WeightedToken `json:"tokens"`
}

// HammingRequest is the payload for POST /api/v1/hamming.
type HammingRequest struct {
	A *Hash `json:"a" binding:"required"`
	B *Hash `json:"b" binding:"required"`
}

// HashRequest is the payload for POST /api/v1/hash.
type HashRequest struct {
	// Texts are hashed one by one. Required.
	Texts []string `json:"texts" binding:"required,min=1"`

	// Hasher names the token hasher. Default: the server's configured hasher.
	Hasher string `json:"hasher,omitempty"`
}

// SimilarRequest is the payload for POST /api/v1/similar.
type SimilarRequest struct {
	// Fingerprints is the collection to search, addressed by position.
	Fingerprints []Hash `json:"fingerprints"`

	// MaxDistance is the inclusive Hamming distance threshold (0-64). Required.
	MaxDistance *int `json:"max_distance" binding:"required"`

	// RotateBits runs a single banded pass with this rotation (1-63).
	RotateBits *int `json:"rotate_bits,omitempty"`

	// Rotations runs one pass per entry and merges the results. Ignored when
	// RotateBits is set. Default: the server's configured rotations.
	Rotations []int `json:"rotations,omitempty"`

	// Exact compares every pair instead of banding. Only allowed up to the
	// server's exact-search limit.
	Exact bool `json:"exact,omitempty"`

	// MaxAge, in milliseconds, allows a cached result of the same request that
	// is at most this old. 0 disables caching.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// CollectionItem is one fingerprint to store under a caller-chosen ID.
type CollectionItem struct {
	ID          string `json:"id" binding:"required,max=512"`
	Fingerprint *Hash  `json:"fingerprint" binding:"required"`
}

// CollectionPutRequest is the payload for PUT /api/v1/collections/:name.
type CollectionPutRequest struct {
	Items []CollectionItem `json:"items" binding:"required,min=1,dive"`
}

// QueryRequest is the payload for POST /api/v1/collections/:name/query.
type QueryRequest struct {
	Fingerprint *Hash `json:"fingerprint" binding:"required"`
	MaxDistance *int  `json:"max_distance" binding:"required"`
}

// DedupeRequest is the payload for POST /api/v1/collections/:name/dedupe.
type DedupeRequest struct {
	// MaxDistance is the inclusive Hamming distance threshold (0-64). Required.
	MaxDistance *int `json:"max_distance" binding:"required"`

	// Rotations selects the banded passes. Default: the server's configured rotations.
	Rotations []int `json:"rotations,omitempty"`

	// Exact compares every pair instead of banding. Only allowed up to the
	// server's exact-search limit.
	Exact bool `json:"exact,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
