package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/simhash"
	"github.com/use-agent/neardup/tokenhash"
)

// Fingerprint returns a handler for POST /api/v1/fingerprint.
//
// Explicit hashes come first, then the request's tokens hashed with the
// requested (or default) hasher.
func Fingerprint(defaultHasher string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.FingerprintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		hashes := models.Uint64s(req.Hashes)
		if len(req.Tokens) > 0 {
			h, err := resolveHasher(req.Hasher, defaultHasher)
			if err != nil {
				respondError(c, err)
				return
			}
			hashes = append(hashes, tokenhash.HashStrings(h, req.Tokens)...)
		}

		fp, layout := simhash.Fingerprint(hashes), "standard"
		if req.Legacy {
			fp, layout = simhash.LegacyFingerprint(hashes), "legacy"
		}

		c.JSON(http.StatusOK, models.FingerprintResponse{
			Success:     true,
			Fingerprint: models.Hash(fp),
			Hex:         models.Hash(fp).Hex(),
			TokenCount:  len(hashes),
			Layout:      layout,
		})
	}
}

// WeightedFingerprint returns a handler for POST /api/v1/fingerprint/weighted.
func WeightedFingerprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.WeightedFingerprintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		fp, err := simhash.WeightedFingerprint(models.SimhashTokens(req.Tokens))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.FingerprintResponse{
			Success:     true,
			Fingerprint: models.Hash(fp),
			Hex:         models.Hash(fp).Hex(),
			TokenCount:  len(req.Tokens),
			Layout:      "standard",
		})
	}
}

// Hamming returns a handler for POST /api/v1/hamming.
func Hamming() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.HammingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.HammingResponse{
			Success:  true,
			Distance: simhash.HammingDistance(uint64(*req.A), uint64(*req.B)),
		})
	}
}

// Hash returns a handler for POST /api/v1/hash.
func Hash(defaultHasher string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.HashRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		h, err := resolveHasher(req.Hasher, defaultHasher)
		if err != nil {
			respondError(c, err)
			return
		}

		sums := tokenhash.HashStrings(h, req.Texts)
		out := make([]models.Hash, len(sums))
		for i, s := range sums {
			out[i] = models.Hash(s)
		}
		c.JSON(http.StatusOK, models.HashResponse{
			Success: true,
			Hasher:  h.Name(),
			Hashes:  out,
		})
	}
}

func resolveHasher(name, fallback string) (tokenhash.Hasher, error) {
	if name == "" {
		name = fallback
	}
	return tokenhash.ByName(name)
}
