package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/neardup/api"
	"github.com/use-agent/neardup/api/handler"
	"github.com/use-agent/neardup/cache"
	"github.com/use-agent/neardup/config"
	"github.com/use-agent/neardup/engine"
	"github.com/use-agent/neardup/store"
	"github.com/use-agent/neardup/webhook"
)

func callTool(t *testing.T, h server.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestFingerprintTool(t *testing.T) {
	text, isErr := callTool(t, handleFingerprint(""), map[string]any{"hashes": []any{"1", "2", "3", "0x4"}})
	assert.False(t, isErr)
	assert.Contains(t, text, "Fingerprint: 3 (0x0000000000000003) from 4 tokens")

	text, isErr = callTool(t, handleFingerprint(""), map[string]any{"hashes": []any{"1", "2", "3", "4"}, "legacy": true})
	assert.False(t, isErr)
	assert.Contains(t, text, "0x8000000000000000")

	_, isErr = callTool(t, handleFingerprint(""), map[string]any{"tokens": []any{"a"}, "hasher": "md5"})
	assert.True(t, isErr)

	_, isErr = callTool(t, handleFingerprint(""), map[string]any{"hashes": []any{"nope"}})
	assert.True(t, isErr)
}

func TestHammingTool(t *testing.T) {
	text, isErr := callTool(t, handleHamming(), map[string]any{"a": "0", "b": "0xffffffffffffffff"})
	assert.False(t, isErr)
	assert.Equal(t, "Hamming distance: 64", text)

	_, isErr = callTool(t, handleHamming(), map[string]any{"a": "0"})
	assert.True(t, isErr)
}

func TestSimilarPairsTool(t *testing.T) {
	text, isErr := callTool(t, handleSimilarPairs(), map[string]any{
		"fingerprints": []any{"0", "1", "7"},
		"max_distance": 1,
		"rotate_bits":  4,
	})
	assert.False(t, isErr)
	assert.Contains(t, text, "Found 1 pairs among 3 fingerprints")
	assert.Contains(t, text, "(0, 1) distance 1")

	_, isErr = callTool(t, handleSimilarPairs(), map[string]any{
		"fingerprints": []any{"0", "1"},
		"max_distance": 65,
	})
	assert.True(t, isErr)
}

func TestToolsRejectMalformedArguments(t *testing.T) {
	tests := []struct {
		name string
		tool server.ToolHandlerFunc
		args map[string]any
	}{
		{"non-string hash item", handleFingerprint(""), map[string]any{"hashes": []any{"1", 2.0, "3", true}}},
		{"hashes not an array", handleFingerprint(""), map[string]any{"hashes": "1"}},
		{"non-string token item", handleFingerprint(""), map[string]any{"tokens": []any{"a", 7.0}}},
		{"hamming bad hash", handleHamming(), map[string]any{"a": "0", "b": "0x"}},
		{"non-string fingerprint item", handleSimilarPairs(), map[string]any{
			"fingerprints": []any{"0", 1.0}, "max_distance": 1,
		}},
		{"explicit zero rotation", handleSimilarPairs(), map[string]any{
			"fingerprints": []any{"0", "1", "7"}, "max_distance": 1, "rotate_bits": 0,
		}},
		{"rotation of 64", handleSimilarPairs(), map[string]any{
			"fingerprints": []any{"0", "1"}, "max_distance": 1, "rotate_bits": 64.0,
		}},
		{"fractional rotation", handleSimilarPairs(), map[string]any{
			"fingerprints": []any{"0", "1"}, "max_distance": 1, "rotate_bits": 4.5,
		}},
		{"fractional max distance", handleSimilarPairs(), map[string]any{
			"fingerprints": []any{"0", "1", "7"}, "max_distance": 1.9, "rotate_bits": 4,
		}},
		{"max distance not a number", handleSimilarPairs(), map[string]any{
			"fingerprints": []any{"0", "1"}, "max_distance": true,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := callTool(t, tt.tool, tt.args)
			assert.True(t, isErr, text)
		})
	}
}

func TestToolsAcceptWholeFloats(t *testing.T) {
	text, isErr := callTool(t, handleSimilarPairs(), map[string]any{
		"fingerprints": []any{"0", "1", "7"},
		"max_distance": 1.0,
		"rotate_bits":  4.0,
	})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Found 1 pairs among 3 fingerprints")
}

func TestBridgeRejectsFractionalDistance(t *testing.T) {
	srv := newBackend(t)

	text, isErr := callTool(t, handleQueryCollection(srv.URL, "k"), map[string]any{
		"collection":   "docs",
		"fingerprint":  "1",
		"max_distance": 2.5,
	})
	assert.True(t, isErr)
	assert.Contains(t, text, "must be an integer")
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.Auth.APIKeys = []string{"k"}
	cfg.Store.InMemory = true

	st, err := store.Open(cfg.Store, cfg.Finder.Rotations)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	disp := engine.NewDispatcher(2)
	jobs := handler.NewJobs(cfg.Jobs, cfg.Finder, st, disp, webhook.New(cfg.Webhook))
	t.Cleanup(jobs.Close)

	srv := httptest.NewServer(api.NewRouter(cfg, st, disp, cache.New(10, time.Minute), jobs, time.Now()))
	t.Cleanup(srv.Close)
	return srv
}

func TestBridgeTools(t *testing.T) {
	srv := newBackend(t)

	text, isErr := callTool(t, handleStoreFingerprints(srv.URL, "k"), map[string]any{
		"collection":   "docs",
		"ids":          []any{"a", "b", "c"},
		"fingerprints": []any{"0xF0F0000000000000", "0xF0F0000000000001", "0x0F0FFFFFFFFFFFFF"},
	})
	require.False(t, isErr, text)
	assert.Equal(t, "Stored 3 fingerprints in docs", text)

	text, isErr = callTool(t, handleQueryCollection(srv.URL, "k"), map[string]any{
		"collection":   "docs",
		"fingerprint":  "0xF0F0000000000000",
		"max_distance": 2,
	})
	require.False(t, isErr, text)
	assert.Contains(t, text, "Found 2 matches")

	text, isErr = callTool(t, handleDedupeCollection(srv.URL, "k"), map[string]any{
		"collection":   "docs",
		"max_distance": 2,
	})
	require.False(t, isErr, text)
	assert.Contains(t, text, "1 near-duplicate pairs")
	assert.Contains(t, text, "a ~ b  distance 1")

	text, isErr = callTool(t, handleQueryCollection(srv.URL, "wrong-key"), map[string]any{
		"collection":   "docs",
		"fingerprint":  "1",
		"max_distance": 2,
	})
	assert.True(t, isErr)
	assert.Contains(t, text, "UNAUTHORIZED")

	_, isErr = callTool(t, handleStoreFingerprints(srv.URL, "k"), map[string]any{
		"collection":   "docs",
		"ids":          []any{"a"},
		"fingerprints": []any{"1", "2"},
	})
	assert.True(t, isErr)
}
