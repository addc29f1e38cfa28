package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("NEARDUP_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("NEARDUP_API_KEY")
	hasher := os.Getenv("NEARDUP_HASHER")

	s := server.NewMCPServer(
		"neardup",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	// Pure tools run in-process and need no server.
	s.AddTool(mcp.NewTool("fingerprint",
		mcp.WithDescription("Compute the 64-bit simhash fingerprint of a token sequence. Tokens are hashed server-side; pre-computed hashes may be passed instead."),
		mcp.WithArray("tokens",
			mcp.Description("Token strings, e.g. words or shingles of a document"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("hashes",
			mcp.Description("Pre-computed 64-bit token hashes as decimal or 0x-hex strings"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("hasher",
			mcp.Description("Token hasher: 'fnv1a' (default), 'xxhash', 'farmhash' or 'siphash'"),
			mcp.Enum("fnv1a", "xxhash", "farmhash", "siphash"),
		),
		mcp.WithBoolean("legacy",
			mcp.Description("Use the historical reversed bit layout"),
		),
	), handleFingerprint(hasher))

	s.AddTool(mcp.NewTool("hamming_distance",
		mcp.WithDescription("Count the bits that differ between two 64-bit fingerprints."),
		mcp.WithString("a", mcp.Required(), mcp.Description("First fingerprint, decimal or 0x-hex")),
		mcp.WithString("b", mcp.Required(), mcp.Description("Second fingerprint, decimal or 0x-hex")),
	), handleHamming())

	s.AddTool(mcp.NewTool("similar_pairs",
		mcp.WithDescription("Find all pairs of fingerprints within a Hamming distance of each other, using banded sorted search (or an exact comparison for small inputs)."),
		mcp.WithArray("fingerprints",
			mcp.Required(),
			mcp.Description("Fingerprints as decimal or 0x-hex strings; pairs refer to positions in this list"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithNumber("max_distance",
			mcp.Required(),
			mcp.Description("Inclusive Hamming distance threshold (0-64)"),
		),
		mcp.WithNumber("rotate_bits",
			mcp.Description("Run a single banded pass with this rotation (1-63). Default: passes at 8, 16, 24 and 32"),
		),
		mcp.WithBoolean("exact",
			mcp.Description("Compare every pair instead of banding (at most 5000 fingerprints)"),
		),
	), handleSimilarPairs())

	// Collection tools are bridged to a running neardup server.
	s.AddTool(mcp.NewTool("store_fingerprints",
		mcp.WithDescription("Store fingerprints under IDs in a named collection on the neardup server."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name (letters, digits, '.', '_' or '-')")),
		mcp.WithArray("ids", mcp.Required(), mcp.Description("Record IDs"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("fingerprints", mcp.Required(), mcp.Description("Fingerprints matching ids, decimal or 0x-hex"), mcp.Items(map[string]any{"type": "string"})),
	), handleStoreFingerprints(apiURL, apiKey))

	s.AddTool(mcp.NewTool("query_collection",
		mcp.WithDescription("Find stored fingerprints near a query fingerprint."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("fingerprint", mcp.Required(), mcp.Description("Query fingerprint, decimal or 0x-hex")),
		mcp.WithNumber("max_distance", mcp.Required(), mcp.Description("Inclusive Hamming distance threshold (0-64)")),
	), handleQueryCollection(apiURL, apiKey))

	s.AddTool(mcp.NewTool("dedupe_collection",
		mcp.WithDescription("Find every near-duplicate pair in a stored collection. Runs as a background job on the server and waits for it."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithNumber("max_distance", mcp.Required(), mcp.Description("Inclusive Hamming distance threshold (0-64)")),
		mcp.WithBoolean("exact", mcp.Description("Compare every pair instead of banding")),
	), handleDedupeCollection(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
