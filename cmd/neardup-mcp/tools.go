package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/neardup/engine"
	"github.com/use-agent/neardup/models"
	"github.com/use-agent/neardup/simhash"
	"github.com/use-agent/neardup/tokenhash"
)

// exactLimit matches the server's default exact-search limit.
const exactLimit = 5000

func parseHashes(raw []string) ([]uint64, error) {
	out := make([]uint64, len(raw))
	for i, s := range raw {
		v, err := models.ParseHash(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// optionalStringSlice returns nil when key is absent and fails when any item
// is not a string.
func optionalStringSlice(request mcp.CallToolRequest, key string) ([]string, error) {
	if _, ok := request.GetArguments()[key]; !ok {
		return nil, nil
	}
	return request.RequireStringSlice(key)
}

// requireWholeInt is RequireInt without the silent truncation of fractional
// numbers.
func requireWholeInt(request mcp.CallToolRequest, key string) (int, error) {
	if f, ok := request.GetArguments()[key].(float64); ok {
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
			return 0, fmt.Errorf("argument %q must be an integer, got %v", key, f)
		}
	}
	return request.RequireInt(key)
}

func handleFingerprint(defaultHasher string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := optionalStringSlice(request, "hashes")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		hashes, err := parseHashes(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		tokens, err := optionalStringSlice(request, "tokens")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(tokens) > 0 {
			name := request.GetString("hasher", defaultHasher)
			h, err := tokenhash.ByName(name)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			hashes = append(hashes, tokenhash.HashStrings(h, tokens)...)
		}

		fp := simhash.Fingerprint(hashes)
		if request.GetBool("legacy", false) {
			fp = simhash.LegacyFingerprint(hashes)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Fingerprint: %d (0x%016x) from %d tokens", fp, fp, len(hashes))), nil
	}
}

func handleHamming() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		a, err := request.RequireString("a")
		if err != nil {
			return mcp.NewToolResultError("a is required"), nil
		}
		b, err := request.RequireString("b")
		if err != nil {
			return mcp.NewToolResultError("b is required"), nil
		}
		fps, err := parseHashes([]string{a, b})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Hamming distance: %d", simhash.HammingDistance(fps[0], fps[1]))), nil
	}
}

func handleSimilarPairs() server.ToolHandlerFunc {
	disp := engine.NewDispatcher(4)

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := request.RequireStringSlice("fingerprints")
		if err != nil {
			return mcp.NewToolResultError("fingerprints is required and must be an array of strings"), nil
		}
		fps, err := parseHashes(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		maxDistance, err := requireWholeInt(request, "max_distance")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		exact := request.GetBool("exact", false)
		if exact && len(fps) > exactLimit {
			return mcp.NewToolResultError(fmt.Sprintf("exact search is limited to %d fingerprints", exactLimit)), nil
		}
		rotations := simhash.DefaultRotations
		if _, ok := request.GetArguments()["rotate_bits"]; ok {
			r, err := requireWholeInt(request, "rotate_bits")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rotations = []int{r}
		}
		if err := simhash.ValidateSearch(maxDistance, rotations); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		passes := engine.Plan(rotations, false)
		if exact {
			passes = engine.Plan(nil, true)
		}
		res, err := disp.Dispatch(ctx, &engine.Request{Fingerprints: fps, MaxDistance: maxDistance}, passes)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Found %d pairs among %d fingerprints:\n\n", len(res.Pairs), len(fps))
		for _, p := range res.Pairs {
			fmt.Fprintf(&sb, "(%d, %d) distance %d\n", p.I, p.J, simhash.HammingDistance(fps[p.I], fps[p.J]))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
