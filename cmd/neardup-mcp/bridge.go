package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/neardup/models"
)

// apiCall sends a request to the neardup API and decodes the JSON response
// into out. Error bodies are turned into errors.
func apiCall(ctx context.Context, client *http.Client, method, apiURL, apiKey, path string, payload, out any) error {
	var rd io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var e models.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != nil {
			return fmt.Errorf("[%s] %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// pollJob polls a job until its status is no longer "processing" or ctx is
// cancelled.
func pollJob(ctx context.Context, client *http.Client, apiURL, apiKey, id string, every time.Duration) (*models.JobStatusResponse, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var status models.JobStatusResponse
			if err := apiCall(ctx, client, http.MethodGet, apiURL, apiKey, "/api/v1/jobs/"+url.PathEscape(id), nil, &status); err != nil {
				return nil, err
			}
			if status.Status != models.JobProcessing {
				return &status, nil
			}
		}
	}
}

func collectionPath(name string, rest ...string) string {
	return "/api/v1/collections/" + url.PathEscape(name) + strings.Join(rest, "")
}

func handleStoreFingerprints(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		collection, err := request.RequireString("collection")
		if err != nil {
			return mcp.NewToolResultError("collection is required"), nil
		}
		ids, err := request.RequireStringSlice("ids")
		if err != nil {
			return mcp.NewToolResultError("ids is required and must be an array of strings"), nil
		}
		raw, err := request.RequireStringSlice("fingerprints")
		if err != nil {
			return mcp.NewToolResultError("fingerprints is required and must be an array of strings"), nil
		}
		if len(ids) != len(raw) {
			return mcp.NewToolResultError(fmt.Sprintf("got %d ids but %d fingerprints", len(ids), len(raw))), nil
		}
		fps, err := parseHashes(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		items := make([]models.CollectionItem, len(ids))
		for i := range ids {
			h := models.Hash(fps[i])
			items[i] = models.CollectionItem{ID: ids[i], Fingerprint: &h}
		}

		var resp models.CollectionPutResponse
		err = apiCall(ctx, client, http.MethodPut, apiURL, apiKey, collectionPath(collection),
			models.CollectionPutRequest{Items: items}, &resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("store failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Stored %d fingerprints in %s", resp.Stored, resp.Collection)), nil
	}
}

func handleQueryCollection(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		collection, err := request.RequireString("collection")
		if err != nil {
			return mcp.NewToolResultError("collection is required"), nil
		}
		raw, err := request.RequireString("fingerprint")
		if err != nil {
			return mcp.NewToolResultError("fingerprint is required"), nil
		}
		fp, err := models.ParseHash(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		maxDistance, err := requireWholeInt(request, "max_distance")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		h := models.Hash(fp)
		var resp models.QueryResponse
		err = apiCall(ctx, client, http.MethodPost, apiURL, apiKey, collectionPath(collection, "/query"),
			models.QueryRequest{Fingerprint: &h, MaxDistance: &maxDistance}, &resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Found %d matches:\n\n", len(resp.Matches))
		for _, m := range resp.Matches {
			fmt.Fprintf(&sb, "%s  0x%s  distance %d\n", m.ID, m.Hex, m.Distance)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleDedupeCollection(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		collection, err := request.RequireString("collection")
		if err != nil {
			return mcp.NewToolResultError("collection is required"), nil
		}
		maxDistance, err := requireWholeInt(request, "max_distance")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var started models.DedupeResponse
		err = apiCall(ctx, client, http.MethodPost, apiURL, apiKey, collectionPath(collection, "/dedupe"),
			models.DedupeRequest{MaxDistance: &maxDistance, Exact: request.GetBool("exact", false)}, &started)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("dedupe request failed: %v", err)), nil
		}

		status, err := pollJob(ctx, client, apiURL, apiKey, started.ID, time.Second)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling dedupe job failed: %v", err)), nil
		}
		if status.Status == models.JobFailed {
			return mcp.NewToolResultError("dedupe failed: " + status.Message), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Dedupe of %s (%d records): %d near-duplicate pairs\n\n", collection, status.Total, len(status.Pairs))
		for _, p := range status.Pairs {
			fmt.Fprintf(&sb, "%s ~ %s  distance %d\n", p.A, p.B, p.Distance)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
