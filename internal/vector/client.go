// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package vector provides the HTTP client for the vector store holding the
// downtime-log and known-issue collections.
//
// The store exposes a Chroma-style REST API: a metadata-filtered fetch and
// an embedding-similarity query per collection. Indexing and embedding are
// the store's concern; this client only reads.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jeranaias/linesight/internal/model"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the vector store client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeCollectionNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning         = &ClientError{Type: ErrTypeNotRunning, Message: "vector store is not reachable"}
	ErrTimeout            = &ClientError{Type: ErrTypeTimeout, Message: "vector store request timed out"}
	ErrCollectionNotFound = &ClientError{Type: ErrTypeCollectionNotFound, Message: "collection not found"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the vector store client.
type ClientConfig struct {
	// BaseURL is the vector store REST endpoint (default: http://127.0.0.1:8001)
	BaseURL string

	// Timeout for requests (default: 30s)
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "http://127.0.0.1:8001",
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the vector store.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new vector store client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new vector store client with custom
// configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8001"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// CheckRunning verifies that the vector store is reachable.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from vector store: " + resp.Status,
		}
	}
	return nil
}

// =============================================================================
// REQUEST / RESPONSE SHAPES
// =============================================================================

// getRequest is a metadata-only fetch against one collection.
type getRequest struct {
	Where   model.Filter `json:"where,omitempty"`
	Include []string     `json:"include"`
}

// getResponse carries flat parallel arrays.
type getResponse struct {
	IDs        []string         `json:"ids"`
	Documents  []string         `json:"documents"`
	Metadatas  []map[string]any `json:"metadatas"`
	Embeddings [][]float64      `json:"embeddings"`
}

// queryRequest is an embedding-similarity query against one collection.
type queryRequest struct {
	QueryTexts []string     `json:"query_texts"`
	NResults   int          `json:"n_results"`
	Where      model.Filter `json:"where,omitempty"`
	Include    []string     `json:"include"`
}

// queryResponse carries one nested array set per query text; this client
// always sends exactly one query text.
type queryResponse struct {
	IDs        [][]string         `json:"ids"`
	Documents  [][]string         `json:"documents"`
	Metadatas  [][]map[string]any `json:"metadatas"`
	Embeddings [][][]float64      `json:"embeddings"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Get fetches every record of a collection matching the metadata filter.
// A nil filter fetches the whole collection.
func (c *Client) Get(ctx context.Context, collection string, filter model.Filter) (*model.RecordSet, error) {
	reqBody := getRequest{
		Where:   filter,
		Include: []string{"documents", "metadatas", "embeddings"},
	}

	var result getResponse
	path := fmt.Sprintf("/api/v1/collections/%s/get", collection)
	if err := c.post(ctx, path, reqBody, &result); err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, len(result.IDs))
	for i, id := range result.IDs {
		rec := model.Record{ID: id}
		if i < len(result.Documents) {
			rec.Document = result.Documents[i]
		}
		if i < len(result.Metadatas) {
			rec.Metadata = result.Metadatas[i]
		}
		if i < len(result.Embeddings) {
			rec.Embedding = result.Embeddings[i]
		}
		records = append(records, rec)
	}
	return &model.RecordSet{Collection: collection, Records: records}, nil
}

// Query performs an embedding-similarity search over a collection, returning
// at most topK records ordered by similarity. The filter, when non-nil,
// restricts the candidate set before ranking.
func (c *Client) Query(ctx context.Context, collection, queryText string, topK int, filter model.Filter) (*model.RecordSet, error) {
	reqBody := queryRequest{
		QueryTexts: []string{queryText},
		NResults:   topK,
		Where:      filter,
		Include:    []string{"documents", "metadatas", "embeddings"},
	}

	var result queryResponse
	path := fmt.Sprintf("/api/v1/collections/%s/query", collection)
	if err := c.post(ctx, path, reqBody, &result); err != nil {
		return nil, err
	}

	records := []model.Record{}
	if len(result.IDs) > 0 {
		ids := result.IDs[0]
		records = make([]model.Record, 0, len(ids))
		for i, id := range ids {
			rec := model.Record{ID: id}
			if len(result.Documents) > 0 && i < len(result.Documents[0]) {
				rec.Document = result.Documents[0][i]
			}
			if len(result.Metadatas) > 0 && i < len(result.Metadatas[0]) {
				rec.Metadata = result.Metadatas[0][i]
			}
			if len(result.Embeddings) > 0 && i < len(result.Embeddings[0]) {
				rec.Embedding = result.Embeddings[0][i]
			}
			records = append(records, rec)
		}
	}
	return &model.RecordSet{Collection: collection, Records: records}, nil
}

// post sends a JSON request and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrCollectionNotFound
	case resp.StatusCode != http.StatusOK:
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "unexpected status from vector store: " + resp.Status,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}
