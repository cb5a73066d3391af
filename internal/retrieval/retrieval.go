// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retrieval executes the retrieval steps of a plan against the
// vector store.
//
// Each task type maps to one store operation with a fixed result budget:
// metadata queries fetch everything the filter matches, known-issue queries
// keep the 3 best matches, semantic queries 10, hybrid queries 5.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/linesight/internal/model"
)

// Result budgets per task type.
const (
	TopKKnownIssue = 3
	TopKSemantic   = 10
	TopKHybrid     = 5
)

// Sentinel errors.
var (
	// ErrMissingQueryText indicates a similarity task without query text.
	ErrMissingQueryText = errors.New("query_text is required for similarity queries")

	// ErrUnknownTaskType indicates a retrieval task the engine cannot route.
	ErrUnknownTaskType = errors.New("unknown retrieval task type")
)

// Store is the slice of the vector client the engine needs.
type Store interface {
	Get(ctx context.Context, collection string, filter model.Filter) (*model.RecordSet, error)
	Query(ctx context.Context, collection, queryText string, topK int, filter model.Filter) (*model.RecordSet, error)
}

// Engine routes retrieval tasks to the vector store.
type Engine struct {
	store                Store
	downtimeCollection   string
	knownIssueCollection string
}

// NewEngine creates a retrieval engine over the given store and collection
// names.
func NewEngine(s Store, downtimeCollection, knownIssueCollection string) *Engine {
	if downtimeCollection == "" {
		downtimeCollection = model.CollectionDowntimeLogs
	}
	if knownIssueCollection == "" {
		knownIssueCollection = model.CollectionKnownIssues
	}
	return &Engine{
		store:                s,
		downtimeCollection:   downtimeCollection,
		knownIssueCollection: knownIssueCollection,
	}
}

// Execute runs one retrieval task and returns the matched records tagged
// with their source collection.
func (e *Engine) Execute(ctx context.Context, task model.Task) (*model.RecordSet, error) {
	switch task.Type {
	case model.TaskMetadataQuery:
		rs, err := e.store.Get(ctx, e.downtimeCollection, task.Filters)
		if err != nil {
			return nil, fmt.Errorf("metadata query: %w", err)
		}
		rs.Collection = model.CollectionDowntimeLogs
		return rs, nil

	case model.TaskKnownIssueQuery:
		if task.QueryText == "" {
			return nil, ErrMissingQueryText
		}
		rs, err := e.store.Query(ctx, e.knownIssueCollection, task.QueryText, TopKKnownIssue, task.Filters)
		if err != nil {
			return nil, fmt.Errorf("known issue query: %w", err)
		}
		rs.Collection = model.CollectionKnownIssues
		return rs, nil

	case model.TaskSemanticQuery:
		if task.QueryText == "" {
			return nil, ErrMissingQueryText
		}
		rs, err := e.store.Query(ctx, e.downtimeCollection, task.QueryText, TopKSemantic, task.Filters)
		if err != nil {
			return nil, fmt.Errorf("semantic query: %w", err)
		}
		rs.Collection = model.CollectionDowntimeLogs
		return rs, nil

	case model.TaskHybridQuery:
		if task.QueryText == "" {
			return nil, ErrMissingQueryText
		}
		rs, err := e.store.Query(ctx, e.downtimeCollection, task.QueryText, TopKHybrid, task.Filters)
		if err != nil {
			return nil, fmt.Errorf("hybrid query: %w", err)
		}
		rs.Collection = model.CollectionDowntimeLogs
		return rs, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, task.Type)
	}
}
