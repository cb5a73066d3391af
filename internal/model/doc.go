// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the shared domain types for linesight.
//
// This package defines the core data structures used throughout the
// application: conversation messages, request context, execution plans,
// retrieved record sets, analysis results, and the events streamed back
// to the caller.
//
// # Key Types
//
//   - Message: Single conversation message with role, content, timestamp
//   - RequestContext: Session and conversation identity for one query
//   - Plan / Step / Task: The structured pipeline produced by the planner
//   - RecordSet: Documents plus metadata returned by the vector store
//   - AnalysisResult: Tagged union of the analysis output shapes
//   - StreamEvent: One SSE event on the wire to the caller
//
// The model package has no dependencies on other internal packages;
// everything else depends on it, never the other way around.
package model
