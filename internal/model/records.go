// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strconv"

// =============================================================================
// METADATA FIELD NAMES
// =============================================================================

// Metadata field names as stored in the vector collections.
const (
	FieldLine      = "Line"
	FieldMinutes   = "Downtime Minutes"
	FieldTimestamp = "Timestamp"
	FieldEpoch     = "Timestamp_unix"
)

// NoNotes is the placeholder used when a record carries no free-text note.
const NoNotes = "No notes provided"

// =============================================================================
// RECORD / RECORDSET
// =============================================================================

// Record is one document returned by the vector store: the raw note text,
// its metadata row, and optionally its embedding vector.
type Record struct {
	ID        string         `json:"id"`
	Document  string         `json:"document"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float64      `json:"embedding,omitempty"`
}

// Minutes returns the record's downtime duration in minutes. Missing or
// non-numeric values coerce to zero rather than failing the analysis.
func (r *Record) Minutes() float64 {
	return coerceFloat(r.Metadata[FieldMinutes])
}

// Line returns the production line identifier, or "" when absent.
func (r *Record) Line() string {
	s, _ := r.Metadata[FieldLine].(string)
	return s
}

// Timestamp returns the human-readable timestamp string, or "" when absent.
func (r *Record) Timestamp() string {
	s, _ := r.Metadata[FieldTimestamp].(string)
	return s
}

// Note returns the record's free-text note, substituting the NoNotes
// placeholder when the document is empty.
func (r *Record) Note() string {
	if r.Document == "" {
		return NoNotes
	}
	return r.Document
}

// coerceFloat converts JSON-decoded metadata values to float64, treating
// anything unparseable as zero.
func coerceFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// RecordSet is a batch of records from one retrieval step, tagged with the
// collection it came from so downstream steps can partition results.
type RecordSet struct {
	Collection string   `json:"collection"`
	Records    []Record `json:"records"`
}

// KnownIssues reports whether this set came from the known-issues collection.
func (rs *RecordSet) KnownIssues() bool {
	return rs.Collection == CollectionKnownIssues
}

// Collection names.
const (
	CollectionDowntimeLogs = "downtime_logs"
	CollectionKnownIssues  = "known_issues"
)
