// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// AGENT KINDS
// =============================================================================

// AgentKind names one of the worker agents a plan step can invoke.
type AgentKind string

const (
	AgentRetrieval AgentKind = "retrieval"
	AgentAnalysis  AgentKind = "analysis"
	AgentSynthesis AgentKind = "synthesis"
)

// Valid reports whether the kind names a known agent.
func (a AgentKind) Valid() bool {
	switch a {
	case AgentRetrieval, AgentAnalysis, AgentSynthesis:
		return true
	}
	return false
}

// =============================================================================
// TASK TYPES
// =============================================================================

// Retrieval task types.
const (
	TaskMetadataQuery   = "metadata_query"
	TaskKnownIssueQuery = "known_issue_query"
	TaskSemanticQuery   = "semantic_query"
	TaskHybridQuery     = "hybrid_query"
)

// Analysis task types. An analysis task with an empty or unknown type falls
// through to the passthrough formatter.
const (
	TaskTotalDowntime  = "calculate_total_downtime"
	TaskAggregateLine  = "aggregate_by_line"
	TaskFrequentCauses = "find_most_frequent_causes"
	TaskClusterCauses  = "cluster_and_aggregate"
)

// Temporal filter keys the planner emits and the resolver consumes.
const (
	FilterDateStart = "natural_language_date_start"
	FilterDateEnd   = "natural_language_date_end"
)

// =============================================================================
// FILTER TYPE
// =============================================================================

// Filter is a metadata filter document in the vector store's query dialect.
// Top-level keys are field names or the "$and" combinator.
type Filter map[string]any

// PopString removes key from the filter and returns its string value.
// Returns "" and false when the key is absent or not a string.
func (f Filter) PopString(key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	delete(f, key)
	s, ok := v.(string)
	return s, ok
}

// AndClauses returns the clause list under "$and", or nil when absent.
func (f Filter) AndClauses() []any {
	v, ok := f["$and"]
	if !ok {
		return nil
	}
	clauses, _ := v.([]any)
	return clauses
}

// PopAndString removes key from any clause in the "$and" list and returns
// the last string value found. Clauses emptied by the removal are dropped,
// and an emptied "$and" list is deleted outright.
func (f Filter) PopAndString(key string) (string, bool) {
	clauses := f.AndClauses()
	if len(clauses) == 0 {
		return "", false
	}
	var val string
	found := false
	kept := make([]any, 0, len(clauses))
	for _, raw := range clauses {
		if clause, ok := raw.(map[string]any); ok {
			if v, present := clause[key]; present {
				if s, isStr := v.(string); isStr {
					val, found = s, true
				}
				delete(clause, key)
				if len(clause) == 0 {
					continue
				}
			}
		}
		kept = append(kept, raw)
	}
	if len(kept) == 0 {
		delete(f, "$and")
	} else {
		f["$and"] = kept
	}
	return val, found
}

// AppendAnd appends clauses to the "$and" list, creating it when absent.
func (f Filter) AppendAnd(clauses ...any) {
	existing := f.AndClauses()
	f["$and"] = append(existing, clauses...)
}

// Clone returns a shallow-ish copy safe for per-step mutation: the top-level
// map and the "$and" slice are copied, clause maps are shared.
func (f Filter) Clone() Filter {
	if f == nil {
		return nil
	}
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	if clauses := f.AndClauses(); clauses != nil {
		cp := make([]any, len(clauses))
		copy(cp, clauses)
		out["$and"] = cp
	}
	return out
}

// =============================================================================
// PLAN / STEP / TASK
// =============================================================================

// Task is the typed instruction carried by a plan step.
type Task struct {
	Type      string `json:"type,omitempty"`
	QueryText string `json:"query_text,omitempty"`
	Filters   Filter `json:"filters,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Step is one stage of an execution plan.
type Step struct {
	Agent AgentKind `json:"agent"`
	Task  Task      `json:"task"`
}

// ActionKey returns a canonical string for the step's retrieval action,
// used to detect consecutive identical retrievals. encoding/json writes
// map keys in sorted order, so equal tasks produce equal keys.
func (s *Step) ActionKey() string {
	b, err := json.Marshal(struct {
		Agent AgentKind `json:"agent"`
		Task  Task      `json:"task"`
	}{s.Agent, s.Task})
	if err != nil {
		return fmt.Sprintf("%s|%s|%s", s.Agent, s.Task.Type, s.Task.QueryText)
	}
	return string(b)
}

// Plan is the structured pipeline the planner produces for one user query.
type Plan struct {
	UserQuery string `json:"user_query"`
	Steps     []Step `json:"steps"`
}

// Validate checks the structural contract: at least one step, every step
// naming a known agent.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, step := range p.Steps {
		if !step.Agent.Valid() {
			return fmt.Errorf("step %d: unknown agent %q", i, step.Agent)
		}
	}
	return nil
}
