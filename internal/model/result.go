// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "encoding/json"

// =============================================================================
// ANALYSIS RESULT UNION
// =============================================================================

// ResultKind tags which analysis shape an AnalysisResult carries.
type ResultKind int

const (
	KindNone ResultKind = iota
	KindTotal
	KindPerLine
	KindFrequency
	KindClusters
	KindDisplay
	KindError
)

// Incident is one downtime event surfaced to the synthesizer.
type Incident struct {
	Minutes   float64 `json:"minutes"`
	Note      string  `json:"note"`
	Line      string  `json:"line"`
	Timestamp string  `json:"timestamp"`
}

// LineTotal is the aggregate downtime for one production line.
type LineTotal struct {
	Line         string  `json:"line"`
	TotalMinutes float64 `json:"total_downtime_minutes"`
}

// CauseCount is one entry of the frequency analysis.
type CauseCount struct {
	Note          string  `json:"note"`
	IncidentCount int     `json:"incident_count"`
	Percentage    float64 `json:"percentage"`
}

// ClusterCause is one cluster-level aggregate of the embedding analysis.
type ClusterCause struct {
	Label         string  `json:"cluster_label"`
	TotalMinutes  float64 `json:"total_downtime_minutes"`
	IncidentCount int     `json:"incident_count"`
}

// AnalysisResult is the tagged union of every analysis output shape. Only
// the fields belonging to Kind are meaningful; MarshalJSON emits the shape
// the synthesizer prompt expects for that kind.
type AnalysisResult struct {
	Kind ResultKind `json:"-"`

	// KindTotal
	TotalMinutes float64    `json:"-"`
	EntryCount   int        `json:"-"`
	TopIncidents []Incident `json:"-"`

	// KindPerLine
	TopLines []LineTotal `json:"-"`

	// KindFrequency
	TotalNoted     int          `json:"-"`
	FrequentCauses []CauseCount `json:"-"`

	// KindClusters
	TopCauses []ClusterCause `json:"-"`

	// KindDisplay (passthrough)
	DisplayIncidents []Incident `json:"-"`

	// KindError
	Err string `json:"-"`
}

// MarshalJSON writes the kind-specific object shape.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindTotal:
		return json.Marshal(struct {
			TotalMinutes float64    `json:"total_downtime_minutes"`
			EntryCount   int        `json:"entry_count"`
			TopIncidents []Incident `json:"top_downtimes"`
		}{r.TotalMinutes, r.EntryCount, nonNilIncidents(r.TopIncidents)})
	case KindPerLine:
		return json.Marshal(struct {
			TopLines []LineTotal `json:"top_lines_by_downtime"`
		}{nonNilLines(r.TopLines)})
	case KindFrequency:
		return json.Marshal(struct {
			TotalNoted     int          `json:"total_logs_analyzed"`
			FrequentCauses []CauseCount `json:"most_frequent_downtimes"`
		}{r.TotalNoted, nonNilCauses(r.FrequentCauses)})
	case KindClusters:
		return json.Marshal(struct {
			TopCauses []ClusterCause `json:"top_causes"`
		}{nonNilClusters(r.TopCauses)})
	case KindDisplay:
		return json.Marshal(struct {
			EntryCount       int        `json:"entry_count"`
			DisplayIncidents []Incident `json:"display_incidents"`
		}{r.EntryCount, nonNilIncidents(r.DisplayIncidents)})
	case KindError:
		return json.Marshal(struct {
			Err string `json:"error"`
		}{r.Err})
	}
	return []byte("{}"), nil
}

// ErrorResult builds a KindError result carrying a caller-facing message.
func ErrorResult(msg string) AnalysisResult {
	return AnalysisResult{Kind: KindError, Err: msg}
}

func nonNilIncidents(s []Incident) []Incident {
	if s == nil {
		return []Incident{}
	}
	return s
}

func nonNilLines(s []LineTotal) []LineTotal {
	if s == nil {
		return []LineTotal{}
	}
	return s
}

func nonNilCauses(s []CauseCount) []CauseCount {
	if s == nil {
		return []CauseCount{}
	}
	return s
}

func nonNilClusters(s []ClusterCause) []ClusterCause {
	if s == nil {
		return []ClusterCause{}
	}
	return s
}

// =============================================================================
// SYNTHESIS PAYLOAD
// =============================================================================

// Payload is the accumulated evidence handed to the synthesizer. Results are
// partitioned by the collection their source records came from so the answer
// can distinguish documented known issues from raw downtime logs. Merging is
// additive with key-level last-write-wins inside each bucket.
type Payload struct {
	KnownIssues map[string]json.RawMessage `json:"known_issue_results,omitempty"`
	Downtime    map[string]json.RawMessage `json:"downtime_log_results,omitempty"`
	Message     string                     `json:"message,omitempty"`
	FailedAgent string                     `json:"error_agent,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

// Merge folds an analysis result into the bucket for its source collection.
// Keys produced by the result overwrite keys of the same name from earlier
// steps; keys from other shapes are preserved.
func (p *Payload) Merge(knownIssues bool, result AnalysisResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	bucket := &p.Downtime
	if knownIssues {
		bucket = &p.KnownIssues
	}
	if *bucket == nil {
		*bucket = make(map[string]json.RawMessage, len(fields))
	}
	for k, v := range fields {
		(*bucket)[k] = v
	}
	return nil
}

// SetError records a contained step failure for the synthesizer to explain.
func (p *Payload) SetError(agent AgentKind, msg string) {
	p.FailedAgent = string(agent)
	p.Error = msg
}

// Empty reports whether no evidence, message, or error has accumulated.
func (p *Payload) Empty() bool {
	return len(p.KnownIssues) == 0 && len(p.Downtime) == 0 &&
		p.Message == "" && p.Error == ""
}
