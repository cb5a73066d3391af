// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package analysis turns retrieved record sets into the aggregate shapes
// the synthesizer consumes.
//
// Five behaviors are supported: total downtime, per-line aggregation, note
// frequency ranking, embedding clustering, and a passthrough formatter for
// everything else. Analysis is pure computation over records already in
// memory; it performs no I/O. Failures produce error result objects rather
// than aborting the turn.
package analysis

import (
	"math"
	"sort"

	"github.com/jeranaias/linesight/internal/model"
)

// Result shape budgets.
const (
	// TopIncidents caps the highlighted incidents of the total analysis.
	TopIncidents = 5

	// TopLines caps the per-line ranking.
	TopLines = 5

	// TopCauses caps the frequency ranking.
	TopCauses = 5

	// DisplayLimit caps the passthrough formatter for downtime logs.
	DisplayLimit = 10

	// KnownIssueDisplayLimit caps the passthrough formatter for known
	// issues, which arrive pre-ranked by similarity.
	KnownIssueDisplayLimit = 3
)

// Error messages surfaced to the synthesizer.
const (
	msgNoNotes       = "No notes were found to analyze."
	msgNotEnoughData = "Not enough data to perform analysis."
)

// Engine executes analysis tasks.
type Engine struct{}

// NewEngine creates an analysis engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Execute runs one analysis task over a record set. Unknown task types fall
// through to the passthrough formatter so "show me everything" queries still
// produce output.
func (e *Engine) Execute(task model.Task, rs *model.RecordSet) model.AnalysisResult {
	switch task.Type {
	case model.TaskTotalDowntime:
		return e.totalDowntime(rs)
	case model.TaskAggregateLine:
		return e.aggregateByLine(rs)
	case model.TaskFrequentCauses:
		return e.frequentCauses(rs)
	case model.TaskClusterCauses:
		return e.clusterCauses(rs)
	default:
		return e.passthrough(rs)
	}
}

// =============================================================================
// TOTAL DOWNTIME
// =============================================================================

// totalDowntime sums the duration of every record and highlights the
// longest incidents. An empty set yields zeros, not an error.
func (e *Engine) totalDowntime(rs *model.RecordSet) model.AnalysisResult {
	var total float64
	incidents := make([]model.Incident, 0, len(rs.Records))

	for i := range rs.Records {
		rec := &rs.Records[i]
		minutes := rec.Minutes()
		total += minutes
		incidents = append(incidents, model.Incident{
			Minutes:   minutes,
			Note:      rec.Note(),
			Line:      rec.Line(),
			Timestamp: rec.Timestamp(),
		})
	}

	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].Minutes > incidents[j].Minutes
	})
	if len(incidents) > TopIncidents {
		incidents = incidents[:TopIncidents]
	}

	return model.AnalysisResult{
		Kind:         model.KindTotal,
		TotalMinutes: total,
		EntryCount:   len(rs.Records),
		TopIncidents: incidents,
	}
}

// =============================================================================
// PER-LINE AGGREGATION
// =============================================================================

// aggregateByLine sums downtime per production line and ranks the worst.
func (e *Engine) aggregateByLine(rs *model.RecordSet) model.AnalysisResult {
	perLine := map[string]float64{}
	order := []string{}

	for i := range rs.Records {
		rec := &rs.Records[i]
		line := rec.Line()
		if _, seen := perLine[line]; !seen {
			order = append(order, line)
		}
		perLine[line] += rec.Minutes()
	}

	totals := make([]model.LineTotal, 0, len(order))
	for _, line := range order {
		totals = append(totals, model.LineTotal{Line: line, TotalMinutes: perLine[line]})
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].TotalMinutes > totals[j].TotalMinutes
	})
	if len(totals) > TopLines {
		totals = totals[:TopLines]
	}

	return model.AnalysisResult{Kind: model.KindPerLine, TopLines: totals}
}

// =============================================================================
// FREQUENT CAUSES
// =============================================================================

// frequentCauses ranks verbatim notes by occurrence. Records without a note
// are excluded from both the ranking and the percentage base.
func (e *Engine) frequentCauses(rs *model.RecordSet) model.AnalysisResult {
	counts := map[string]int{}
	order := []string{}
	totalNoted := 0

	for i := range rs.Records {
		note := rs.Records[i].Document
		if note == "" {
			continue
		}
		totalNoted++
		if _, seen := counts[note]; !seen {
			order = append(order, note)
		}
		counts[note]++
	}

	if totalNoted == 0 {
		return model.ErrorResult(msgNoNotes)
	}

	ranked := make([]model.CauseCount, 0, len(order))
	for _, note := range order {
		count := counts[note]
		ranked = append(ranked, model.CauseCount{
			Note:          note,
			IncidentCount: count,
			Percentage:    round1(float64(count) / float64(totalNoted) * 100),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].IncidentCount > ranked[j].IncidentCount
	})
	if len(ranked) > TopCauses {
		ranked = ranked[:TopCauses]
	}

	return model.AnalysisResult{
		Kind:           model.KindFrequency,
		TotalNoted:     totalNoted,
		FrequentCauses: ranked,
	}
}

// =============================================================================
// PASSTHROUGH
// =============================================================================

// passthrough formats raw records for display. Downtime logs are ranked by
// duration; known issues keep their similarity order from retrieval.
func (e *Engine) passthrough(rs *model.RecordSet) model.AnalysisResult {
	incidents := make([]model.Incident, 0, len(rs.Records))
	for i := range rs.Records {
		rec := &rs.Records[i]
		incidents = append(incidents, model.Incident{
			Minutes:   rec.Minutes(),
			Note:      rec.Note(),
			Line:      rec.Line(),
			Timestamp: rec.Timestamp(),
		})
	}

	limit := DisplayLimit
	if rs.KnownIssues() {
		limit = KnownIssueDisplayLimit
	} else {
		sort.SliceStable(incidents, func(i, j int) bool {
			return incidents[i].Minutes > incidents[j].Minutes
		})
	}
	if len(incidents) > limit {
		incidents = incidents[:limit]
	}

	return model.AnalysisResult{
		Kind:             model.KindDisplay,
		EntryCount:       len(rs.Records),
		DisplayIncidents: incidents,
	}
}

// round1 rounds to one decimal place.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
