// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/jeranaias/linesight/internal/model"
)

// Fixed execution timestamp: Wednesday 2025-06-18 10:30 UTC.
var testNow = time.Date(2025, 6, 18, 10, 30, 0, 0, time.UTC)

func epochBounds(t *testing.T, f model.Filter) (int64, int64) {
	t.Helper()
	clauses := f.AndClauses()
	if len(clauses) < 2 {
		t.Fatalf("expected at least 2 $and clauses, got %d", len(clauses))
	}
	var gte, lte int64
	var haveGte, haveLte bool
	for _, raw := range clauses {
		clause, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rangeDoc, ok := clause[model.FieldEpoch].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := rangeDoc["$gte"].(int64); ok {
			gte, haveGte = v, true
		}
		if v, ok := rangeDoc["$lte"].(int64); ok {
			lte, haveLte = v, true
		}
	}
	if !haveGte || !haveLte {
		t.Fatalf("missing epoch bounds in %v", clauses)
	}
	return gte, lte
}

// =============================================================================
// PHRASE PARSING
// =============================================================================

func TestParse_RelativePhrases(t *testing.T) {
	r := NewResolver(testNow)

	tests := []struct {
		phrase string
		want   time.Time
	}{
		{"today", time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC)},
		{"this week", time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)},
		{"last week", time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)},
		{"this month", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"last month", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"last 3 days", time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"past 2 weeks", time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := r.Parse(tt.phrase)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.phrase, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("Parse(%q) = %v, want %v", tt.phrase, got, tt.want)
		}
	}
}

func TestParse_Garbage(t *testing.T) {
	r := NewResolver(testNow)
	if _, err := r.Parse("the day the machine wept"); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("error = %v, want ErrUnparseable", err)
	}
}

// =============================================================================
// PLAN RESOLUTION
// =============================================================================

func retrievalStep(filters model.Filter) model.Step {
	return model.Step{
		Agent: model.AgentRetrieval,
		Task:  model.Task{Type: model.TaskMetadataQuery, Filters: filters},
	}
}

func TestResolvePlan_AppendsRangeClauses(t *testing.T) {
	filters := model.Filter{
		model.FilterDateStart: "yesterday",
		model.FilterDateEnd:   "yesterday",
		"$and":                []any{map[string]any{"Line": "L2"}},
	}
	plan := &model.Plan{Steps: []model.Step{retrievalStep(filters)}}

	NewResolver(testNow).ResolvePlan(plan)

	if _, ok := filters[model.FilterDateStart]; ok {
		t.Error("date start key must be removed")
	}
	if _, ok := filters[model.FilterDateEnd]; ok {
		t.Error("date end key must be removed")
	}

	clauses := filters.AndClauses()
	if len(clauses) != 3 {
		t.Fatalf("$and clauses = %d, want 3 (line + two date bounds)", len(clauses))
	}

	gte, lte := epochBounds(t, filters)
	wantStart := time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC).Unix()
	wantEnd := time.Date(2025, 6, 17, 23, 59, 59, 999000000, time.UTC).Unix()
	if gte != wantStart {
		t.Errorf("$gte = %d, want %d", gte, wantStart)
	}
	if lte != wantEnd {
		t.Errorf("$lte = %d, want %d", lte, wantEnd)
	}
	if lte <= gte {
		t.Error("same-day range must be inclusive, end must exceed start")
	}
}

func TestResolvePlan_PopsKeysNestedInAnd(t *testing.T) {
	filters := model.Filter{
		"$and": []any{
			map[string]any{"Line": "L2"},
			map[string]any{model.FilterDateStart: "July 1, 2024"},
			map[string]any{model.FilterDateEnd: "July 1, 2024"},
		},
	}
	plan := &model.Plan{Steps: []model.Step{retrievalStep(filters)}}

	NewResolver(testNow).ResolvePlan(plan)

	for _, raw := range filters.AndClauses() {
		clause, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if _, bad := clause[model.FilterDateStart]; bad {
			t.Error("nested date start clause must be removed")
		}
		if _, bad := clause[model.FilterDateEnd]; bad {
			t.Error("nested date end clause must be removed")
		}
	}
	if len(filters.AndClauses()) != 3 {
		t.Fatalf("$and clauses = %d, want 3 (line + two date bounds)", len(filters.AndClauses()))
	}

	gte, lte := epochBounds(t, filters)
	wantStart := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC).Unix()
	wantEnd := time.Date(2024, 7, 1, 23, 59, 59, 999000000, time.UTC).Unix()
	if gte != wantStart || lte != wantEnd {
		t.Errorf("bounds = [%d, %d], want [%d, %d]", gte, lte, wantStart, wantEnd)
	}
}

func TestResolvePlan_SameDayEndExtendsToEndOfDay(t *testing.T) {
	filters := model.Filter{
		model.FilterDateStart: "2025-06-10",
		model.FilterDateEnd:   "2025-06-10",
	}
	plan := &model.Plan{Steps: []model.Step{retrievalStep(filters)}}

	NewResolver(testNow).ResolvePlan(plan)

	gte, lte := epochBounds(t, filters)
	want := time.Date(2025, 6, 10, 23, 59, 59, 999000000, time.UTC).Unix()
	if lte != want {
		t.Errorf("$lte = %d, want %d (end of the shared day)", lte, want)
	}
	if lte <= gte {
		t.Error("single-day range must not be empty")
	}
}

func TestResolvePlan_MultiDayEndStaysAtMidnight(t *testing.T) {
	filters := model.Filter{
		model.FilterDateStart: "2025-06-01",
		model.FilterDateEnd:   "2025-06-05",
	}
	plan := &model.Plan{Steps: []model.Step{retrievalStep(filters)}}

	NewResolver(testNow).ResolvePlan(plan)

	_, lte := epochBounds(t, filters)
	want := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC).Unix()
	if lte != want {
		t.Errorf("$lte = %d, want %d (midnight, no widening across days)", lte, want)
	}
}

func TestResolvePlan_CreatesAndWhenAbsent(t *testing.T) {
	filters := model.Filter{
		model.FilterDateStart: "last week",
		model.FilterDateEnd:   "today",
	}
	plan := &model.Plan{Steps: []model.Step{retrievalStep(filters)}}

	NewResolver(testNow).ResolvePlan(plan)

	if len(filters.AndClauses()) != 2 {
		t.Fatalf("$and clauses = %d, want 2", len(filters.AndClauses()))
	}
}

func TestResolvePlan_IncompletePairAborts(t *testing.T) {
	filters := model.Filter{
		model.FilterDateStart: "yesterday",
		"Line":                "L1",
	}
	plan := &model.Plan{Steps: []model.Step{retrievalStep(filters)}}

	NewResolver(testNow).ResolvePlan(plan)

	if filters.AndClauses() != nil {
		t.Error("no range clauses must be added for an incomplete pair")
	}
	if _, ok := filters[model.FilterDateStart]; ok {
		t.Error("date key must still be removed")
	}
	if filters["Line"] != "L1" {
		t.Error("unrelated filter keys must survive")
	}
}

func TestResolvePlan_FailureIsolatedPerStep(t *testing.T) {
	bad := model.Filter{
		model.FilterDateStart: "gibberish phrase",
		model.FilterDateEnd:   "today",
	}
	good := model.Filter{
		model.FilterDateStart: "today",
		model.FilterDateEnd:   "today",
	}
	plan := &model.Plan{Steps: []model.Step{retrievalStep(bad), retrievalStep(good)}}

	NewResolver(testNow).ResolvePlan(plan)

	if bad.AndClauses() != nil {
		t.Error("failed step must not gain range clauses")
	}
	if len(good.AndClauses()) != 2 {
		t.Errorf("later step must still resolve, got %d clauses", len(good.AndClauses()))
	}
}

func TestResolvePlan_SkipsNonRetrievalSteps(t *testing.T) {
	filters := model.Filter{
		model.FilterDateStart: "today",
		model.FilterDateEnd:   "today",
	}
	plan := &model.Plan{Steps: []model.Step{{
		Agent: model.AgentAnalysis,
		Task:  model.Task{Type: model.TaskTotalDowntime, Filters: filters},
	}}}

	NewResolver(testNow).ResolvePlan(plan)

	if _, ok := filters[model.FilterDateStart]; !ok {
		t.Error("analysis step filters must be left alone")
	}
}

func TestClock_AnchorsEachPlanAtCallTime(t *testing.T) {
	calls := 0
	clock := NewClock(func() time.Time {
		calls++
		// First plan runs on the 18th, second on the 19th.
		return testNow.AddDate(0, 0, calls-1)
	})

	first := model.Filter{
		model.FilterDateStart: "today",
		model.FilterDateEnd:   "today",
	}
	second := model.Filter{
		model.FilterDateStart: "today",
		model.FilterDateEnd:   "today",
	}
	clock.ResolvePlan(&model.Plan{Steps: []model.Step{retrievalStep(first)}})
	clock.ResolvePlan(&model.Plan{Steps: []model.Step{retrievalStep(second)}})

	firstStart, _ := epochBounds(t, first)
	secondStart, _ := epochBounds(t, second)
	if secondStart-firstStart != 24*60*60 {
		t.Errorf("plans must anchor at their own call time, got starts %d and %d", firstStart, secondStart)
	}
}

func TestClock_NilNowDefaultsToWallClock(t *testing.T) {
	clock := NewClock(nil)
	if clock.now == nil {
		t.Fatal("nil now must default to time.Now")
	}
	if d := time.Since(clock.now()); d < 0 || d > time.Minute {
		t.Errorf("default clock should track wall time, drift %v", d)
	}
}
