// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package temporal rewrites natural-language date hints in plan filters
// into epoch-second range clauses the vector store can evaluate.
//
// The planner emits "natural_language_date_start" / "natural_language_date_end"
// filter keys holding phrases like "yesterday" or "last week". The resolver
// pops both keys from each retrieval step, parses them relative to a fixed
// execution timestamp, and appends $gte/$lte clauses on the record's epoch
// field to the step's $and list. A step whose phrases cannot be resolved
// keeps its remaining filters and executes without a date restriction.
package temporal

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/jeranaias/linesight/internal/model"
)

// Sentinel errors.
var (
	// ErrUnparseable indicates a date phrase could not be interpreted.
	ErrUnparseable = errors.New("unparseable date phrase")

	// ErrIncompletePair indicates only one of start/end was provided.
	ErrIncompletePair = errors.New("date range requires both start and end")
)

// Resolver rewrites date phrases in plans. The execution timestamp is fixed
// per turn so every step of one plan resolves against the same "now".
type Resolver struct {
	now    time.Time
	loc    *time.Location
	logger *log.Logger
}

// NewResolver creates a resolver anchored at the given execution timestamp.
func NewResolver(now time.Time) *Resolver {
	return &Resolver{now: now, loc: now.Location()}
}

// WithLogger attaches a logger for per-step resolution failures.
func (r *Resolver) WithLogger(logger *log.Logger) *Resolver {
	r.logger = logger
	return r
}

// ResolvePlan rewrites every retrieval step's date hints in place. Failures
// are isolated per step: a step that cannot be resolved is stripped of its
// date keys and left otherwise intact, and later steps still resolve.
func (r *Resolver) ResolvePlan(plan *model.Plan) {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Agent != model.AgentRetrieval || step.Task.Filters == nil {
			continue
		}
		if err := r.resolveStep(step.Task.Filters); err != nil {
			if r.logger != nil {
				r.logger.Printf("TEMPORAL_SKIP | step=%d err=%v", i, err)
			}
		}
	}
}

// resolveStep pops the date hint keys and, when both parse, appends the
// epoch range clauses to the filter's $and list (creating it if absent).
// The hint keys may sit at the top level or nested inside an existing $and
// clause; both locations are stripped so no transient key survives.
func (r *Resolver) resolveStep(filters model.Filter) error {
	startPhrase, hasStart := popDateKey(filters, model.FilterDateStart)
	endPhrase, hasEnd := popDateKey(filters, model.FilterDateEnd)

	if !hasStart && !hasEnd {
		return nil
	}
	if !hasStart || !hasEnd {
		return ErrIncompletePair
	}

	start, err := r.Parse(startPhrase)
	if err != nil {
		return fmt.Errorf("start %q: %w", startPhrase, err)
	}
	end, err := r.Parse(endPhrase)
	if err != nil {
		return fmt.Errorf("end %q: %w", endPhrase, err)
	}
	// A single-day range whose end parsed to bare midnight would be empty;
	// extend it to the last instant of that day.
	if sameDay(start, end) && isMidnight(end) {
		end = endOfDay(end)
	}

	filters.AppendAnd(
		map[string]any{model.FieldEpoch: map[string]any{"$gte": start.Unix()}},
		map[string]any{model.FieldEpoch: map[string]any{"$lte": end.Unix()}},
	)
	return nil
}

// popDateKey removes the hint key from the filter's top level and from any
// nested $and clause. The top-level value wins when both are present.
func popDateKey(filters model.Filter, key string) (string, bool) {
	top, hasTop := filters.PopString(key)
	nested, hasNested := filters.PopAndString(key)
	if hasTop {
		return top, true
	}
	return nested, hasNested
}

// =============================================================================
// PHRASE PARSING
// =============================================================================

var lastNPattern = regexp.MustCompile(`^(?:last|past)\s+(\d+)\s+(day|week|month|year)s?$`)

// Parse interprets one date phrase relative to the resolver's timestamp.
// Relative phrases resolve to the start instant of their period; bare dates
// resolve to midnight. Range inclusivity is the caller's concern.
func (r *Resolver) Parse(phrase string) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return time.Time{}, ErrUnparseable
	}

	if t, ok := r.parseRelative(p); ok {
		return t, nil
	}

	t, err := dateparse.ParseIn(phrase, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return t, nil
}

// parseRelative handles the relative vocabulary the planner is prompted to
// use. Returns the start instant of the named period.
func (r *Resolver) parseRelative(p string) (time.Time, bool) {
	now := r.now
	switch p {
	case "now":
		return now, true
	case "today":
		return startOfDay(now), true
	case "yesterday":
		return startOfDay(now.AddDate(0, 0, -1)), true
	case "tomorrow":
		return startOfDay(now.AddDate(0, 0, 1)), true
	case "this week":
		return startOfWeek(now), true
	case "last week":
		return startOfWeek(now).AddDate(0, 0, -7), true
	case "this month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc), true
	case "last month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc).AddDate(0, -1, 0), true
	case "this year":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, r.loc), true
	case "last year":
		return time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, r.loc), true
	}

	if m := lastNPattern.FindStringSubmatch(p); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		base := startOfDay(now)
		switch m[2] {
		case "day":
			return base.AddDate(0, 0, -n), true
		case "week":
			return base.AddDate(0, 0, -7*n), true
		case "month":
			return base.AddDate(0, -n, 0), true
		case "year":
			return base.AddDate(-n, 0, 0), true
		}
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// endOfDay returns 23:59:59.999 of t's day.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999000000, t.Location())
}

// startOfWeek returns midnight Monday of t's week.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the preceding week
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock resolves each plan against a fresh execution timestamp, for
// long-running processes where a fixed anchor would drift.
type Clock struct {
	now    func() time.Time
	logger *log.Logger
}

// NewClock creates a per-turn resolver factory. A nil now defaults to
// time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// WithLogger attaches a logger for per-step resolution failures.
func (c *Clock) WithLogger(logger *log.Logger) *Clock {
	c.logger = logger
	return c
}

// ResolvePlan anchors a resolver at the current time and rewrites the plan.
func (c *Clock) ResolvePlan(plan *model.Plan) {
	NewResolver(c.now()).WithLogger(c.logger).ResolvePlan(plan)
}
