// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator drives one query turn end to end.
//
// The engine persists the user's message, loads the trimmed history, asks the
// planner for an execution plan, resolves the plan's date phrases, then walks
// the plan's steps with a hard ceiling. Retrieval and analysis results
// accumulate in a payload partitioned by source collection; any step failure
// is contained and forwarded to the synthesizer instead of aborting the turn.
// Every turn ends in exactly one synthesis, streamed to the caller.
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/linesight/internal/model"
)

// Defaults for the turn-shaping knobs. Overridden from config.
const (
	DefaultMaxSteps     = 5
	DefaultHistoryTurns = 25
)

// Caller-facing status messages.
const (
	statusPlanning     = "Creating a plan..."
	statusRetrieving   = "Retrieving records..."
	statusAnalyzing    = "Analyzing results..."
	statusSynthesizing = "Synthesizing response..."
)

// synthesisFailedMessage is shown when the final answer stream fails.
const synthesisFailedMessage = "An error occurred while generating the response."

// Planner produces an execution plan. Planning never fails: the planner
// substitutes a fallback plan on any error.
type Planner interface {
	Generate(ctx context.Context, userQuery string, history []model.Message) *model.Plan
}

// Resolver rewrites natural-language date filters in place.
type Resolver interface {
	ResolvePlan(plan *model.Plan)
}

// Retriever executes one retrieval task.
type Retriever interface {
	Execute(ctx context.Context, task model.Task) (*model.RecordSet, error)
}

// Analyzer executes one analysis task over retrieved records.
type Analyzer interface {
	Execute(task model.Task, rs *model.RecordSet) model.AnalysisResult
}

// Synthesizer streams the final answer and returns the full text.
type Synthesizer interface {
	Stream(ctx context.Context, query string, payload *model.Payload, history []model.Message, emit func(model.StreamEvent) error) (string, error)
}

// ConversationLog is the slice of the store the engine needs.
type ConversationLog interface {
	EnsureConversation(ctx context.Context, conversationID, sessionID, firstQuery string) error
	AppendMessage(ctx context.Context, msg model.Message) error
	History(ctx context.Context, conversationID, sessionID string, limit int) ([]model.Message, error)
}

// Engine is the turn state machine.
type Engine struct {
	planner      Planner
	resolver     Resolver
	retriever    Retriever
	analyzer     Analyzer
	synthesizer  Synthesizer
	conversation ConversationLog

	maxSteps     int
	historyTurns int
	logger       *log.Logger
	now          func() time.Time
}

// NewEngine wires the collaborators into a turn engine.
func NewEngine(planner Planner, resolver Resolver, retriever Retriever, analyzer Analyzer, synthesizer Synthesizer, conversation ConversationLog) *Engine {
	return &Engine{
		planner:      planner,
		resolver:     resolver,
		retriever:    retriever,
		analyzer:     analyzer,
		synthesizer:  synthesizer,
		conversation: conversation,
		maxSteps:     DefaultMaxSteps,
		historyTurns: DefaultHistoryTurns,
		now:          time.Now,
	}
}

// WithMaxSteps sets the step ceiling per turn.
func (e *Engine) WithMaxSteps(n int) *Engine {
	if n > 0 {
		e.maxSteps = n
	}
	return e
}

// WithHistoryTurns sets how many trailing messages feed planning and
// synthesis.
func (e *Engine) WithHistoryTurns(n int) *Engine {
	if n > 0 {
		e.historyTurns = n
	}
	return e
}

// WithLogger attaches a logger.
func (e *Engine) WithLogger(logger *log.Logger) *Engine {
	e.logger = logger
	return e
}

// ProcessQuery runs one turn, emitting stream events through emit. The first
// event is always the conversation identity and the last is done. The
// returned error is non-nil only when emit itself fails, meaning the caller
// is gone and no further events can be delivered.
func (e *Engine) ProcessQuery(ctx context.Context, query string, reqCtx model.RequestContext, emit func(model.StreamEvent) error) error {
	conversationID := reqCtx.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	if err := emit(model.ConversationEvent(conversationID)); err != nil {
		return err
	}

	// Store failures are contained: the turn still produces an answer, it
	// just will not be replayable.
	if err := e.conversation.EnsureConversation(ctx, conversationID, reqCtx.SessionID, query); err != nil {
		e.logf("CONVERSATION_FAIL | id=%s err=%v", conversationID, err)
	}
	if err := e.conversation.AppendMessage(ctx, model.Message{
		ConversationID: conversationID,
		SessionID:      reqCtx.SessionID,
		Role:           model.RoleUser,
		Content:        query,
		Timestamp:      e.now().UTC(),
	}); err != nil {
		e.logf("PERSIST_FAIL | role=user err=%v", err)
	}

	history, err := e.conversation.History(ctx, conversationID, reqCtx.SessionID, e.historyTurns)
	if err != nil {
		e.logf("HISTORY_FAIL | id=%s err=%v", conversationID, err)
		history = nil
	}
	// The turn we just persisted is passed separately as the query.
	if n := len(history); n > 0 && history[n-1].Role == model.RoleUser && history[n-1].Content == query {
		history = history[:n-1]
	}

	if err := emit(model.StatusEvent(statusPlanning)); err != nil {
		return err
	}
	plan := e.planner.Generate(ctx, query, history)
	e.resolver.ResolvePlan(plan)

	payload := &model.Payload{}
	var current *model.RecordSet
	lastAction := ""

	steps := plan.Steps
	if len(steps) > e.maxSteps {
		e.logf("PLAN_TRUNCATED | steps=%d ceiling=%d", len(steps), e.maxSteps)
		steps = steps[:e.maxSteps]
	}

stepLoop:
	for i, step := range steps {
		switch step.Agent {
		case model.AgentRetrieval:
			key := step.ActionKey()
			if key == lastAction {
				e.logf("LOOP_DETECTED | step=%d action=%s", i, key)
				break stepLoop
			}
			if err := emit(model.StatusEvent(statusRetrieving)); err != nil {
				return err
			}
			rs, err := e.retriever.Execute(ctx, step.Task)
			if err != nil {
				e.logf("STEP_FAIL | step=%d agent=retrieval err=%v", i, err)
				payload.SetError(step.Agent, err.Error())
				break stepLoop
			}
			lastAction = key
			current = rs
			// Records enter the payload immediately so plans that skip
			// analysis still hand evidence to the synthesizer.
			if err := payload.Merge(rs.KnownIssues(), e.analyzer.Execute(model.Task{}, rs)); err != nil {
				e.logf("STEP_FAIL | step=%d agent=retrieval err=%v", i, err)
				payload.SetError(step.Agent, err.Error())
				break stepLoop
			}

		case model.AgentAnalysis:
			if current == nil {
				e.logf("STEP_FAIL | step=%d agent=analysis err=no records retrieved", i)
				payload.SetError(step.Agent, "no records were retrieved to analyze")
				break stepLoop
			}
			if err := emit(model.StatusEvent(statusAnalyzing)); err != nil {
				return err
			}
			result := e.analyzer.Execute(step.Task, current)
			if err := payload.Merge(current.KnownIssues(), result); err != nil {
				e.logf("STEP_FAIL | step=%d agent=analysis err=%v", i, err)
				payload.SetError(step.Agent, err.Error())
				break stepLoop
			}

		case model.AgentSynthesis:
			// Synthesis is terminal. Remaining steps are dropped.
			if step.Task.Message != "" {
				payload.Message = step.Task.Message
			}
			return e.synthesize(ctx, query, payload, history, conversationID, reqCtx.SessionID, emit)
		}
	}

	// Plan exhausted or loop broken without a synthesis step.
	return e.synthesize(ctx, query, payload, history, conversationID, reqCtx.SessionID, emit)
}

// synthesize streams the final answer, persists it after a clean stream, and
// terminates the event stream.
func (e *Engine) synthesize(ctx context.Context, query string, payload *model.Payload, history []model.Message, conversationID, sessionID string, emit func(model.StreamEvent) error) error {
	if err := emit(model.StatusEvent(statusSynthesizing)); err != nil {
		return err
	}

	answer, err := e.synthesizer.Stream(ctx, query, payload, history, emit)
	if err != nil {
		e.logf("SYNTHESIS_FAIL | id=%s err=%v", conversationID, err)
		if emitErr := emit(model.ErrorEvent(synthesisFailedMessage)); emitErr != nil {
			return emitErr
		}
		return emit(model.DoneEvent())
	}

	if err := e.conversation.AppendMessage(ctx, model.Message{
		ConversationID: conversationID,
		SessionID:      sessionID,
		Role:           model.RoleAssistant,
		Content:        answer,
		Timestamp:      e.now().UTC(),
	}); err != nil {
		e.logf("PERSIST_FAIL | role=assistant err=%v", err)
	}
	return emit(model.DoneEvent())
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
