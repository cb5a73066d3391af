// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/linesight/internal/llm"
	"github.com/jeranaias/linesight/internal/model"
)

// fakeCompleter returns a canned completion or error.
type fakeCompleter struct {
	content string
	err     error
	lastReq llm.ChatRequest
}

func (f *fakeCompleter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	body := fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`,
		strconv.Quote(f.content))
	var resp llm.ChatResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

const validPlanJSON = `{
  "user_query": "total downtime yesterday?",
  "steps": [
    {"agent": "retrieval", "task": {"type": "metadata_query", "filters": {"natural_language_date_start": "yesterday", "natural_language_date_end": "yesterday"}}},
    {"agent": "analysis", "task": {"type": "calculate_total_downtime"}},
    {"agent": "synthesis"}
  ]
}`

func TestGenerate_ValidPlan(t *testing.T) {
	fc := &fakeCompleter{content: validPlanJSON}
	g := NewGenerator(fc, "plan-model")

	plan := g.Generate(context.Background(), "total downtime yesterday?", nil)
	if len(plan.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(plan.Steps))
	}
	if plan.Steps[0].Agent != model.AgentRetrieval {
		t.Errorf("first agent = %s", plan.Steps[0].Agent)
	}
	if plan.Steps[0].Task.Filters[model.FilterDateStart] != "yesterday" {
		t.Errorf("filters = %v", plan.Steps[0].Task.Filters)
	}
	if fc.lastReq.ResponseFormat == nil || fc.lastReq.ResponseFormat.Type != "json_schema" {
		t.Error("plan requests must be schema-constrained")
	}
	if fc.lastReq.Model != "plan-model" {
		t.Errorf("model = %s", fc.lastReq.Model)
	}
}

func TestGenerate_StripsCodeFences(t *testing.T) {
	fc := &fakeCompleter{content: "```json\n" + validPlanJSON + "\n```"}
	g := NewGenerator(fc, "m")

	plan := g.Generate(context.Background(), "q", nil)
	if len(plan.Steps) != 3 {
		t.Fatalf("fenced plan not parsed, steps = %d", len(plan.Steps))
	}
}

func TestGenerate_FallbackOnCompletionError(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("service down")}
	g := NewGenerator(fc, "m")

	plan := g.Generate(context.Background(), "my question", nil)
	if len(plan.Steps) != 1 {
		t.Fatalf("fallback steps = %d, want 1", len(plan.Steps))
	}
	step := plan.Steps[0]
	if step.Agent != model.AgentSynthesis {
		t.Errorf("fallback agent = %s, want synthesis", step.Agent)
	}
	if step.Task.Message != FallbackMessage {
		t.Errorf("fallback message = %q", step.Task.Message)
	}
	if plan.UserQuery != "my question" {
		t.Errorf("user query = %q", plan.UserQuery)
	}
}

func TestGenerate_FallbackOnGarbage(t *testing.T) {
	fc := &fakeCompleter{content: "I think you should check line 2 first."}
	g := NewGenerator(fc, "m")

	plan := g.Generate(context.Background(), "q", nil)
	if len(plan.Steps) != 1 || plan.Steps[0].Agent != model.AgentSynthesis {
		t.Fatalf("garbage output must degrade to fallback, got %+v", plan.Steps)
	}
}

func TestGenerate_FallbackOnEmptySteps(t *testing.T) {
	fc := &fakeCompleter{content: `{"user_query": "q", "steps": []}`}
	g := NewGenerator(fc, "m")

	plan := g.Generate(context.Background(), "q", nil)
	if plan.Steps[0].Task.Message != FallbackMessage {
		t.Fatal("empty plan must degrade to fallback")
	}
}

func TestGenerate_HistoryIncluded(t *testing.T) {
	fc := &fakeCompleter{content: validPlanJSON}
	g := NewGenerator(fc, "m")

	history := []model.Message{
		{Role: model.RoleUser, Content: "earlier question"},
		{Role: model.RoleAssistant, Content: "earlier answer"},
	}
	g.Generate(context.Background(), "followup", history)

	msgs := fc.lastReq.Messages
	// system + examples + 2 history + 1 user
	if len(msgs) != 1+len(fewShotExamples)+3 {
		t.Fatalf("messages = %d", len(msgs))
	}
	if msgs[len(msgs)-1].Content != "followup" {
		t.Errorf("last message = %q, want the new query", msgs[len(msgs)-1].Content)
	}
	if msgs[len(msgs)-3].Content != "earlier question" {
		t.Errorf("history not in order: %q", msgs[len(msgs)-3].Content)
	}
}

func TestGenerate_PromptCarriesCurrentDate(t *testing.T) {
	fc := &fakeCompleter{content: validPlanJSON}
	fixed := time.Date(2025, 6, 18, 10, 0, 0, 0, time.UTC)
	g := NewGenerator(fc, "m").WithClock(func() time.Time { return fixed })

	g.Generate(context.Background(), "q", nil)
	system := fc.lastReq.Messages[0]
	if system.Role != "system" {
		t.Fatalf("first message role = %s", system.Role)
	}
	if want := "2025-06-18"; !strings.Contains(system.Content, want) {
		t.Errorf("system prompt missing current date %s", want)
	}
}
