// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package planner turns a user query into a structured execution plan.
//
// The generator prompts the completion service with a fixed instruction
// template, few-shot examples, and the trimmed conversation history, and
// expects a single JSON object back. Planning never fails the turn: any
// generation or parse error degrades to a one-step synthesis plan carrying
// an apology message, so the user always receives an answer.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/linesight/internal/llm"
	"github.com/jeranaias/linesight/internal/model"
)

// FallbackMessage is carried by the degraded plan when generation fails.
const FallbackMessage = "I encountered an error while trying to create a plan to answer your query. I will do my best to answer directly."

// maxResponseSize bounds the planner completion we are willing to parse.
const maxResponseSize = 1024 * 1024 // 1MB

var whitespaceRun = regexp.MustCompile(`\s+`)

// Completer is the slice of the completion client the planner needs.
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Generator generates execution plans from user queries.
type Generator struct {
	completer Completer
	planModel string
	logger    *log.Logger
	now       func() time.Time
}

// NewGenerator creates a plan generator using the given completion model.
func NewGenerator(completer Completer, planModel string) *Generator {
	return &Generator{
		completer: completer,
		planModel: planModel,
		now:       time.Now,
	}
}

// WithLogger attaches a logger for generation failures.
func (g *Generator) WithLogger(logger *log.Logger) *Generator {
	g.logger = logger
	return g
}

// WithClock overrides the time source. Used by tests to pin the prompt date.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a plan for the user query. The returned plan is always
// usable: on any failure it is the fallback synthesis-only plan.
func (g *Generator) Generate(ctx context.Context, userQuery string, history []model.Message) *model.Plan {
	messages := make([]llm.ChatMessage, 0, len(fewShotExamples)+len(history)+2)
	messages = append(messages, llm.NewSystemMessage(fmt.Sprintf(promptTemplate, g.now().Format(time.RFC3339))))
	messages = append(messages, fewShotExamples...)
	for _, msg := range history {
		messages = append(messages, llm.ChatMessage{Role: msg.Role.String(), Content: msg.Content})
	}
	messages = append(messages, llm.NewUserMessage(userQuery))

	resp, err := g.completer.Chat(ctx, llm.ChatRequest{
		Model:       g.planModel,
		Messages:    messages,
		Temperature: 0.01,
		MaxTokens:   1024,
		ResponseFormat: &llm.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: planSchema,
		},
	})
	if err != nil {
		return g.fallback(userQuery, fmt.Errorf("completion failed: %w", err))
	}

	plan, err := parsePlanResponse(resp.GetContent())
	if err != nil {
		return g.fallback(userQuery, err)
	}
	if plan.UserQuery == "" {
		plan.UserQuery = userQuery
	}
	return plan
}

// fallback builds the degraded single-step synthesis plan.
func (g *Generator) fallback(userQuery string, cause error) *model.Plan {
	if g.logger != nil {
		g.logger.Printf("PLAN_FALLBACK | err=%v", cause)
	}
	return &model.Plan{
		UserQuery: userQuery,
		Steps: []model.Step{{
			Agent: model.AgentSynthesis,
			Task:  model.Task{Message: FallbackMessage},
		}},
	}
}

// parsePlanResponse parses the completion output into a validated plan.
// Markdown code fences are stripped and whitespace runs collapsed before
// decoding, since smaller models wrap JSON despite instructions.
func parsePlanResponse(response string) (*model.Plan, error) {
	if len(response) > maxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes (max: %d)", len(response), maxResponseSize)
	}

	response = strings.TrimSpace(response)
	if strings.Contains(response, "```") {
		response = strings.ReplaceAll(response, "```json", "")
		response = strings.ReplaceAll(response, "```", "")
	}
	response = strings.TrimSpace(whitespaceRun.ReplaceAllString(response, " "))

	var plan model.Plan
	if err := json.Unmarshal([]byte(response), &plan); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &plan, nil
}
