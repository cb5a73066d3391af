// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package synthesis streams the final natural-language answer for a turn.
//
// The synthesizer is handed the user's query, the evidence payload the
// orchestrator accumulated, and the trimmed conversation history. It streams
// the completion back to the caller one chunk at a time and returns the full
// answer so the orchestrator can persist it only after a clean stream.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/jeranaias/linesight/internal/llm"
	"github.com/jeranaias/linesight/internal/model"
)

// Generation parameters for the final answer.
const (
	answerTemperature = 0.7
	answerMaxTokens   = 1000
)

// Streamer is the slice of the completion client the synthesizer needs.
type Streamer interface {
	ChatStream(ctx context.Context, req llm.ChatRequest, callback llm.StreamCallback) error
}

// Synthesizer turns an evidence payload into a streamed answer.
type Synthesizer struct {
	streamer Streamer
	model    string
	logger   *log.Logger
}

// NewSynthesizer creates a synthesizer using the given completion model.
func NewSynthesizer(streamer Streamer, model string) *Synthesizer {
	return &Synthesizer{streamer: streamer, model: model}
}

// WithLogger attaches a logger for stream failures.
func (s *Synthesizer) WithLogger(logger *log.Logger) *Synthesizer {
	s.logger = logger
	return s
}

// Stream generates the final answer, calling emit with one chunk event per
// content fragment. It returns the complete trimmed answer on success. If
// emit fails (caller went away) the completion stream is cancelled and the
// emit error is returned; partial answers are never returned as successes.
func (s *Synthesizer) Stream(ctx context.Context, query string, payload *model.Payload, history []model.Message, emit func(model.StreamEvent) error) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.NewSystemMessage(systemPrompt))
	for _, msg := range history {
		messages = append(messages, llm.ChatMessage{Role: msg.Role.String(), Content: msg.Content})
	}
	messages = append(messages, llm.NewUserMessage(fmt.Sprintf("A user asked: '%s'\nThe analysis found: %s", query, data)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var accumulated strings.Builder
	var emitErr error
	err = s.streamer.ChatStream(ctx, llm.ChatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	}, func(chunk llm.StreamChunk) {
		if emitErr != nil {
			return
		}
		content := chunk.GetContent()
		if content == "" {
			return
		}
		accumulated.WriteString(content)
		if err := emit(model.ChunkEvent(content)); err != nil {
			emitErr = err
			cancel()
		}
	})

	if emitErr != nil {
		if s.logger != nil {
			s.logger.Printf("SYNTHESIS_ABORT | err=%v", emitErr)
		}
		return "", emitErr
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("SYNTHESIS_FAIL | err=%v", err)
		}
		return "", err
	}
	return strings.TrimSpace(accumulated.String()), nil
}
