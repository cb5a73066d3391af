// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// BLOCKING CHAT TESTS
// =============================================================================

func TestChat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "test-id",
			"model": "test-model",
			"choices": [{
				"message": {"role": "assistant", "content": "hello back"},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 5, "total_tokens": 10}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	resp, err := client.Chat(context.Background(), ChatRequest{
		Model:    "test-model",
		Messages: []ChatMessage{NewUserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got := resp.GetContent(); got != "hello back" {
		t.Errorf("content = %q, want %q", got, "hello back")
	}
}

func TestChat_NoAuthHeaderWhenKeyEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if _, err := client.Chat(context.Background(), ChatRequest{Model: "m"}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
}

func TestChat_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"transient"}}`))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"recovered"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k").WithMaxRetries(2)
	resp, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.GetContent() != "recovered" {
		t.Errorf("content = %q, want recovered", resp.GetContent())
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestChat_AuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad").WithMaxRetries(3)
	_, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("error = %v, want ErrAuthFailed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (auth errors are not retryable)", calls.Load())
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	_, err := client.Complete(context.Background(), ChatRequest{Model: "m"})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("error = %v, want ErrEmptyCompletion", err)
	}
}

func TestChat_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, "k").WithMaxRetries(0)
	_, err := client.Chat(ctx, ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_ReadEvent(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("first event: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("first event = %q", data)
	}

	_, data, err = reader.ReadEvent()
	if err != nil {
		t.Fatalf("second event: %v", err)
	}
	if string(data) != `{"b":2}` {
		t.Errorf("second event = %q", data)
	}

	_, data, err = reader.ReadEvent()
	if err != nil {
		t.Fatalf("third event: %v", err)
	}
	if string(data) != "[DONE]" {
		t.Errorf("third event = %q", data)
	}
}

func TestSSEReader_IgnoresComments(t *testing.T) {
	input := ": keepalive\nid: 7\ndata: payload\n\n"
	reader := NewSSEReader(strings.NewReader(input))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("data = %q, want payload", data)
	}
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func sseChunk(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"},"finish_reason":""}]}` + "\n\n"
}

func TestChatStream_Chunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sseChunk("Hello") + sseChunk(" world") + "data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	var got []string
	err := client.ChatStream(context.Background(), ChatRequest{Model: "m"}, func(chunk StreamChunk) {
		got = append(got, chunk.GetContent())
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if len(got) != 2 || got[0] != "Hello" || got[1] != " world" {
		t.Errorf("chunks = %v", got)
	}
}

func TestChatStreamAccumulate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sseChunk("one ") + sseChunk("two") + "data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	full, err := client.ChatStreamAccumulate(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("accumulate failed: %v", err)
	}
	if full != "one two" {
		t.Errorf("accumulated = %q, want %q", full, "one two")
	}
}

func TestChatStream_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	err := client.ChatStream(context.Background(), ChatRequest{Model: "m"}, func(StreamChunk) {})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
}
