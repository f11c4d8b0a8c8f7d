package openaiapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/draftwell/docassist/internal/core/domain"
)

const completionTemperature = 0.2

// Completer implements ports.Completer.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, messages []domain.ChatMessage, maxTokens int) (string, error) {
	if err := c.client.checkCredentials("complete"); err != nil {
		return "", err
	}

	request := chatRequest(c.client.chatModel, messages, maxTokens, false)
	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := c.client.execute(ctx, "provider.complete", func(callCtx context.Context) error {
		return c.client.postJSON(callCtx, "/v1/chat/completions", request, &response, "complete")
	})
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("complete: empty choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// CompleteStream reads the provider's SSE stream and hands each content
// delta to emit. A non-nil error from emit aborts the stream.
func (c *Completer) CompleteStream(ctx context.Context, messages []domain.ChatMessage, maxTokens int, emit func(delta string) error) error {
	if err := c.client.checkCredentials("complete"); err != nil {
		return err
	}

	request := chatRequest(c.client.chatModel, messages, maxTokens, true)
	resp, err := c.client.post(ctx, "/v1/chat/completions", request, "complete_stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
			continue
		}
		if err := emit(event.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read completion stream: %w", err)
	}
	return nil
}

func chatRequest(model string, messages []domain.ChatMessage, maxTokens int, stream bool) map[string]any {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return map[string]any{
		"model":       model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": completionTemperature,
		"stream":      stream,
	}
}
