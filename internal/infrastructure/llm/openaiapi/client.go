// Package openaiapi talks to an OpenAI-compatible provider for embeddings
// and chat completions. The wire shape is a transport detail; any provider
// exposing the same endpoints can sit behind it.
package openaiapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/draftwell/docassist/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	apiKey     string
	embedModel string
	chatModel  string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, apiKey, embedModel, chatModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		embedModel: embedModel,
		chatModel:  chatModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, operation, call, classifyProviderError)
}

func (c *Client) checkCredentials(operation string) error {
	if c.apiKey == "" {
		return fmt.Errorf("%s: provider credentials not configured", operation)
	}
	return nil
}
