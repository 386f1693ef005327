// Package openaicompat implements llm.Provider against any OpenAI-compatible
// HTTP API (embeddings + chat completions). Its HTTP client is structured
// the way the teacher's OllamaEmbedder structures its transport: a pooled
// *http.Client with no client-level Timeout, relying on the per-request
// context deadline so slow requests are cancelled without tearing down
// pooled connections used by concurrent callers.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corpuskit/corpuskit/internal/config"
	"github.com/corpuskit/corpuskit/internal/errtax"
	"github.com/corpuskit/corpuskit/internal/llm"
	"github.com/corpuskit/corpuskit/internal/llm/ratelimit"
	"github.com/corpuskit/corpuskit/internal/llm/tokenizer"
)

type Provider struct {
	client  *http.Client
	cfg     config.LLMConfig
	limiter *ratelimit.Limiter
}

// New builds an openaicompat provider from the configured base URL and
// model; the API key, when set, is sent as a Bearer token.
func New(cfg config.LLMConfig) *Provider {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}
	return &Provider{
		client:  &http.Client{Transport: transport},
		cfg:     cfg,
		limiter: ratelimit.New(cfg.RequestsPerMin, cfg.TokensPerMin, max(1, cfg.MaxConcurrency)),
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	release, err := p.limiter.Acquire(ctx, tokenizer.CountBatch(texts))
	if err != nil {
		return nil, err
	}
	defer release()

	reqBody, err := json.Marshal(embeddingRequest{Model: p.cfg.EmbeddingModel, Input: texts})
	if err != nil {
		return nil, errtax.ConfigError("encoding embedding request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutOrDefault(p.cfg.TimeoutSeconds))*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, transportErr := p.client.Do(httpReq)
	if transportErr != nil {
		return nil, classifyAndReturn(0, "", transportErr)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, classifyAndReturn(resp.StatusCode, string(body), nil)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errtax.New(errtax.ErrCodeConversionFailed, "decoding embedding response", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if p.cfg.ChatModel == "" {
		return "", llm.ErrChatUnsupported
	}

	release, err := p.limiter.Acquire(ctx, tokenizer.Count(systemPrompt)+tokenizer.Count(userPrompt))
	if err != nil {
		return "", err
	}
	defer release()

	reqBody, err := json.Marshal(chatRequest{
		Model: p.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", errtax.ConfigError("encoding chat request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutOrDefault(p.cfg.TimeoutSeconds))*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, transportErr := p.client.Do(httpReq)
	if transportErr != nil {
		return "", classifyAndReturn(0, "", transportErr)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", classifyAndReturn(resp.StatusCode, string(body), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errtax.New(errtax.ErrCodeConversionFailed, "decoding chat response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errtax.New(errtax.ErrCodeConversionFailed, "chat response had no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

func (p *Provider) CountTokens(text string) int { return tokenizer.Count(text) }
func (p *Provider) Dimensions() int             { return p.cfg.Dimensions }
func (p *Provider) ModelName() string           { return p.cfg.EmbeddingModel }
func (p *Provider) Close() error                { p.client.CloseIdleConnections(); return nil }

func timeoutOrDefault(seconds int) int {
	if seconds <= 0 {
		return 30
	}
	return seconds
}

func classifyAndReturn(statusCode int, body string, transportErr error) error {
	err := llm.ClassifyHTTPError(statusCode, body, transportErr)
	if err == nil {
		return fmt.Errorf("openaicompat: unexpected status %d: %s", statusCode, body)
	}
	return err
}
