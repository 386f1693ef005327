// Package ollama implements llm.Provider against a local Ollama server,
// adapted from the teacher's OllamaEmbedder: a connection-pooled
// *http.Client with a deliberately short idle-connection timeout (Ollama
// clients are typically short-lived CLI invocations, not long-running
// daemons) and per-request context timeouts rather than a client-level
// Timeout, so a single slow embed doesn't force every other in-flight
// request on the shared connection pool to abort too.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
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
	client    *http.Client
	cfg       config.LLMConfig
	limiter   *ratelimit.Limiter
	dims      int
}

// New builds an Ollama provider. It does not perform a health check or
// dimension auto-detection; the first Embed call determines Dimensions.
func New(cfg config.LLMConfig) *Provider {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}
	return &Provider{
		client:  &http.Client{Transport: transport},
		cfg:     cfg,
		limiter: ratelimit.New(cfg.RequestsPerMin, cfg.TokensPerMin, maxInt(1, cfg.MaxConcurrency)),
		dims:    cfg.Dimensions,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
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

	body, err := json.Marshal(embedRequest{Model: p.cfg.EmbeddingModel, Input: texts})
	if err != nil {
		return nil, errtax.ConfigError("encoding ollama embed request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, progressiveTimeout(len(texts)))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, transportErr := p.client.Do(httpReq)
	if transportErr != nil {
		return nil, llm.ClassifyHTTPError(0, "", transportErr)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, llm.ClassifyHTTPError(resp.StatusCode, string(respBody), nil)
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errtax.New(errtax.ErrCodeConversionFailed, "decoding ollama embed response", err)
	}
	if len(parsed.Embeddings) > 0 {
		p.dims = len(parsed.Embeddings[0])
	}
	return parsed.Embeddings, nil
}

// progressiveTimeout scales the per-request timeout with batch size: Ollama
// running a cold model can take tens of seconds to generate its first batch
// of embeddings, and scaling by batch size avoids hand-tuning one fixed
// number for both single-text queries and full-batch ingestion calls.
func progressiveTimeout(batchSize int) time.Duration {
	base := 30 * time.Second
	perItem := time.Duration(batchSize) * 500 * time.Millisecond
	total := base + perItem
	if total > 180*time.Second {
		return 180 * time.Second
	}
	return total
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
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

	body, err := json.Marshal(chatRequest{
		Model: p.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
	})
	if err != nil {
		return "", errtax.ConfigError("encoding ollama chat request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, progressiveTimeout(1))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, transportErr := p.client.Do(httpReq)
	if transportErr != nil {
		return "", llm.ClassifyHTTPError(0, "", transportErr)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", llm.ClassifyHTTPError(resp.StatusCode, string(respBody), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errtax.New(errtax.ErrCodeConversionFailed, "decoding ollama chat response", err)
	}
	return parsed.Message.Content, nil
}

func (p *Provider) CountTokens(text string) int { return tokenizer.Count(text) }
func (p *Provider) Dimensions() int             { return p.dims }
func (p *Provider) ModelName() string           { return p.cfg.EmbeddingModel }
func (p *Provider) Close() error                { p.client.CloseIdleConnections(); return nil }
