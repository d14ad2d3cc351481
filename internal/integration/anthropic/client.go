// Package anthropic клиент Messages API для генерации статей блога.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/internal/resilience"
	"github.com/Dhoini/ekaty/pkg/logger"
)

const (
	serviceName = "anthropic"
	apiVersion  = "2023-06-01"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	ID         string `json:"id"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Completion ответ модели
type Completion struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Client клиент Anthropic Messages API
type Client struct {
	http    *http.Client
	cfg     config.AnthropicConfig
	breaker *resilience.Breaker
	policy  resilience.RetryPolicy
	metrics metrics.IntegrationMetrics
	log     *logger.Logger
}

// NewClient создает клиент. Без ключа Complete возвращает domain.ErrNotConfigured.
func NewClient(cfg config.AnthropicConfig, m metrics.IntegrationMetrics, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		cfg:     cfg,
		breaker: resilience.NewBreaker(serviceName, 3, time.Minute, log),
		policy: resilience.RetryPolicy{
			InitialInterval: 2 * time.Second,
			MaxInterval:     20 * time.Second,
			MaxElapsedTime:  3 * time.Minute,
			MaxRetries:      3,
		},
		metrics: m,
		log:     log,
	}
}

// SetRetryPolicy меняет политику повторов
func (c *Client) SetRetryPolicy(p resilience.RetryPolicy) {
	c.policy = p
}

// Configured сообщает, задан ли API ключ
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// Complete отправляет один запрос пользователя с системной инструкцией и возвращает текст ответа
func (c *Client) Complete(ctx context.Context, system, prompt string) (*Completion, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("anthropic: %w", domain.ErrNotConfigured)
	}
	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}

	var out *Completion
	start := time.Now()
	err = resilience.Retry(ctx, c.policy, func() error {
		err := c.breaker.Do(func() error {
			res, err := c.send(ctx, body)
			if err == nil {
				out = res
			}
			return err
		}, isTransient)
		if err != nil && !isTransient(err) {
			return resilience.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		c.log.Warnw("Anthropic request failed, retrying", "wait", wait, "error", err)
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ObserveExternalCall(serviceName, outcome, time.Since(start))
	if err != nil {
		return nil, err
	}
	c.log.Infow("Anthropic completion received", "model", c.cfg.Model,
		"inputTokens", out.InputTokens, "outputTokens", out.OutputTokens, "stopReason", out.StopReason)
	return out, nil
}

func (c *Client) send(ctx context.Context, body []byte) (*Completion, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewExternalServiceError(serviceName, "transport", "request failed", 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, domain.NewExternalServiceError(serviceName, "transport", "read body", 0, err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		_ = json.Unmarshal(data, &apiErr)
		code := apiErr.Error.Type
		if code == "" {
			code = "http"
		}
		return nil, domain.NewExternalServiceError(serviceName, code, apiErr.Error.Message, resp.StatusCode, nil)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, domain.NewExternalServiceError(serviceName, "decode", "invalid JSON", resp.StatusCode, err)
	}
	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Completion{
		Text:         text.String(),
		StopReason:   parsed.StopReason,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

func isTransient(err error) bool {
	var ext *domain.ExternalServiceError
	if errors.As(err, &ext) {
		// 529 overloaded тоже попадает в >= 500
		return ext.Temporary()
	}
	return false
}

// ExtractJSON вырезает первый JSON объект из ответа модели (модель иногда
// оборачивает его в ```json блок или добавляет пояснение)
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in model response", domain.ErrInvalidOperation)
	}
	return text[start : end+1], nil
}
