// Package ai Gemini 模型服务客户端与 HTTP 处理
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/containerd/errdefs"

	"entropy-gateway/internal/config"
)

// Options 单次补全的生成参数，零值使用客户端默认值
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Completer 文本补全接口
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// Client generativelanguage REST 客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	defaults   Options
}

// NewClient 创建 Gemini 客户端
func NewClient(cfg config.AIConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout.Std()},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		defaults: Options{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
	}
}

// ============================================================================
// generateContent 请求/响应结构
// ============================================================================

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Complete 调用 generateContent 并返回首个候选的文本
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if opts.Temperature == 0 {
		opts.Temperature = c.defaults.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = c.defaults.MaxTokens
	}

	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     opts.Temperature,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: opts.MaxTokens,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Join(errdefs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Join(errdefs.ErrUnavailable, err)
	}

	var genResp generateResponse
	if resp.StatusCode != http.StatusOK {
		// 错误体尽力解析，拿不到结构化信息就只带状态码
		json.Unmarshal(body, &genResp)
		return "", wrapStatusError(resp.StatusCode, genResp.Error)
	}
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	if genResp.PromptFeedback.BlockReason != "" {
		return "", errors.Join(errdefs.ErrInvalidArgument,
			fmt.Errorf("prompt blocked: %s", genResp.PromptFeedback.BlockReason))
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model returned no candidates")
	}

	var text string
	for _, p := range genResp.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text, nil
}

// wrapStatusError 将 HTTP 状态码映射到领域错误
func wrapStatusError(status int, apiErr *apiError) error {
	msg := "model request failed"
	if apiErr != nil && apiErr.Message != "" {
		msg = apiErr.Message
	}
	err := fmt.Errorf("%s (status %d)", msg, status)

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.Join(errdefs.ErrUnavailable, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Join(errdefs.ErrUnauthenticated, err)
	case status == http.StatusBadRequest:
		return errors.Join(errdefs.ErrInvalidArgument, err)
	default:
		return err
	}
}

var _ Completer = (*Client)(nil)
