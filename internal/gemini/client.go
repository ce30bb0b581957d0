// Package gemini is the adapter for the hosted Gemini multimodal endpoint.
// It speaks the v1beta REST API directly: generateContent for the model
// call, the Files API for whole-video upload.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kothari1/NuFleet-AI-SOP/internal/sop"
)

// Config for the client. Zero values fall back to sane defaults in
// NewClient.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt, applied
	// only to transient failures.
	MaxRetries uint64

	// RetryInitialInterval seeds the exponential backoff between attempts.
	RetryInitialInterval time.Duration

	// PollInterval is the wait between Files API state checks.
	PollInterval time.Duration
}

// Client calls the Gemini API. All methods honor the caller's context; the
// client holds no per-request state.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient builds a client with defaults filled in.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.RetryInitialInterval == 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *Client) buildHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
}

// Wire types for the generateContent endpoint.

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type geminiFileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the request to the model, retrying transient failures up to
// MaxRetries times, and returns the raw response text with no
// post-processing.
func (c *Client) Generate(ctx context.Context, req *sop.Request) (string, error) {
	body, err := c.buildGenerateBody(req)
	if err != nil {
		return "", err
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		text, err := c.generateOnce(ctx, body)
		if err != nil {
			if sop.IsKind(err, sop.KindTransient) {
				c.logger.Warn("transient model failure", "attempt", attempt, "error", err)
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return text, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInitialInterval
	return backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx))
}

func (c *Client) buildGenerateBody(req *sop.Request) ([]byte, error) {
	parts := []geminiPart{{Text: req.Prompt}}

	if req.VideoFileURI != "" {
		mime := req.VideoMIMEType
		if mime == "" {
			mime = "video/mp4"
		}
		parts = append(parts, geminiPart{FileData: &geminiFileData{MimeType: mime, FileURI: req.VideoFileURI}})
	}

	for _, frame := range req.Frames {
		data, err := os.ReadFile(frame.Path)
		if err != nil {
			return nil, fmt.Errorf("read frame %q: %w", frame.Path, err)
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}
	return json.Marshal(body)
}

func (c *Client) generateOnce(ctx context.Context, payload []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.buildHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &sop.Error{Kind: sop.KindTransient, Message: "model request failed", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", mapHTTPError(resp.StatusCode, readErrMsg(resp.Body))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", &sop.Error{Kind: sop.KindTransient, Message: "undecodable model response", HTTPStatus: resp.StatusCode, Retryable: true, Err: err}
	}

	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return "", sop.RequestErrorf("prompt blocked by content policy: %s", gr.PromptFeedback.BlockReason)
	}
	if len(gr.Candidates) == 0 {
		return "", sop.RequestErrorf("model returned no candidates")
	}

	candidate := gr.Candidates[0]
	if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "PROHIBITED_CONTENT" {
		return "", sop.RequestErrorf("response blocked: finish reason %s", candidate.FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", sop.RequestErrorf("model returned an empty response")
	}
	return sb.String(), nil
}

// ListModels returns the IDs of models that support generateContent.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models", c.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.buildHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &sop.Error{Kind: sop.KindTransient, Message: "list models request failed", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrMsg(resp.Body))
	}

	var modelsResp struct {
		Models []struct {
			Name             string   `json:"name"`
			SupportedMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, &sop.Error{Kind: sop.KindTransient, Message: "undecodable models response", Retryable: true, Err: err}
	}

	var ids []string
	for _, m := range modelsResp.Models {
		for _, method := range m.SupportedMethods {
			if method == "generateContent" {
				ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
				break
			}
		}
	}
	return ids, nil
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp geminiErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
	}
	return string(data)
}

// mapHTTPError sorts endpoint failures into the two kinds the pipeline
// distinguishes: rate limits and server-side trouble are transient, anything
// the API rejected outright is not.
func mapHTTPError(status int, msg string) *sop.Error {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return &sop.Error{Kind: sop.KindTransient, Message: msg, HTTPStatus: status, Retryable: true}
	default:
		return &sop.Error{Kind: sop.KindRequest, Message: msg, HTTPStatus: status}
	}
}
