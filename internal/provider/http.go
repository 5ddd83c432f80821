package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"docforge/internal/services"
)

// HTTPProvider calls a remote enhancement service over JSON/HTTP. One
// endpoint per operation: /v1/analyze, /v1/plan, /v1/generate,
// /v1/compose.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// HTTPOptions configures an HTTPProvider.
type HTTPOptions struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewHTTP builds an HTTP-backed provider.
func NewHTTP(opts HTTPOptions) (*HTTPProvider, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("provider base url is required")
	}
	name := opts.Name
	if name == "" {
		name = "enhance-api"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPProvider{
		name:    name,
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		model:   opts.Model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *HTTPProvider) Name() string { return p.name }

type envelope struct {
	Model      string `json:"model,omitempty"`
	Request    `json:"request"`
	Analysis   *Analysis   `json:"analysis,omitempty"`
	Plan       *Plan       `json:"plan,omitempty"`
	Generation *Generation `json:"generation,omitempty"`
}

func (p *HTTPProvider) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	var out Analysis
	if err := p.call(ctx, "/v1/analyze", envelope{Model: p.model, Request: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) Plan(ctx context.Context, req Request, analysis *Analysis) (*Plan, error) {
	var out Plan
	if err := p.call(ctx, "/v1/plan", envelope{Model: p.model, Request: req, Analysis: analysis}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request, plan *Plan) (*Generation, error) {
	var out Generation
	if err := p.call(ctx, "/v1/generate", envelope{Model: p.model, Request: req, Plan: plan}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) Compose(ctx context.Context, req Request, generation *Generation) (*Composition, error) {
	var out Composition
	if err := p.call(ctx, "/v1/compose", envelope{Model: p.model, Request: req, Generation: generation}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) call(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "", "provider", fmt.Sprintf("%s %s timed out", p.name, path), err)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return services.Wrap(services.ErrProvider, "", "provider", fmt.Sprintf("%s %s unreachable", p.name, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return p.classifyStatus(path, resp.StatusCode, string(detail))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrProvider, "", "provider", fmt.Sprintf("%s %s returned malformed response", p.name, path), err)
	}
	return nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy. 4xx
// responses other than 408/429 are treated as non-retryable.
func (p *HTTPProvider) classifyStatus(path string, status int, detail string) error {
	message := fmt.Sprintf("%s %s failed with status %d: %s", p.name, path, status, detail)
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return services.Wrap(services.ErrTimeout, "", "provider", message, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return services.Wrap(services.ErrProvider, "", "provider", message, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "", "provider", message, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrPermission, "", "provider", message, nil)
	default:
		return services.Wrap(services.ErrValidation, "", "provider", message, nil)
	}
}
