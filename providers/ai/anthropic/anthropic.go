package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/observability"
)

const providerName = "anthropic"

// DefaultModel is used when neither the request nor WithDefaultModel names one.
const DefaultModel = anthropic.ModelClaude3_7SonnetLatest

const defaultMaxTokens int64 = 4096

// Credentials identify the account and endpoint a Provider talks to.
type Credentials struct {
	APIKey  string
	BaseURL string // empty keeps the SDK default
}

// Provider implements ai.Provider for the Messages API.
type Provider struct {
	client       anthropic.Client
	apiKey       string
	defaultModel string
	maxTokens    int64
	httpClient   *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

func WithDefaultModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.defaultModel = model
		}
	}
}

// WithMaxTokens sets max_tokens, which the Messages API requires on every call.
func WithMaxTokens(maxTokens int64) Option {
	return func(p *Provider) {
		if maxTokens > 0 {
			p.maxTokens = maxTokens
		}
	}
}

// New builds a Provider from explicit credentials. The SDK is never allowed
// to read ANTHROPIC_API_KEY on its own.
func New(creds Credentials, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       creds.APIKey,
		defaultModel: string(DefaultModel),
		maxTokens:    defaultMaxTokens,
		httpClient:   &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(creds.APIKey),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	}
	if creds.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(creds.BaseURL))
	}
	p.client = anthropic.NewClient(clientOpts...)
	return p
}

func (p *Provider) Name() string { return providerName }

// SendMessage implements ai.Provider.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: API key is not set", ai.ErrAuthentication)
	}

	params := p.buildParams(request)

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventLLMRequestStart)
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, providerName),
			observability.String(observability.AttrLLMModel, string(params.Model)),
			observability.Bool(observability.AttrLLMStreaming, false),
		)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	response := messageToGeneric(msg)
	observability.AddSpanEvent(ctx, observability.EventLLMRequestEnd,
		observability.String(observability.AttrLLMFinishReason, response.FinishReason),
	)
	return response, nil
}

func (p *Provider) buildParams(request ai.ChatRequest) anthropic.MessageNewParams {
	model := request.Model
	if model == "" {
		model = p.defaultModel
	}

	maxTokens := p.maxTokens
	if cfg := request.GenerationConfig; cfg != nil && cfg.MaxTokens > 0 {
		maxTokens = int64(cfg.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  buildMessages(request.Messages),
	}
	if request.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: request.SystemPrompt}}
	}
	if cfg := request.GenerationConfig; cfg != nil {
		if cfg.Temperature > 0 {
			params.Temperature = anthropic.Float(float64(cfg.Temperature))
		}
		if cfg.TopP > 0 {
			params.TopP = anthropic.Float(float64(cfg.TopP))
		}
	}
	if len(request.Tools) > 0 {
		params.Tools = buildTools(request.Tools)
	}
	return params
}

// classifyError maps SDK failures onto the ai sentinels.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %w", ai.ErrAuthentication, err)
		case apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout ||
			apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", ai.ErrTransport, err)
		default:
			return fmt.Errorf("%w: %w", ai.ErrModel, err)
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || strings.Contains(err.Error(), "unmarshal") {
		return fmt.Errorf("%w: %w", ai.ErrMalformedResponse, err)
	}
	return fmt.Errorf("%w: %w", ai.ErrTransport, err)
}
