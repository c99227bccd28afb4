package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/leofalp/mammochat/internal/utils"
	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/observability"
)

const (
	DefaultBaseURL          = "https://api.openai.com/v1"
	chatCompletionsEndpoint = "/chat/completions"
	modelsEndpoint          = "/models"
	providerName            = "openai"
)

// Credentials identify the account and endpoint a Provider talks to.
type Credentials struct {
	APIKey  string
	BaseURL string // defaults to DefaultBaseURL
}

// Provider implements ai.StreamProvider over the chat completions endpoint.
type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used for outbound requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithDefaultModel sets the model used when a request does not name one.
func WithDefaultModel(model string) Option {
	return func(p *Provider) {
		p.defaultModel = model
	}
}

// New builds a Provider from explicit credentials.
func New(creds Credentials, opts ...Option) *Provider {
	baseURL := strings.TrimRight(creds.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p := &Provider{
		apiKey:  creds.APIKey,
		baseURL: baseURL,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

// BaseURL returns the endpoint root the provider was configured with.
func (p *Provider) BaseURL() string { return p.baseURL }

// SendMessage implements ai.Provider.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: API key is not set", ai.ErrAuthentication)
	}

	p.annotateSpan(ctx, request, false)

	chatRequest := requestToChatCompletion(p.withModel(request))
	_, resp, err := utils.DoPostSync[chatCompletionResponse](ctx, p.client, p.baseURL+chatCompletionsEndpoint, p.apiKey, chatRequest)
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", ai.ErrMalformedResponse)
	}

	response := chatCompletionToGeneric(*resp)
	observability.AddSpanEvent(ctx, observability.EventLLMRequestEnd,
		observability.String(observability.AttrLLMFinishReason, response.FinishReason),
	)
	return response, nil
}

// Ping checks that the endpoint is reachable and accepts the credential by
// listing models. It spends no tokens.
func (p *Provider) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("%w: API key is not set", ai.ErrAuthentication)
	}
	_, _, err := utils.DoGetSync[modelList](ctx, p.client, p.baseURL+modelsEndpoint, p.apiKey)
	if err != nil {
		return classifyError(err)
	}
	return nil
}

func (p *Provider) withModel(request ai.ChatRequest) ai.ChatRequest {
	if request.Model == "" {
		request.Model = p.defaultModel
	}
	return request
}

func (p *Provider) annotateSpan(ctx context.Context, request ai.ChatRequest, streaming bool) {
	span := observability.SpanFromContext(ctx)
	if span == nil {
		return
	}
	span.AddEvent(observability.EventLLMRequestStart)
	span.SetAttributes(
		observability.String(observability.AttrLLMProvider, providerName),
		observability.String(observability.AttrLLMEndpoint, p.baseURL),
		observability.String(observability.AttrLLMModel, p.withModel(request).Model),
		observability.Bool(observability.AttrLLMStreaming, streaming),
	)
}

// classifyError maps transport-level failures onto the ai sentinels. The
// original error stays in the chain so context errors remain detectable.
func classifyError(err error) error {
	var statusErr *utils.StatusError
	var decodeErr *utils.DecodeError

	switch {
	case errors.As(err, &statusErr):
		switch {
		case statusErr.IsAuth():
			return fmt.Errorf("%w: %w", ai.ErrAuthentication, err)
		case statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", ai.ErrTransport, err)
		default:
			return fmt.Errorf("%w: %w", ai.ErrModel, err)
		}
	case errors.As(err, &decodeErr):
		return fmt.Errorf("%w: %w", ai.ErrMalformedResponse, err)
	default:
		return fmt.Errorf("%w: %w", ai.ErrTransport, err)
	}
}
