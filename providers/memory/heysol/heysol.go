package heysol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/leofalp/mammochat/internal/utils"
	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/observability"
)

const (
	// DefaultBaseURL is the hosted memory service.
	DefaultBaseURL = "https://core.heysol.ai/api/v1"

	searchEndpoint = "/search"
	addEndpoint    = "/add"
	spacesEndpoint = "/spaces"

	backendName = "heysol"
)

// Credentials are passed explicitly; the client never reads the environment.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// Client is a memory.Provider backed by the remote memory service.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

var _ memory.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. A nil client is ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRateLimit bounds outbound calls to rps requests per second with the
// given burst. Calls wait for a token using the caller's context. A
// non-positive rps removes the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New builds a Client. An empty BaseURL selects DefaultBaseURL. A missing API
// key is not an error here: every call then fails with ErrAuthentication
// without touching the network.
func New(creds Credentials, opts ...Option) *Client {
	baseURL := strings.TrimRight(creds.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		apiKey:  strings.TrimSpace(creds.APIKey),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string { return c.baseURL }

type searchBody struct {
	Query              string   `json:"query"`
	SpaceIDs           []string `json:"spaceIds,omitempty"`
	Limit              int      `json:"limit"`
	IncludeInvalidated bool     `json:"includeInvalidated"`
}

type ingestBody struct {
	EpisodeBody string `json:"episodeBody"`
	ReferenceAt string `json:"referenceTime"`
	Source      string `json:"source"`
	SpaceID     string `json:"spaceId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
}

// Search runs POST {base}/search.
func (c *Client) Search(ctx context.Context, request memory.SearchRequest) (*memory.SearchResult, error) {
	request, err := request.Normalize()
	if err != nil {
		return nil, err
	}
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	observability.AddSpanEvent(ctx, observability.EventMemorySearch,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.Int(observability.AttrMemoryLimit, request.Limit),
		observability.Strings(observability.AttrMemorySpaceIDs, request.SpaceIDs),
	)

	body := searchBody{
		Query:              request.Query,
		SpaceIDs:           request.SpaceIDs,
		Limit:              request.Limit,
		IncludeInvalidated: request.IncludeInvalidated,
	}

	_, result, err := utils.DoPostSync[memory.SearchResult](ctx, c.client, c.baseURL+searchEndpoint, c.apiKey, body)
	if err != nil {
		return nil, classifyError("search", err)
	}
	return result, nil
}

// Ingest runs POST {base}/add. The service answers with the new episode's ID
// only, so the returned Episode echoes the request fields.
func (c *Client) Ingest(ctx context.Context, request memory.IngestRequest) (*memory.Episode, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	observability.AddSpanEvent(ctx, observability.EventMemoryIngest,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.Int(observability.AttrMemoryTextLength, len(request.Text)),
	)

	now := time.Now().UTC()
	body := ingestBody{
		EpisodeBody: request.Text,
		ReferenceAt: now.Format(time.RFC3339),
		Source:      request.Source,
		SpaceID:     request.SpaceID,
		SessionID:   request.SessionID,
	}

	_, raw, err := utils.DoPostSync[json.RawMessage](ctx, c.client, c.baseURL+addEndpoint, c.apiKey, body)
	if err != nil {
		return nil, classifyError("ingest", err)
	}

	var ack memory.Episode
	if err := json.Unmarshal(*raw, &ack); err != nil {
		return nil, fmt.Errorf("%w: ingest: %w", memory.ErrMalformedResponse, err)
	}

	return &memory.Episode{
		ID:        ack.ID,
		Body:      request.Text,
		SpaceID:   request.SpaceID,
		SessionID: request.SessionID,
		Source:    request.Source,
		CreatedAt: now,
	}, nil
}

// ListSpaces runs GET {base}/spaces.
func (c *Client) ListSpaces(ctx context.Context) ([]memory.Space, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	observability.AddSpanEvent(ctx, observability.EventMemoryListSpaces,
		observability.String(observability.AttrMemoryBackend, backendName),
	)

	_, raw, err := utils.DoGetSync[json.RawMessage](ctx, c.client, c.baseURL+spacesEndpoint, c.apiKey)
	if err != nil {
		return nil, classifyError("list spaces", err)
	}

	spaces, err := memory.DecodeSpaces(*raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memory.ErrMalformedResponse, err)
	}
	return spaces, nil
}

// ready fails fast on a missing key and then waits for the rate limiter.
func (c *Client) ready(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: no API key configured", memory.ErrAuthentication)
	}
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", memory.ErrTransport, err)
	}
	return nil
}

func classifyError(op string, err error) error {
	var statusErr *utils.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.IsAuth() {
			return fmt.Errorf("%w: %s: %w", memory.ErrAuthentication, op, err)
		}
		return fmt.Errorf("%w: %s: %w", memory.ErrTransport, op, err)
	}

	var decodeErr *utils.DecodeError
	if errors.As(err, &decodeErr) {
		return fmt.Errorf("%w: %s: %w", memory.ErrMalformedResponse, op, err)
	}

	return fmt.Errorf("%w: %s: %w", memory.ErrTransport, op, err)
}
