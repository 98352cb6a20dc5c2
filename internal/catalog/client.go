package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

const (
	// DefaultBaseURL is the public travel offer catalog.
	DefaultBaseURL        = "https://fake-traveloffre-api.vercel.app"
	defaultRequestTimeout = 10 * time.Second
	offersPath            = "/offres"
	maxPayloadBytes       = 8 << 20
)

var errUnexpectedStatus = errors.New("unexpected catalog status")

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithLogger attaches a zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// WithTimeout bounds each catalog request.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.timeout = timeout
		}
	}
}

// Client reads the offer listing.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// NewClient builds a catalog client rooted at baseURL, or DefaultBaseURL when empty.
func NewClient(baseURL string, options ...Option) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: http.DefaultClient,
		timeout:    defaultRequestTimeout,
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client
}

// FetchOffers returns the current listing. Any failure yields an empty slice;
// the cause is logged and never surfaced.
func (client *Client) FetchOffers(ctx context.Context) []booking.Offer {
	offers, err := client.fetch(ctx)
	if err != nil {
		client.logger.Warn("catalog fetch failed", zap.String("base_url", client.baseURL), zap.Error(err))
		return []booking.Offer{}
	}
	return offers
}

func (client *Client) fetch(ctx context.Context) ([]booking.Offer, error) {
	requestCtx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, client.baseURL+offersPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request offers: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errUnexpectedStatus, response.StatusCode)
	}
	var offers []booking.Offer
	if err := json.NewDecoder(io.LimitReader(response.Body, maxPayloadBytes)).Decode(&offers); err != nil {
		return nil, fmt.Errorf("decode offers: %w", err)
	}
	if offers == nil {
		offers = []booking.Offer{}
	}
	return offers, nil
}
