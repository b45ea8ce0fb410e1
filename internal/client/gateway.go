// Package client is the review dashboard's side of the gateway: it fetches the
// queue and request details, caches them with bounded freshness, and submits
// clinician decisions with the concurrency guarantees the review workflow needs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iprashantai/medrefill-mvp1/internal/review"
)

// Failure taxonomy for gateway calls. Everything not matching one of these
// sentinels is treated as transient and eligible for a single automatic retry on
// read paths.
var (
	// ErrNotFound means the request id is unknown to the gateway.
	ErrNotFound = errors.New("refill request not found")
	// ErrConflict means the request was already reviewed. Never retriable.
	ErrConflict = errors.New("refill request already reviewed")
	// ErrValidation means the gateway rejected the payload. The client never
	// builds such a payload, so seeing this is an integrity problem.
	ErrValidation = errors.New("review payload rejected")
)

// IsTransient reports whether an error is worth one automatic retry. Definitive
// gateway verdicts and caller cancellation are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Gateway is the remote query/review contract the client consumes.
type Gateway interface {
	FetchQueue(ctx context.Context) ([]review.RefillRequest, error)
	FetchDetail(ctx context.Context, id uint) (*review.DetailData, error)
	SubmitReview(ctx context.Context, id uint, decision review.Decision, reviewerID string) (*review.RefillRequest, error)
}

// GatewayConfig drives the HTTP gateway client.
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPGateway implements Gateway against the refill-requests API.
type HTTPGateway struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPGateway constructs a gateway client if configuration is valid.
func NewHTTPGateway(cfg GatewayConfig) (*HTTPGateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}, nil
}

// FetchQueue retrieves all requests visible for review.
func (g *HTTPGateway) FetchQueue(ctx context.Context) ([]review.RefillRequest, error) {
	var out []review.RefillRequest
	if err := g.getJSON(ctx, g.baseURL+"/api/v1/refill-queue", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchDetail retrieves one request's detail payload.
func (g *HTTPGateway) FetchDetail(ctx context.Context, id uint) (*review.DetailData, error) {
	var out review.DetailData
	if err := g.getJSON(ctx, fmt.Sprintf("%s/api/v1/refill-request/%d", g.baseURL, id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitReview posts the clinician decision for a request.
func (g *HTTPGateway) SubmitReview(ctx context.Context, id uint, decision review.Decision, reviewerID string) (*review.RefillRequest, error) {
	payload := struct {
		Decision string `json:"decision"`
		UserID   string `json:"user_id"`
	}{Decision: string(decision), UserID: reviewerID}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal review payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/refill-request/%d/review", g.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit review: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, err
	}

	var out review.RefillRequest
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode review response: %w", err)
	}
	return &out, nil
}

func (g *HTTPGateway) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway fetch: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

// statusError maps gateway status codes onto the client's failure taxonomy.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	detail := strings.TrimSpace(payload.Error)
	if detail == "" {
		detail = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, detail)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, detail)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrValidation, detail)
	default:
		return fmt.Errorf("gateway status %d: %s", resp.StatusCode, detail)
	}
}
