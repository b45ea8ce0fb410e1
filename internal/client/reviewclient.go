package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/iprashantai/medrefill-mvp1/internal/queue"
	"github.com/iprashantai/medrefill-mvp1/internal/review"
)

// ErrSuperseded is returned when a fetch completes after the caller has moved on
// to a different view; its result was discarded rather than applied.
var ErrSuperseded = errors.New("response superseded by a newer request")

// ErrSubmissionInFlight rejects a second review submission for a request whose
// first submission has not resolved yet.
var ErrSubmissionInFlight = errors.New("review submission already in flight")

// Options tunes the review client.
type Options struct {
	// CacheTTL bounds how long fetched data counts as fresh. Default 30s.
	CacheTTL time.Duration
	// RetryDelay is the pause before the single automatic retry on transient
	// read failures. Default 500ms.
	RetryDelay time.Duration
}

// SubmitResult reports a successful review submission. NavigateToQueue tells the
// detail view to return to the queue.
type SubmitResult struct {
	Request         *review.RefillRequest
	NavigateToQueue bool
}

// ReviewClient bridges the pure queue/review core to the remote gateway. It owns
// the query cache, collapses concurrent identical fetches, guards against stale
// responses overwriting fresher ones, and enforces submission exclusivity.
type ReviewClient struct {
	gw         Gateway
	cache      *Cache
	retryDelay time.Duration
	group      singleflight.Group

	queueSeq     uint64
	mu           sync.Mutex
	queueApplied uint64
	detailTarget uint
	inflight     map[uint]struct{}
	refreshing   bool
}

// NewReviewClient constructs a client over the supplied gateway.
func NewReviewClient(gw Gateway, opts Options) *ReviewClient {
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	return &ReviewClient{
		gw:         gw,
		cache:      NewCache(opts.CacheTTL),
		retryDelay: retryDelay,
		inflight:   make(map[uint]struct{}),
	}
}

// Cache exposes the client's query cache, mainly for subscribing to invalidations.
func (c *ReviewClient) Cache() *Cache {
	return c.cache
}

// Queue returns the last successfully fetched collection, fresh or stale. A stale
// snapshot triggers one background refresh rather than blocking the caller.
func (c *ReviewClient) Queue() []review.RefillRequest {
	value, ok, fresh := c.cache.Get(KeyQueue)
	if !ok {
		return nil
	}
	if !fresh {
		c.refreshInBackground()
	}
	return value.([]review.RefillRequest)
}

// View runs the projection pipeline over the current snapshot and returns the
// rows plus the category tallies the filter tabs need.
func (c *ReviewClient) View(opts queue.Options) ([]review.RefillRequest, queue.Counts) {
	snapshot := c.Queue()
	return queue.Project(snapshot, opts), queue.Classify(snapshot)
}

// LoadQueue returns the queue, fetching from the gateway when the cached copy is
// missing or past its freshness window. Safe to call on a poll cadence: a failed
// fetch surfaces its error but leaves the previous snapshot in place and returned.
func (c *ReviewClient) LoadQueue(ctx context.Context) ([]review.RefillRequest, error) {
	if value, ok, fresh := c.cache.Get(KeyQueue); ok && fresh {
		return value.([]review.RefillRequest), nil
	}
	return c.refreshQueue(ctx)
}

// refreshQueue fetches unconditionally. Concurrent callers share one in-flight
// fetch; a response that lost the race to a fresher one is discarded, never
// applied over it.
func (c *ReviewClient) refreshQueue(ctx context.Context) ([]review.RefillRequest, error) {
	seq := atomic.AddUint64(&c.queueSeq, 1)

	value, err, _ := c.group.Do(KeyQueue, func() (interface{}, error) {
		return c.fetchQueueOnce(ctx)
	})
	if err != nil {
		if cached, ok, _ := c.cache.Get(KeyQueue); ok {
			return cached.([]review.RefillRequest), err
		}
		return nil, err
	}
	return c.applyQueue(seq, value.([]review.RefillRequest)), nil
}

// applyQueue writes a fetched snapshot into the cache unless a fetch that
// started later has already been applied; a stale response is dropped and the
// fresher cached snapshot returned in its place.
func (c *ReviewClient) applyQueue(seq uint64, requests []review.RefillRequest) []review.RefillRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq > c.queueApplied {
		c.queueApplied = seq
		c.cache.Put(KeyQueue, requests)
		return requests
	}
	if cached, ok, _ := c.cache.Get(KeyQueue); ok {
		return cached.([]review.RefillRequest)
	}
	return requests
}

func (c *ReviewClient) fetchQueueOnce(ctx context.Context) (interface{}, error) {
	requests, err := c.gw.FetchQueue(ctx)
	if err != nil && IsTransient(err) {
		logrus.WithError(err).Debug("queue fetch failed, retrying once")
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(c.retryDelay):
		}
		requests, err = c.gw.FetchQueue(ctx)
	}
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (c *ReviewClient) refreshInBackground() {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return
	}
	c.refreshing = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.refreshing = false
			c.mu.Unlock()
		}()
		if _, err := c.refreshQueue(context.Background()); err != nil {
			logrus.WithError(err).Warn("background queue refresh")
		}
	}()
}

// LoadDetail fetches one request's detail payload. A zero id is a no-op: no
// request is selected yet. When the caller has since asked for a different id,
// the late response is discarded and ErrSuperseded returned so no state is
// updated for a view the user already left.
func (c *ReviewClient) LoadDetail(ctx context.Context, id uint) (*review.DetailData, error) {
	if id == 0 {
		return nil, nil
	}

	c.mu.Lock()
	c.detailTarget = id
	c.mu.Unlock()

	key := DetailKey(id)
	if value, ok, fresh := c.cache.Get(key); ok && fresh {
		return value.(*review.DetailData), nil
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetchDetailOnce(ctx, id)
	})

	c.mu.Lock()
	current := c.detailTarget
	c.mu.Unlock()
	if current != id {
		return nil, fmt.Errorf("detail %d: %w", id, ErrSuperseded)
	}
	if err != nil {
		return nil, err
	}

	detail := value.(*review.DetailData)
	c.cache.Put(key, detail)
	return detail, nil
}

func (c *ReviewClient) fetchDetailOnce(ctx context.Context, id uint) (interface{}, error) {
	detail, err := c.gw.FetchDetail(ctx, id)
	if err != nil && IsTransient(err) {
		logrus.WithError(err).WithField("request_id", id).Debug("detail fetch failed, retrying once")
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(c.retryDelay):
		}
		detail, err = c.gw.FetchDetail(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// CloseDetail tells the client the detail view was left. Any in-flight detail
// fetch resolves as superseded instead of updating state.
func (c *ReviewClient) CloseDetail() {
	c.mu.Lock()
	c.detailTarget = 0
	c.mu.Unlock()
}

// SubmissionPending reports whether a review for the request is in flight, so the
// detail view can disable its decision buttons.
func (c *ReviewClient) SubmissionPending(id uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.inflight[id]
	return busy
}

// SubmitReview sends the clinician decision. It is never retried automatically: a
// refill approval or denial must not be silently re-sent. At most one submission
// per request may be in flight. On success the queue and detail caches are
// invalidated, the queue refetched, and the caller told to navigate back; on
// failure both caches are left untouched and the error surfaced for an explicit
// user-initiated retry.
func (c *ReviewClient) SubmitReview(ctx context.Context, id uint, decision review.Decision, reviewerID string) (*SubmitResult, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: missing request id", ErrValidation)
	}
	if _, err := review.ParseDecision(string(decision)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	c.mu.Lock()
	if _, busy := c.inflight[id]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("request %d: %w", id, ErrSubmissionInFlight)
	}
	c.inflight[id] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
	}()

	updated, err := c.gw.SubmitReview(ctx, id, decision, reviewerID)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			logrus.WithError(err).WithField("request_id", id).Error("gateway rejected review payload")
		}
		return nil, err
	}

	c.cache.Invalidate(KeyQueue, DetailKey(id))
	if _, refreshErr := c.refreshQueue(ctx); refreshErr != nil {
		logrus.WithError(refreshErr).Warn("queue refresh after review")
	}
	return &SubmitResult{Request: updated, NavigateToQueue: true}, nil
}

// Poll calls LoadQueue on the supplied cadence until the context is done. Failures
// are logged and the last snapshot stays visible; the next tick tries again.
func (c *ReviewClient) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.LoadQueue(ctx); err != nil {
			logrus.WithError(err).Warn("refill queue poll")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
