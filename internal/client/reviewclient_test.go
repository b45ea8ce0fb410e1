package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iprashantai/medrefill-mvp1/internal/review"
)

type stubGateway struct {
	mu          sync.Mutex
	queue       []review.RefillRequest
	queueErrs   []error
	queueCalls  int
	detailCalls int
	submitCalls int
	submitErr   error
	detailBlock map[uint]chan struct{}
	submitBlock chan struct{}
}

func newStubGateway() *stubGateway {
	return &stubGateway{detailBlock: make(map[uint]chan struct{})}
}

func (g *stubGateway) FetchQueue(ctx context.Context) ([]review.RefillRequest, error) {
	g.mu.Lock()
	g.queueCalls++
	var err error
	if len(g.queueErrs) > 0 {
		err = g.queueErrs[0]
		g.queueErrs = g.queueErrs[1:]
	}
	queue := g.queue
	g.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return queue, nil
}

func (g *stubGateway) FetchDetail(ctx context.Context, id uint) (*review.DetailData, error) {
	g.mu.Lock()
	g.detailCalls++
	block := g.detailBlock[id]
	g.mu.Unlock()

	if block != nil {
		<-block
	}
	return &review.DetailData{Request: review.RefillRequest{ID: id, Status: review.StatusPendingReview}}, nil
}

func (g *stubGateway) SubmitReview(ctx context.Context, id uint, decision review.Decision, reviewerID string) (*review.RefillRequest, error) {
	g.mu.Lock()
	g.submitCalls++
	err := g.submitErr
	block := g.submitBlock
	g.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	final := decision
	return &review.RefillRequest{ID: id, Status: review.StatusReviewed, FinalDecision: &final}, nil
}

func (g *stubGateway) calls() (queueCalls, detailCalls, submitCalls int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queueCalls, g.detailCalls, g.submitCalls
}

func queueOf(ids ...uint) []review.RefillRequest {
	out := make([]review.RefillRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, review.RefillRequest{ID: id, Status: review.StatusPendingReview})
	}
	return out
}

func newTestClient(gw Gateway) *ReviewClient {
	return NewReviewClient(gw, Options{CacheTTL: time.Minute, RetryDelay: time.Millisecond})
}

func TestLoadQueueCachesResult(t *testing.T) {
	gw := newStubGateway()
	gw.queue = queueOf(1, 2)
	c := newTestClient(gw)

	first, err := c.LoadQueue(context.Background())
	if err != nil {
		t.Fatalf("load queue: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 requests got %d", len(first))
	}

	if _, err := c.LoadQueue(context.Background()); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if calls, _, _ := gw.calls(); calls != 1 {
		t.Fatalf("fresh cache must not refetch, got %d calls", calls)
	}
}

func TestLoadQueueRetriesOnceOnTransient(t *testing.T) {
	gw := newStubGateway()
	gw.queue = queueOf(1)
	gw.queueErrs = []error{errors.New("connection reset")}
	c := newTestClient(gw)

	requests, err := c.LoadQueue(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected 1 request got %d", len(requests))
	}
	if calls, _, _ := gw.calls(); calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", calls)
	}
}

func TestFailedPollKeepsStaleQueue(t *testing.T) {
	gw := newStubGateway()
	gw.queue = queueOf(1, 2, 3)
	c := NewReviewClient(gw, Options{CacheTTL: time.Nanosecond, RetryDelay: time.Millisecond})

	if _, err := c.LoadQueue(context.Background()); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	gw.mu.Lock()
	gw.queueErrs = []error{errors.New("timeout"), errors.New("timeout")}
	gw.mu.Unlock()

	requests, err := c.LoadQueue(context.Background())
	if err == nil {
		t.Fatal("expected poll failure to surface")
	}
	if len(requests) != 3 {
		t.Fatalf("failed poll must leave the last snapshot visible, got %d rows", len(requests))
	}
}

func TestStaleQueueResponseNeverOverwritesFresher(t *testing.T) {
	gw := newStubGateway()
	gw.queue = queueOf(1, 2)
	c := newTestClient(gw)

	// a slow fetch draws its sequence number, then stalls while a later fetch
	// completes and is applied
	staleSeq := atomic.AddUint64(&c.queueSeq, 1)

	fresh, err := c.LoadQueue(context.Background())
	if err != nil {
		t.Fatalf("load queue: %v", err)
	}
	if len(fresh) != 2 {
		t.Fatalf("expected 2 requests got %d", len(fresh))
	}

	// the stale response finally lands carrying an older snapshot
	got := c.applyQueue(staleSeq, queueOf(9))
	if len(got) != 2 {
		t.Fatalf("stale apply must hand back the fresher snapshot, got %d rows", len(got))
	}
	if snapshot := c.Queue(); len(snapshot) != 2 || snapshot[0].ID != 1 || snapshot[1].ID != 2 {
		t.Fatalf("stale response overwrote the fresher snapshot: %+v", snapshot)
	}

	// a genuinely newer fetch must still get through
	gw.mu.Lock()
	gw.queue = queueOf(3)
	gw.mu.Unlock()
	latest, err := c.refreshQueue(context.Background())
	if err != nil {
		t.Fatalf("refresh queue: %v", err)
	}
	if len(latest) != 1 || latest[0].ID != 3 {
		t.Fatalf("newer fetch must still apply, got %+v", latest)
	}
}

func TestLoadDetailSupersededByNewerSelection(t *testing.T) {
	gw := newStubGateway()
	release := make(chan struct{})
	gw.detailBlock[1] = release
	c := newTestClient(gw)

	type result struct {
		detail *review.DetailData
		err    error
	}
	done := make(chan result, 1)
	go func() {
		detail, err := c.LoadDetail(context.Background(), 1)
		done <- result{detail, err}
	}()

	// wait until the fetch for 1 is actually in flight
	for {
		if _, detailCalls, _ := gw.calls(); detailCalls >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.LoadDetail(context.Background(), 2); err != nil {
		t.Fatalf("load detail 2: %v", err)
	}
	close(release)

	got := <-done
	if !errors.Is(got.err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded got %v", got.err)
	}
	if got.detail != nil {
		t.Fatal("superseded fetch must not deliver data")
	}
	if _, ok, _ := c.Cache().Get(DetailKey(1)); ok {
		t.Fatal("superseded fetch must not populate the cache")
	}
	if _, ok, _ := c.Cache().Get(DetailKey(2)); !ok {
		t.Fatal("current selection must be cached")
	}
}

func TestLoadDetailZeroIDIsNoOp(t *testing.T) {
	gw := newStubGateway()
	c := newTestClient(gw)

	detail, err := c.LoadDetail(context.Background(), 0)
	if err != nil || detail != nil {
		t.Fatalf("expected no-op, got %v / %v", detail, err)
	}
	if _, detailCalls, _ := gw.calls(); detailCalls != 0 {
		t.Fatal("no fetch may be issued without a selected request")
	}
}

func TestSubmitReviewConflictLeavesCache(t *testing.T) {
	gw := newStubGateway()
	gw.queue = queueOf(1, 2)
	c := newTestClient(gw)

	if _, err := c.LoadQueue(context.Background()); err != nil {
		t.Fatalf("load queue: %v", err)
	}
	if _, err := c.LoadDetail(context.Background(), 1); err != nil {
		t.Fatalf("load detail: %v", err)
	}

	gw.mu.Lock()
	gw.submitErr = fmt.Errorf("%w: decided elsewhere", ErrConflict)
	gw.mu.Unlock()

	_, err := c.SubmitReview(context.Background(), 1, review.DecisionApprove, "u1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict got %v", err)
	}
	if IsTransient(err) {
		t.Fatal("conflict must not be retriable")
	}
	if _, _, submits := gw.calls(); submits != 1 {
		t.Fatalf("submission must never auto-retry, got %d calls", submits)
	}

	// cached queue and detail stay exactly as fetched
	if snapshot := c.Queue(); len(snapshot) != 2 {
		t.Fatalf("queue cache changed on failure: %d rows", len(snapshot))
	}
	value, ok, fresh := c.Cache().Get(DetailKey(1))
	if !ok || !fresh {
		t.Fatal("detail cache must stay intact on failure")
	}
	if value.(*review.DetailData).Request.Status != review.StatusPendingReview {
		t.Fatal("detail cache content changed on failure")
	}
}

func TestSubmitReviewSuccessInvalidatesAndRefetches(t *testing.T) {
	gw := newStubGateway()
	gw.queue = queueOf(1, 2)
	c := newTestClient(gw)

	if _, err := c.LoadQueue(context.Background()); err != nil {
		t.Fatalf("load queue: %v", err)
	}

	gw.mu.Lock()
	gw.queue = queueOf(2)
	gw.mu.Unlock()

	result, err := c.SubmitReview(context.Background(), 1, review.DecisionDeny, "u1")
	if err != nil {
		t.Fatalf("submit review: %v", err)
	}
	if !result.NavigateToQueue {
		t.Fatal("caller must be told to navigate back to the queue")
	}
	if result.Request == nil || result.Request.Status != review.StatusReviewed {
		t.Fatalf("expected reviewed request in result, got %+v", result.Request)
	}

	if snapshot := c.Queue(); len(snapshot) != 1 || snapshot[0].ID != 2 {
		t.Fatalf("queue must be refetched after success, got %+v", snapshot)
	}
	if queueCalls, _, _ := gw.calls(); queueCalls != 2 {
		t.Fatalf("expected forced refetch (2 queue calls), got %d", queueCalls)
	}
}

func TestSubmitReviewExclusivePerRequest(t *testing.T) {
	gw := newStubGateway()
	release := make(chan struct{})
	gw.submitBlock = release
	c := newTestClient(gw)

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitReview(context.Background(), 7, review.DecisionApprove, "u1")
		done <- err
	}()

	for !c.SubmissionPending(7) {
		time.Sleep(time.Millisecond)
	}

	if _, err := c.SubmitReview(context.Background(), 7, review.DecisionDeny, "u2"); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if c.SubmissionPending(7) {
		t.Fatal("pending flag must clear after resolution")
	}
	if _, _, submits := gw.calls(); submits != 1 {
		t.Fatalf("only the first submission may reach the gateway, got %d", submits)
	}
}

func TestSubmitReviewNeverBuildsInvalidPayload(t *testing.T) {
	gw := newStubGateway()
	c := newTestClient(gw)

	if _, err := c.SubmitReview(context.Background(), 1, review.Decision("Maybe"), "u1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation got %v", err)
	}
	if _, err := c.SubmitReview(context.Background(), 0, review.DecisionApprove, "u1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing id got %v", err)
	}
	if _, _, submits := gw.calls(); submits != 0 {
		t.Fatal("invalid payloads must never reach the gateway")
	}
}

func TestCacheSubscribeSeesInvalidations(t *testing.T) {
	gw := newStubGateway()
	gw.queue = queueOf(1)
	c := newTestClient(gw)
	events := c.Cache().Subscribe()

	if _, err := c.LoadQueue(context.Background()); err != nil {
		t.Fatalf("load queue: %v", err)
	}
	if _, err := c.SubmitReview(context.Background(), 1, review.DecisionApprove, "u1"); err != nil {
		t.Fatalf("submit review: %v", err)
	}

	seen := map[string]bool{}
	for {
		select {
		case key := <-events:
			seen[key] = true
		default:
			if !seen[KeyQueue] || !seen[DetailKey(1)] {
				t.Fatalf("expected notifications for queue and detail:1, saw %v", seen)
			}
			return
		}
	}
}

func TestCacheUnsubscribeStopsNotifications(t *testing.T) {
	cache := NewCache(time.Minute)
	closed := cache.Subscribe()
	kept := cache.Subscribe()

	cache.Unsubscribe(closed)
	cache.Put(KeyQueue, queueOf(1))

	if key, ok := <-closed; ok {
		t.Fatalf("removed subscriber received %q, channel must be closed", key)
	}
	select {
	case key := <-kept:
		if key != KeyQueue {
			t.Fatalf("expected %q notification got %q", KeyQueue, key)
		}
	default:
		t.Fatal("remaining subscriber must keep receiving notifications")
	}
}
