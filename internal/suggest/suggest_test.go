package suggest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbd-tools/harmonize-cli/internal/reftable"
	"github.com/gbd-tools/harmonize-cli/internal/resilience"
	"github.com/gbd-tools/harmonize-cli/pkg/anthropic"
)

// mockClient implements anthropic.Client for testing.
type mockClient struct {
	mu       sync.Mutex
	inflight atomic.Int64
	maxSeen  atomic.Int64
	fn       func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	cur := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		prev := m.maxSeen.Load()
		if cur <= prev || m.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	return fn(ctx, req)
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
	}
}

func testCanonicals() []reftable.Canonical {
	return []reftable.Canonical{
		{Code: "gbd_cholera", Label: "Cholera"},
		{Code: "gbd_measles", Label: "Measles"},
		{Code: "gbd_tb", Label: "Tuberculosis"},
	}
}

func fastOpts() Options {
	return Options{
		Model:         "claude-haiku-4-5-20251001",
		MaxConcurrent: 2,
		Timeout:       time.Second,
		RPS:           1000,
		Retry:         resilience.RetryConfig{MaxAttempts: 1},
	}
}

func TestSuggest_RankedAndValidated(t *testing.T) {
	t.Parallel()

	client := &mockClient{fn: func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		assert.Equal(t, "A00", req.Messages[0].Content)
		assert.Contains(t, req.System, "gbd_cholera")
		return textResponse(`[
			{"code": "gbd_tb", "confidence": 0.4},
			{"code": "gbd_cholera", "confidence": 0.92},
			{"code": "not_a_cause", "confidence": 0.99},
			{"code": "gbd_measles", "confidence": 1.7}
		]`), nil
	}}

	svc := New(client, testCanonicals(), fastOpts())
	got := svc.Suggest(context.Background(), "A00", 3)

	require.Len(t, got, 3)
	// Confidence above 1 clamps; invalid codes are dropped.
	assert.Equal(t, Suggestion{CanonicalCode: "gbd_measles", Confidence: 1.0}, got[0])
	assert.Equal(t, Suggestion{CanonicalCode: "gbd_cholera", Confidence: 0.92}, got[1])
	assert.Equal(t, Suggestion{CanonicalCode: "gbd_tb", Confidence: 0.4}, got[2])
}

func TestSuggest_MarkdownFencedResponse(t *testing.T) {
	t.Parallel()

	client := &mockClient{fn: func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse("```json\n[{\"code\": \"gbd_tb\", \"confidence\": 0.8}]\n```"), nil
	}}

	svc := New(client, testCanonicals(), fastOpts())
	got := svc.Suggest(context.Background(), "A15", 3)
	require.Len(t, got, 1)
	assert.Equal(t, "gbd_tb", got[0].CanonicalCode)
}

func TestSuggest_TransportFailureIsEmpty(t *testing.T) {
	t.Parallel()

	client := &mockClient{fn: func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return nil, eris.New("connection refused")
	}}

	svc := New(client, testCanonicals(), fastOpts())
	assert.Empty(t, svc.Suggest(context.Background(), "A00", 3))
}

func TestSuggest_GarbageResponseIsEmpty(t *testing.T) {
	t.Parallel()

	client := &mockClient{fn: func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse("I think this is probably cholera."), nil
	}}

	svc := New(client, testCanonicals(), fastOpts())
	assert.Empty(t, svc.Suggest(context.Background(), "A00", 3))
}

func TestSuggest_DeterministicTieBreak(t *testing.T) {
	t.Parallel()

	client := &mockClient{fn: func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`[
			{"code": "gbd_tb", "confidence": 0.5},
			{"code": "gbd_cholera", "confidence": 0.5}
		]`), nil
	}}

	svc := New(client, testCanonicals(), fastOpts())
	got := svc.Suggest(context.Background(), "X", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "gbd_cholera", got[0].CanonicalCode)
	assert.Equal(t, "gbd_tb", got[1].CanonicalCode)
}

func TestSuggest_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := &mockClient{fn: func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		<-release
		return textResponse(`[]`), nil
	}}

	opts := fastOpts()
	opts.MaxConcurrent = 2
	svc := New(client, testCanonicals(), opts)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Suggest(context.Background(), "A00", 1)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, client.maxSeen.Load(), int64(2))
}

func TestSuggest_ModelVersion(t *testing.T) {
	t.Parallel()

	svc := New(&mockClient{}, testCanonicals(), fastOpts())
	assert.Equal(t, "claude-haiku-4-5-20251001", svc.ModelVersion())
}
