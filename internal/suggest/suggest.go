// Package suggest adapts an external predictive classifier into the
// narrow candidate-list interface the resolution policy consumes. The
// adapter never surfaces transport failures: a timeout or a dead service
// is indistinguishable from "no suggestion", which keeps the policy's
// reproducibility contract independent of the model's availability.
package suggest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/gbd-tools/harmonize-cli/internal/reftable"
	"github.com/gbd-tools/harmonize-cli/internal/resilience"
	"github.com/gbd-tools/harmonize-cli/pkg/anthropic"
)

// Suggestion is one ranked candidate from the classifier.
type Suggestion struct {
	CanonicalCode string  `json:"canonical_code"`
	Confidence    float64 `json:"confidence"`
}

// Suggester produces ranked canonical-code candidates for a source code.
// Implementations must return an empty slice, never an error, when the
// backing service is unavailable.
type Suggester interface {
	Suggest(ctx context.Context, sourceCode string, topK int) []Suggestion
	ModelVersion() string
}

// Options configures the adapter.
type Options struct {
	Model         string
	MaxConcurrent int64
	Timeout       time.Duration
	RPS           float64
	Retry         resilience.RetryConfig
}

// Service calls a pre-trained classifier through the Anthropic API. The
// suggestion backend has much less capacity than in-process parallelism,
// so every call passes through a counting permit and a rate limiter that
// are independent of the resolution worker pool.
type Service struct {
	client  anthropic.Client
	model   string
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig

	prompt string
	valid  map[string]bool
}

var _ Suggester = (*Service)(nil)

// New creates a suggestion service over the given canonical-code list.
func New(client anthropic.Client, canonicals []reftable.Canonical, opts Options) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 2
	}

	valid := make(map[string]bool, len(canonicals))
	for _, c := range canonicals {
		valid[c.Code] = true
	}

	return &Service{
		client:  client,
		model:   opts.Model,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), 1),
		timeout: opts.Timeout,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("suggest: circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		retry:  opts.Retry,
		prompt: buildPrompt(canonicals),
		valid:  valid,
	}
}

// ModelVersion identifies the underlying model. It is recorded on every
// suggestion event so an audit can tell which model produced a decision.
func (s *Service) ModelVersion() string {
	return s.model
}

// Suggest returns ranked candidates for sourceCode, at most topK. Any
// failure (permit denied by cancellation, timeout, transport error,
// unparseable response) yields an empty list.
func (s *Service) Suggest(ctx context.Context, sourceCode string, topK int) []Suggestion {
	log := zap.L().With(zap.String("source_code", sourceCode))

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer s.sem.Release(1)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := resilience.ExecuteVal(callCtx, s.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return s.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     s.model,
				MaxTokens: 1024,
				System:    s.prompt,
				Messages: []anthropic.Message{
					{Role: "user", Content: sourceCode},
				},
			})
		})
	})
	if err != nil {
		log.Warn("suggest: call failed, treating as no candidate", zap.Error(err))
		return nil
	}

	suggestions, err := parseSuggestions(resp.Text(), s.valid)
	if err != nil {
		log.Warn("suggest: unparseable response, treating as no candidate", zap.Error(err))
		return nil
	}

	if topK > 0 && len(suggestions) > topK {
		suggestions = suggestions[:topK]
	}
	return suggestions
}

// buildPrompt assembles the system prompt with the closed candidate set.
// Canonicals arrive sorted by code, so the prompt is stable across runs.
func buildPrompt(canonicals []reftable.Canonical) string {
	var b strings.Builder
	b.WriteString("You map raw cause-of-death codes to a controlled cause list. ")
	b.WriteString("Given a source code, rank the most likely causes from the list below. ")
	b.WriteString("Respond with only a JSON array of {\"code\": string, \"confidence\": number in [0,1]}, best first.\n\nCauses:\n")
	for _, c := range canonicals {
		b.WriteString(c.Code)
		if c.Label != "" && c.Label != c.Code {
			b.WriteString(": ")
			b.WriteString(c.Label)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseSuggestions decodes the model's JSON array, drops codes outside
// the canonical set, clamps confidences and applies the deterministic
// ordering contract (confidence descending, code ascending on ties).
func parseSuggestions(text string, valid map[string]bool) ([]Suggestion, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw []struct {
		Code       string  `json:"code"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "suggest: decode response")
	}

	seen := make(map[string]bool, len(raw))
	out := make([]Suggestion, 0, len(raw))
	for _, r := range raw {
		if !valid[r.Code] || seen[r.Code] {
			continue
		}
		seen[r.Code] = true
		conf := min(max(r.Confidence, 0), 1)
		out = append(out, Suggestion{CanonicalCode: r.Code, Confidence: conf})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].CanonicalCode < out[j].CanonicalCode
	})

	return out, nil
}
