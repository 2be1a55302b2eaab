// Package aiproto turns free-text model output into validated structured results.
//
// Every call goes through Run: prompt, generate, parse, validate. A parse or
// validation failure is retried with a stricter prompt and a smaller budget; when
// the attempts are exhausted the call's deterministic fallback is returned. Model
// failures never escape to the caller.
package aiproto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aloewind/exportremix-sub001/app/llm"

	"go.uber.org/zap"
)

var (
	// ErrParse means the model output held no decodable JSON object.
	ErrParse = errors.New("unparseable model output")
	// ErrValidation means the JSON decoded but broke a field rule.
	ErrValidation = errors.New("invalid model output")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Budget bounds a single attempt.
type Budget struct {
	MaxTokens   int
	Temperature float64
}

// DefaultBudgets allows two retries, each shorter and colder than the last.
var DefaultBudgets = []Budget{
	{MaxTokens: 800, Temperature: 0.2},
	{MaxTokens: 400, Temperature: 0.1},
	{MaxTokens: 300, Temperature: 0},
}

type State string

const (
	StateSuccess  State = "success"
	StateFallback State = "fallback"
)

// Call describes one structured request. Prompt receives the zero-based attempt
// number so retries can switch to the strict form.
type Call[T any] struct {
	Endpoint  string
	User      string
	System    string
	Prompt    func(attempt int) string
	Parse     func(raw string) (T, error)
	Fallback  func(lastErr error) T
	Normalize func(T) T
	Budgets   []Budget
}

// Outcome is always usable: State is either StateSuccess or StateFallback.
type Outcome[T any] struct {
	Value    T
	State    State
	Attempts int
	Reason   string
}

func (o Outcome[T]) Fallback() bool { return o.State == StateFallback }

type Protocol struct {
	gen            llm.Generator
	logger         *zap.Logger
	attemptTimeout time.Duration
}

type Option func(*Protocol)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Protocol) { p.logger = logger }
}

// WithAttemptTimeout bounds each model call independently of the request deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(p *Protocol) { p.attemptTimeout = d }
}

func New(gen llm.Generator, opts ...Option) *Protocol {
	p := &Protocol{gen: gen, logger: zap.NewNop(), attemptTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drives call to a terminal state. It never returns an error.
func Run[T any](ctx context.Context, p *Protocol, call Call[T]) Outcome[T] {
	budgets := call.Budgets
	if len(budgets) == 0 {
		budgets = DefaultBudgets
	}
	log := p.logger.With(zap.String("endpoint", call.Endpoint), zap.String("user", call.User))

	var lastErr error
	attempts := 0
	for attempt, budget := range budgets {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts++

		value, err := runAttempt(ctx, p, call, attempt, budget)
		if err == nil {
			if call.Normalize != nil {
				value = call.Normalize(value)
			}
			log.Debug("structured call succeeded", zap.Int("attempt", attempts))
			return Outcome[T]{Value: value, State: StateSuccess, Attempts: attempts}
		}

		lastErr = err
		log.Warn("structured call attempt failed",
			zap.Int("attempt", attempts),
			zap.String("reason", reason(err)),
			zap.Error(err))
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	value := call.Fallback(lastErr)
	if call.Normalize != nil {
		value = call.Normalize(value)
	}
	log.Warn("structured call fell back",
		zap.Int("attempts", attempts),
		zap.String("reason", reason(lastErr)))
	return Outcome[T]{Value: value, State: StateFallback, Attempts: attempts, Reason: reason(lastErr)}
}

func runAttempt[T any](ctx context.Context, p *Protocol, call Call[T], attempt int, budget Budget) (T, error) {
	var zero T
	if p.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.attemptTimeout)
		defer cancel()
	}

	raw, err := p.gen.Generate(ctx, llm.Request{
		System:      call.System,
		Prompt:      call.Prompt(attempt),
		MaxTokens:   budget.MaxTokens,
		Temperature: budget.Temperature,
	})
	if err != nil {
		return zero, err
	}
	return call.Parse(raw)
}

// reason classifies an absorbed failure for logs and the outcome.
func reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, llm.ErrUnavailable):
		return "unavailable"
	default:
		return "model"
	}
}
