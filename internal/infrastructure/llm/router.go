package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/kirillkom/raglite/internal/core/domain"
	"github.com/kirillkom/raglite/internal/infrastructure/resilience"
)

const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"

	DefaultTimeout = time.Hour
)

// Endpoint maps a model name to the service that serves it.
type Endpoint struct {
	Model    string
	URL      string
	Provider string
}

// Provider performs one completion call against an endpoint. Providers
// report failures with a generation kind from domain when they can tell
// transport problems from timeouts.
type Provider interface {
	Complete(ctx context.Context, endpoint Endpoint, prompt string, temperature float64) (string, error)
}

type GenerationObserver interface {
	ObserveGeneration(model, status string, duration time.Duration)
}

// Router resolves the requested model against a static endpoint table and
// issues a single call to its provider.
type Router struct {
	endpoints    map[string]Endpoint
	providers    map[string]Provider
	defaultModel string
	timeout      time.Duration
	executor     *resilience.Executor
	observer     GenerationObserver
	logger       *slog.Logger
}

type Option func(*Router)

func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithDefaultModel(model string) Option {
	return func(r *Router) {
		if strings.TrimSpace(model) != "" {
			r.defaultModel = strings.TrimSpace(model)
		}
	}
}

// WithExecutor puts every endpoint behind its own circuit breaker. Calls
// are still attempted once.
func WithExecutor(executor *resilience.Executor) Option {
	return func(r *Router) { r.executor = executor }
}

func WithObserver(observer GenerationObserver) Option {
	return func(r *Router) { r.observer = observer }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRouter(endpoints []Endpoint, providers map[string]Provider, opts ...Option) (*Router, error) {
	r := &Router{
		endpoints:    make(map[string]Endpoint, len(endpoints)),
		providers:    providers,
		defaultModel: domain.DefaultModel,
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
	}
	for _, ep := range endpoints {
		ep.Model = strings.TrimSpace(ep.Model)
		if ep.Model == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "new llm router", errors.New("endpoint without model"))
		}
		if ep.Provider == "" {
			ep.Provider = ProviderOllama
		}
		if _, ok := providers[ep.Provider]; !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "new llm router", fmt.Errorf("model %q uses unconfigured provider %q", ep.Model, ep.Provider))
		}
		if _, dup := r.endpoints[ep.Model]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "new llm router", fmt.Errorf("model %q listed twice", ep.Model))
		}
		r.endpoints[ep.Model] = ep
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Models lists the configured model names in sorted order.
func (r *Router) Models() []string {
	out := make([]string, 0, len(r.endpoints))
	for model := range r.endpoints {
		out = append(out, model)
	}
	slices.Sort(out)
	return out
}

func (r *Router) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	model := r.modelOrDefault(req.Model)
	endpoint, ok := r.endpoints[model]
	if !ok {
		return "", domain.WrapError(domain.ErrModelNotFound, "generate", fmt.Errorf("model %q has no configured endpoint", model))
	}
	provider := r.providers[endpoint.Provider]

	temperature := clampTemperature(req.Temperature)
	prompt := BuildPrompt(req.Query, req.Context)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	var answer string
	call := func(c context.Context) error {
		out, err := provider.Complete(c, endpoint, prompt, temperature)
		if err != nil {
			return err
		}
		answer = out
		return nil
	}

	var err error
	if r.executor != nil {
		err = r.executor.ExecuteOnce(callCtx, "generate:"+model, call, classifyForBreaker)
	} else {
		err = call(callCtx)
	}
	elapsed := time.Since(start)

	if err != nil {
		err = classifyGenerationError(callCtx, err)
		r.observe(model, statusOf(err), elapsed)
		r.logger.Error("generation_failed",
			"model", model,
			"provider", endpoint.Provider,
			"kind", kindName(err),
			"duration_ms", float64(elapsed.Microseconds())/1000.0,
			"error", err,
		)
		return "", err
	}

	r.observe(model, "success", elapsed)
	r.logger.Info("generation_completed",
		"model", model,
		"provider", endpoint.Provider,
		"answer_chars", len(answer),
		"duration_ms", float64(elapsed.Microseconds())/1000.0,
	)
	return answer, nil
}

func (r *Router) modelOrDefault(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return r.defaultModel
	}
	return model
}

func (r *Router) observe(model, status string, d time.Duration) {
	if r.observer != nil {
		r.observer.ObserveGeneration(model, status, d)
	}
}

func clampTemperature(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}

// classifyGenerationError keeps a kind set by the provider and otherwise
// sorts the failure into timeout, transport or unexpected.
func classifyGenerationError(ctx context.Context, err error) error {
	if domain.IsKind(err, domain.ErrModelNotFound) ||
		domain.IsKind(err, domain.ErrGenerationTimeout) ||
		domain.IsKind(err, domain.ErrGenerationTransport) ||
		domain.IsKind(err, domain.ErrGenerationUnexpected) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrGenerationTimeout, "generate", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.WrapError(domain.ErrGenerationTimeout, "generate", err)
		}
		return domain.WrapError(domain.ErrGenerationTransport, "generate", err)
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrGenerationTransport, "generate", err)
	}
	return domain.WrapError(domain.ErrGenerationUnexpected, "generate", err)
}

func classifyForBreaker(err error) resilience.ErrorClassification {
	if resilience.IsContextError(err) && !errors.Is(err, context.DeadlineExceeded) {
		return resilience.Ignored
	}
	if domain.IsKind(err, domain.ErrGenerationUnexpected) || domain.IsKind(err, domain.ErrModelNotFound) {
		return resilience.Ignored
	}
	return resilience.Permanent
}

func statusOf(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrGenerationTimeout):
		return "timeout"
	case domain.IsKind(err, domain.ErrGenerationTransport):
		return "transport_error"
	default:
		return "unexpected_error"
	}
}

func kindName(err error) string {
	if kind := domain.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "unknown"
}
