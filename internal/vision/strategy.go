package vision

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/reinvest-cli/internal/config"
	"github.com/sells-group/reinvest-cli/internal/ocr"
	"github.com/sells-group/reinvest-cli/internal/resilience"
)

const (
	defaultMaxTokens = 32
	defaultTimeout   = 60 * time.Second

	systemPrompt = "You read figures from scanned financial statements. Answer with the number only."
)

// Strategy renders a localized page and asks a model for the value. All
// model calls share one token bucket and one circuit breaker.
type Strategy struct {
	model    Model
	renderer ocr.PageRenderer
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	timeout  time.Duration
	dpi      int
	question string
}

// NewStrategy creates a vision strategy. A nil model yields a strategy that
// never finds a value.
func NewStrategy(model Model, renderer ocr.PageRenderer, cfg config.VisionConfig) *Strategy {
	s := &Strategy{
		model:    model,
		renderer: renderer,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		retry:    resilience.Retries(cfg.MaxRetries),
		timeout:  time.Duration(cfg.TimeoutSecs) * time.Second,
		dpi:      cfg.DPI,
		question: cfg.Question,
	}
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(cfg.Burst, 1))
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.dpi <= 0 {
		s.dpi = ocr.DefaultDPI
	}
	if s.question == "" {
		s.question = config.DefaultQuestion
	}
	name := "vision"
	if model != nil {
		name = "vision:" + model.Name()
	}
	s.retry.Name = name
	s.breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:             name,
		FailureThreshold: cfg.BreakerThreshold,
		ResetTimeout:     time.Duration(cfg.BreakerResetSecs) * time.Second,
	})
	return s
}

// Enabled reports whether a model is configured.
func (s *Strategy) Enabled() bool {
	return s != nil && s.model != nil
}

// ExtractFromPage renders page of pdfPath and asks the configured question.
func (s *Strategy) ExtractFromPage(ctx context.Context, pdfPath string, page int) (string, bool) {
	if !s.Enabled() || s.renderer == nil {
		return "", false
	}
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	img, err := s.renderer.RenderPage(rctx, pdfPath, page, s.dpi)
	if err != nil {
		zap.L().Warn("vision: render page failed",
			zap.String("pdf", pdfPath), zap.Int("page", page), zap.Error(err))
		return "", false
	}
	return s.ExtractFromImage(ctx, img, s.question)
}

// ExtractFromImage asks the model for the value shown in image. It returns
// false on any failure or when the answer is not purely digits.
func (s *Strategy) ExtractFromImage(ctx context.Context, image []byte, question string) (string, bool) {
	if !s.Enabled() || len(image) == 0 {
		return "", false
	}
	if question == "" {
		question = s.question
	}

	answer, err := s.complete(ctx, Prompt{
		System:    systemPrompt,
		Question:  question,
		Image:     image,
		MediaType: "image/png",
	})
	if err != nil {
		zap.L().Warn("vision: model call failed", zap.String("model", s.model.Name()), zap.Error(err))
		return "", false
	}

	value, ok := Accept(answer)
	if !ok {
		zap.L().Warn("vision: answer is not a number",
			zap.String("model", s.model.Name()), zap.String("answer", answer))
	}
	return value, ok
}

// complete runs one prompt through the limiter, timeout, breaker and retries.
func (s *Strategy) complete(ctx context.Context, p Prompt) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return resilience.Call(ctx, s.breaker, func(ctx context.Context) (string, error) {
		return resilience.Do(ctx, s.retry, func(ctx context.Context) (string, error) {
			return s.model.Complete(ctx, p)
		})
	})
}

// Accept normalizes a model answer and reports whether it is a plain
// number. Separators, whitespace and Arabic-Indic digits are tolerated.
func Accept(answer string) (string, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(answer) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		case r == ',' || r == '٬' || unicode.IsSpace(r):
		default:
			return "", false
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}
