package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"admissions-go/internal/config"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// Drafter produces free text from a prompt. Callers always have a fallback,
// so implementations should fail fast rather than retry.
type Drafter interface {
	Draft(ctx context.Context, prompt string) (string, error)
}

var (
	errLLMDisabled = errors.New("llm drafting disabled")
	errRateLimited = errors.New("llm rate limit reached")
	errEmptyDraft  = errors.New("llm returned no text")
)

// disabledDrafter is used when no model is configured.
type disabledDrafter struct{}

func (disabledDrafter) Draft(context.Context, string) (string, error) { return "", errLLMDisabled }

// GeminiDrafter calls Gemini, rotating across the configured API keys.
type GeminiDrafter struct {
	clients []*genai.Client
	current uint32
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	log     *zap.Logger
}

// apiKeys merges configured keys with GEMINI_API_KEY and GEMINI_API_KEY_1..4.
func apiKeys(conf config.LLMConfig) []string {
	keys := append([]string{}, conf.APIKeys...)
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		keys = append(keys, k)
	}
	for i := 1; i <= 4; i++ {
		if k := os.Getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i)); k != "" {
			keys = append(keys, k)
		}
	}
	seen := map[string]bool{}
	out := keys[:0]
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// NewDrafter returns a Gemini drafter, or a drafter that always declines when
// the LLM is disabled or has no keys.
func NewDrafter(ctx context.Context, conf config.LLMConfig, log *zap.Logger) (Drafter, func() error, error) {
	noop := func() error { return nil }
	if !conf.Enabled {
		return disabledDrafter{}, noop, nil
	}
	keys := apiKeys(conf)
	if len(keys) == 0 {
		log.Warn("LLM enabled but no API keys configured, drafts will use templates")
		return disabledDrafter{}, noop, nil
	}
	d, err := NewGeminiDrafter(ctx, conf, keys, log)
	if err != nil {
		return nil, noop, err
	}
	return d, d.Close, nil
}

func NewGeminiDrafter(ctx context.Context, conf config.LLMConfig, keys []string, log *zap.Logger) (*GeminiDrafter, error) {
	clients := make([]*genai.Client, 0, len(keys))
	for _, k := range keys {
		c, err := genai.NewClient(ctx, option.WithAPIKey(k))
		if err != nil {
			for _, opened := range clients {
				_ = opened.Close()
			}
			return nil, errors.Wrap(err, "initialize Gemini client")
		}
		clients = append(clients, c)
	}

	perMinute := conf.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}

	return &GeminiDrafter{
		clients: clients,
		model:   conf.Model,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		timeout: config.Timeout(conf.TimeoutSeconds, 20*time.Second),
		log:     log.Named("drafter"),
	}, nil
}

// next returns the client for the next key in rotation.
func (d *GeminiDrafter) next() *genai.Client {
	i := atomic.AddUint32(&d.current, 1)
	return d.clients[(i-1)%uint32(len(d.clients))]
}

func (d *GeminiDrafter) Draft(ctx context.Context, prompt string) (string, error) {
	if !d.limiter.Allow() {
		return "", errRateLimited
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	model := d.next().GenerativeModel(d.model)
	temp := float32(0.7)
	model.Temperature = &temp

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", errors.Wrap(err, "generate content")
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errEmptyDraft
	}
	return text, nil
}

func (d *GeminiDrafter) Close() error {
	var first error
	for _, c := range d.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
