package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/modelrouter/internal/config"
)

// placeholderToken is sent to local OpenAI-compatible servers that do not
// check credentials; langchaingo refuses to build a client without one.
const placeholderToken = "unused"

// LangchainClient completes prompts through langchaingo's OpenAI provider.
// One provider client is built per model on first use and reused after.
type LangchainClient struct {
	baseURL string
	token   string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	models map[string]llms.Model
}

// NewLangchainClient creates a client for the endpoint in cfg.
func NewLangchainClient(cfg config.LLMConfig, logger *zap.Logger) (*LangchainClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm base URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.APIKey.Value()
	if token == "" {
		token = placeholderToken
	}

	return &LangchainClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   token,
		timeout: cfg.Timeout,
		logger:  logger,
		models:  make(map[string]llms.Model),
	}, nil
}

// Complete sends prompt to model and returns the generated text.
func (c *LangchainClient) Complete(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		return "", fmt.Errorf("model name is required")
	}

	m, err := c.model(model)
	if err != nil {
		return "", err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, m, prompt)
	if err != nil {
		return "", fmt.Errorf("completing with %s: %w", model, err)
	}
	if out == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyResponse, model)
	}
	return out, nil
}

func (c *LangchainClient) model(name string) (llms.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[name]; ok {
		return m, nil
	}

	m, err := openai.New(
		openai.WithBaseURL(c.baseURL),
		openai.WithModel(name),
		openai.WithToken(c.token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", name, err)
	}
	c.models[name] = m
	c.logger.Debug("llm client created", zap.String("model", name), zap.String("base_url", c.baseURL))
	return m, nil
}

var _ Client = (*LangchainClient)(nil)
