package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"
)

// Config holds the settings for the Gemini API client.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model is the model name, e.g. "gemini-2.0-flash".
	Model string

	// MaxRetries bounds retry attempts for transient errors.
	MaxRetries int

	// RetryDelaySeconds is the base delay for exponential backoff.
	RetryDelaySeconds int
}

// Client wraps the Gemini API with retry and backoff. Both the
// extraction and judge collaborators share one client.
type Client struct {
	api        *genai.Client
	model      string
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewClient creates a Gemini client from the given configuration.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelaySeconds < 1 {
		cfg.RetryDelaySeconds = 2
	}

	api, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gemini client: %v", ErrInvalidConfig, err)
	}

	return &Client{
		api:        api,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		baseDelay:  time.Duration(cfg.RetryDelaySeconds) * time.Second,
		logger:     logger.With("component", "gemini_client", "model", cfg.Model),
	}, nil
}

// generate sends the prompt and returns the reply text, retrying
// transient failures with exponential backoff and jitter. Blocked or
// empty replies are permanent errors and returned immediately.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		text, err := c.generateOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}

		if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrEmptyResponse) {
			return "", err
		}

		if attempt >= c.maxRetries {
			return "", fmt.Errorf("%w: exceeded %d retry attempts: %v",
				ErrTransientFailure, c.maxRetries, err)
		}

		// delay = base * 2^attempt * jitter in [0.5, 1.0)
		backoff := float64(c.baseDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))

		c.logger.Warn("gemini call failed, retrying",
			"attempt", attempt+1,
			"max_attempts", c.maxRetries+1,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		}
	}
}

func (c *Client) generateOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}
