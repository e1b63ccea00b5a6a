// Package oracle adapts chat models to decision.Oracle.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rustyeddy/papertrader/decision"
	"github.com/rustyeddy/papertrader/errs"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderHold     = "hold"
)

type Config struct {
	Provider    string        `json:"provider" yaml:"provider"`
	Model       string        `json:"model" yaml:"model"`
	BaseURL     string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey      string        `json:"-" yaml:"-"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature float32       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Provider:    ProviderDeepSeek,
		Model:       "deepseek-chat",
		MaxTokens:   4096,
		Temperature: 0.2,
		Timeout:     90 * time.Second,
	}
}

func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderDeepSeek:
		if c.Model == "" {
			return fmt.Errorf("oracle: model is required for %s", c.Provider)
		}
	case ProviderHold:
	default:
		return fmt.Errorf("oracle: unknown provider %q", c.Provider)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("oracle: timeout must not be negative")
	}
	return nil
}

// ChatOracle sends the request as a system and a user message and returns
// the model's text reply unparsed.
type ChatOracle struct {
	chat model.BaseChatModel
	name string
}

var _ decision.Oracle = (*ChatOracle)(nil)

func New(chat model.BaseChatModel, name string) *ChatOracle {
	return &ChatOracle{chat: chat, name: name}
}

func NewOpenAI(ctx context.Context, cfg Config) (*ChatOracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("oracle: OPENAI_API_KEY not set")
	}
	maxTokens := cfg.MaxTokens
	temp := cfg.Temperature
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: openai model: %w", err)
	}
	return New(cm, cfg.Model), nil
}

func NewDeepSeek(ctx context.Context, cfg Config) (*ChatOracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("oracle: DEEPSEEK_API_KEY not set")
	}
	cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: deepseek model: %w", err)
	}
	return New(cm, cfg.Model), nil
}

// FromConfig builds the oracle the config names.
func FromConfig(ctx context.Context, cfg Config) (decision.Oracle, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(ctx, cfg)
	case ProviderDeepSeek:
		return NewDeepSeek(ctx, cfg)
	case ProviderHold:
		return Hold{}, nil
	}
	return nil, fmt.Errorf("oracle: unknown provider %q", cfg.Provider)
}

func (o *ChatOracle) Model() string { return o.name }

func (o *ChatOracle) Decide(ctx context.Context, req decision.Request) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(req.System),
		schema.UserMessage(req.User),
	}

	out, err := o.chat.Generate(ctx, msgs)
	if err != nil {
		return "", errs.New(errs.OracleError, "", fmt.Errorf("%s: %w", o.name, err))
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		reason := "no content"
		if out != nil && out.ResponseMeta != nil && out.ResponseMeta.FinishReason != "" {
			reason = "finish reason " + out.ResponseMeta.FinishReason
		}
		return "", errs.Newf(errs.OracleError, "", "%s: empty reply (%s)", o.name, reason)
	}
	return out.Content, nil
}

// Hold answers hold for every asset. It lets the loop run without a model.
type Hold struct{}

func (Hold) Model() string { return ProviderHold }

func (Hold) Decide(_ context.Context, req decision.Request) (string, error) {
	reply := make(map[string]map[string]any, len(req.Assets))
	for _, a := range req.Assets {
		reply[a] = map[string]any{
			"signal":        "hold",
			"confidence":    0,
			"justification": "no oracle configured",
		}
	}
	b, err := json.Marshal(reply)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
