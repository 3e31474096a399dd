// Package inference turns free-form model completions into validated,
// typed results for the enrichment pipeline.
package inference

import (
	"context"
	"strings"

	sdkoption "github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/bom-cli/pkg/anthropic"
)

var (
	// ErrRefused is returned when the model declines to answer.
	ErrRefused = eris.New("inference: model refused")
	// ErrInvalidOutput is returned when a response is not valid JSON or does
	// not match the expected schema.
	ErrInvalidOutput = eris.New("inference: invalid model output")
)

// Request is one system+user prompt pair.
type Request struct {
	System string
	User   string
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Completer sends a prompt to a model and returns its text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// AnthropicCompleter uses the Claude Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicCompleter creates a Completer backed by client.
func NewAnthropicCompleter(client anthropic.Client, model string, maxTokens int64) *AnthropicCompleter {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicCompleter{client: client, model: model, maxTokens: maxTokens}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, req Request) (string, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.User}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(c.model, "completion")
	if resp.StopReason == anthropic.StopReasonRefusal {
		return "", eris.Wrap(ErrRefused, "anthropic stop_reason refusal")
	}
	return resp.Text(), nil
}

// OpenAICompleter uses the OpenAI chat completions API, or any
// OpenAI-compatible endpoint when a base URL is configured.
type OpenAICompleter struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// OpenAIConfig configures an OpenAICompleter.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// NewOpenAICompleter creates a Completer backed by the OpenAI SDK.
func NewOpenAICompleter(cfg OpenAIConfig, extra ...option.RequestOption) *OpenAICompleter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &OpenAICompleter{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		MaxCompletionTokens: openai.Int(c.maxTokens),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "openai: chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", eris.Wrap(ErrInvalidOutput, "openai: no choices")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", eris.Wrap(ErrRefused, msg.Refusal)
	}
	return msg.Content, nil
}

// GeminiCompleter uses the Google GenAI SDK.
type GeminiCompleter struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// GeminiConfig configures a GeminiCompleter.
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int32
	// BaseURL overrides the API endpoint (for testing).
	BaseURL string
}

// NewGeminiCompleter creates a Completer backed by the Gemini API.
func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &GeminiCompleter{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	temp := float32(0)
	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		MaxOutputTokens:   c.maxTokens,
		Temperature:       &temp,
	}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.User), gc)
	if err != nil {
		return "", eris.Wrap(err, "gemini: generate content")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", eris.Wrapf(ErrRefused, "gemini: blocked (%s)", resp.PromptFeedback.BlockReason)
	}
	return resp.Text(), nil
}

// Provider settings for NewCompleter.
type Provider struct {
	Name      string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// NewCompleter builds the Completer named by p.Name (anthropic, openai or
// gemini).
func NewCompleter(ctx context.Context, p Provider) (Completer, error) {
	if p.APIKey == "" {
		return nil, eris.Errorf("inference: %s api key is not set", p.Name)
	}
	switch strings.ToLower(p.Name) {
	case "", "anthropic":
		var opts []sdkoption.RequestOption
		if p.BaseURL != "" {
			opts = append(opts, sdkoption.WithBaseURL(p.BaseURL))
		}
		return NewAnthropicCompleter(anthropic.NewClient(p.APIKey, opts...), p.Model, p.MaxTokens), nil
	case "openai":
		return NewOpenAICompleter(OpenAIConfig{APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model, MaxTokens: p.MaxTokens}), nil
	case "gemini":
		return NewGeminiCompleter(ctx, GeminiConfig{APIKey: p.APIKey, Model: p.Model, MaxTokens: int32(p.MaxTokens), BaseURL: p.BaseURL})
	default:
		return nil, eris.Errorf("inference: unknown provider %q", p.Name)
	}
}
