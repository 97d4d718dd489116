// Package llm talks to vision-capable language models and turns their replies into frame verdicts.
package llm

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/clipvault/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Reply is the free-text answer of a vision model plus reported token usage.
type Reply struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// VisionModel sends one image together with instructions to a model.
type VisionModel interface {
	Describe(ctx context.Context, system, instruction string, image []byte, mimeType string) (Reply, error)
	Name() string
}

// Model wraps a langchaingo model for single-image prompts.
type Model struct {
	llm       llms.Model
	modelName string
}

var _ VisionModel = (*Model)(nil)

// NewModel creates a vision model based on configuration.
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.VisionProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.VisionModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.VisionModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.VisionModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.VisionModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", cfg.VisionProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.VisionModel,
	}, nil
}

// Describe sends the image with a system prompt and a short instruction.
func (m *Model) Describe(ctx context.Context, system, instruction string, image []byte, mimeType string) (Reply, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mimeType, image),
				llms.TextPart(instruction),
			},
		},
	}

	response, err := m.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(16),
	)
	if err != nil {
		return Reply{}, fmt.Errorf("describe image: %w", err)
	}

	if len(response.Choices) == 0 {
		return Reply{}, fmt.Errorf("%w: no response choices", ErrMalformedOutput)
	}

	choice := response.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	return Reply{Text: choice.Content, InputTokens: in, OutputTokens: out}, nil
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.modelName
}

// tokenUsage reads the provider-specific usage keys langchaingo puts into GenerationInfo.
func tokenUsage(info map[string]any) (in, out int64) {
	for _, k := range []string{"InputTokens", "PromptTokens", "input_tokens"} {
		if v, ok := asInt64(info[k]); ok {
			in = v
			break
		}
	}
	for _, k := range []string{"OutputTokens", "CompletionTokens", "output_tokens"} {
		if v, ok := asInt64(info[k]); ok {
			out = v
			break
		}
	}
	return in, out
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
