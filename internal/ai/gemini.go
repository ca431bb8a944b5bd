package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/models"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultGeminiModel   = "gemini-2.0-flash"
)

var depositSchema = generateSchema(DepositInfo{})

func generateSchema(v any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v)
}

// ProviderConfig holds the deployment-level knobs of one backend.
type ProviderConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
}

// geminiCompleter talks to Gemini through its OpenAI-compatible endpoint.
type geminiCompleter struct {
	client      openai.Client
	model       string
	temperature float64
}

func NewGeminiProvider(setting models.AIProviderSetting, cfg ProviderConfig, logger *zap.Logger) Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	token := strings.TrimSpace(setting.Token)
	return &chatProvider{
		name:   ProviderGemini,
		usable: token != "",
		completer: &geminiCompleter{
			client: openai.NewClient(
				option.WithAPIKey(token),
				option.WithBaseURL(baseURL),
			),
			model:       model,
			temperature: cfg.Temperature,
		},
		logger: logger.Named(ProviderGemini),
	}
}

func (c *geminiCompleter) complete(ctx context.Context, req chatRequest) (string, error) {
	user := openai.UserMessage(req.User)
	if req.Image != "" {
		user = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(req.User),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: req.Image}),
		})
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			user,
		},
		Temperature: openai.Float(c.temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSON && req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.SchemaName,
					Schema: req.Schema,
				},
			},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("gemini chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errEmptyCompletion
	}
	return content, nil
}
