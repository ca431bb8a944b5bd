package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/models"
)

const (
	defaultLiaraBaseURL = "https://ai.liara.ir/api/v1"
	defaultLiaraModel   = "openai/gpt-4o-mini"
)

// liaraCompleter talks to the Liara gateway, which is OpenAI compatible and
// scoped per workspace.
type liaraCompleter struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewLiaraProvider(setting models.AIProviderSetting, cfg ProviderConfig, logger *zap.Logger) Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultLiaraBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if setting.WorkspaceID != "" {
		baseURL += "/" + setting.WorkspaceID
	}

	model := cfg.Model
	if model == "" {
		model = defaultLiaraModel
	}

	token := strings.TrimSpace(setting.Token)
	config := openai.DefaultConfig(token)
	config.BaseURL = baseURL

	return &chatProvider{
		name:   ProviderLiara,
		usable: token != "" && setting.WorkspaceID != "",
		completer: &liaraCompleter{
			client:      openai.NewClientWithConfig(config),
			model:       model,
			temperature: float32(cfg.Temperature),
		},
		logger: logger.Named(ProviderLiara),
	}
}

func (c *liaraCompleter) complete(ctx context.Context, req chatRequest) (string, error) {
	user := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	}
	if req.Image != "" {
		user = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.User},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    req.Image,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}
	}

	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			user,
		},
		MaxTokens:   req.MaxTokens,
		Temperature: c.temperature,
	}
	if req.JSON {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("liara chat: %w", err)
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
