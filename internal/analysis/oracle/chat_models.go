package oracle

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
)

const thinkingBudget = 1024

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey    string
	BaseURL   string
	Planner   *model.PlannerModelConfig
	Explainer *model.ExplainerModelConfig
}

// ChatModels holds the structured-output model and the explanation model.
type ChatModels struct {
	Planner            *gemini.ChatModel
	Explainer          *gemini.ChatModel
	PlannerModelName   string
	ExplainerModelName string
}

// NewChatModels creates both Gemini chat models over one genai client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Planner == nil || config.Explainer == nil {
		return nil, fmt.Errorf("model configs are required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	planner, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Planner.Model,
		Temperature: &config.Planner.Temperature,
		MaxTokens:   &config.Planner.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(thinkingBudget)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating planner model")
		return nil, fmt.Errorf("error creating planner model: %w", err)
	}

	explainer, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Explainer.Model,
		Temperature: &config.Explainer.Temperature,
		MaxTokens:   &config.Explainer.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating explainer model")
		return nil, fmt.Errorf("error creating explainer model: %w", err)
	}

	return &ChatModels{
		Planner:            planner,
		Explainer:          explainer,
		PlannerModelName:   config.Planner.Model,
		ExplainerModelName: config.Explainer.Model,
	}, nil
}
