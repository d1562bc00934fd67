package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig controls the chat-completion translation backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI translates with a chat completion.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Translate(ctx context.Context, text string, sourceLang string, targetLang string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"Translate the user's text from language %q to language %q. Reply with the translation only, no quotes or commentary.",
					sourceLang, targetLang,
				),
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindUnexpected, Err: errors.New("openai returned no choices")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
