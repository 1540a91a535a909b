package extract

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/mnemon-dev/mnemon/pkg/types"
)

const systemPrompt = `You extract a knowledge graph from one chat utterance.
Return ONLY a JSON object with this shape, no prose:
{
  "nodes": [{"label": "Person", "name": "...", "properties": {"key": ["value"]}}],
  "relationships": [{"start_node": "...", "end_node": "...", "type": "LIKE",
    "start_node_label": "Person", "end_node_label": "Person",
    "properties": {}, "time": ""}]
}
Labels are CamelCase singular nouns. Relationship types are UPPER_SNAKE verbs.
Resolve "I"/"me" to the speaker name and "you" to the listener name given in
the request. Omit anything you are not confident about.`

// OpenAIClient extracts facts through a chat-completion model.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds an extractor. baseURL may be empty for the hosted
// API.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *OpenAIClient) Extract(ctx context.Context, text, userName, aiName string) (*types.ExtractionResult, error) {
	userPrompt := fmt.Sprintf("speaker: %s\nlistener: %s\nutterance: %s", userName, aiName, text)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &types.ExtractionResult{}, nil
	}
	return ParseResult(resp.Choices[0].Message.Content)
}
