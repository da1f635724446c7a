package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"
)

type LanguageModel interface {
	ChatCompletion(
		ctx context.Context,
		req *ChatCompletionRequest,
	) (chan *ChatCompletionResponse, error)
}

type ChatCompletionRequest struct {
	SystemPrompt string
	UserMessages []string
	MaxTokens    int
	Temperature  float32
	// JSON asks the model for a bare JSON document.
	JSON bool
}

func (r *ChatCompletionRequest) WithUserMessage(
	message string,
) *ChatCompletionRequest {
	r.UserMessages = append(r.UserMessages, message)
	return r
}

type ChatCompletionResponse struct {
	Err     error
	Content string
}

// Complete collects a streamed completion into one string.
func Complete(
	ctx context.Context,
	model LanguageModel,
	req *ChatCompletionRequest,
) (string, error) {
	stream, err := model.ChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for resp := range stream {
		if resp.Err != nil {
			return "", resp.Err
		}
		sb.WriteString(resp.Content)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type OpenAILanguageModel struct {
	client *openai.Client
	model  string
	logger *log.Logger
}

func NewOpenAILanguageModel(
	apiKey string,
	model string,
	logger *log.Logger,
) *OpenAILanguageModel {
	return NewOpenAILanguageModelWithConfig(openai.DefaultConfig(apiKey), model, logger)
}

func NewOpenAILanguageModelWithConfig(
	config openai.ClientConfig,
	model string,
	logger *log.Logger,
) *OpenAILanguageModel {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAILanguageModel{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}
}

func (o *OpenAILanguageModel) ChatCompletion(
	ctx context.Context,
	req *ChatCompletionRequest,
) (chan *ChatCompletionResponse, error) {
	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, userMessage := range req.UserMessages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage,
		})
	}
	o.logger.Debug("prompt", "model", o.model, "messages", len(messages))

	resp, err := o.client.CreateChatCompletionStream(
		ctx,
		openai.ChatCompletionRequest{
			Model:       o.model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			Stream:      true,
		},
	)

	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	result := make(chan *ChatCompletionResponse)
	go func() {
		defer close(result)
		defer resp.Close()
		for {
			response, err := resp.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				result <- &ChatCompletionResponse{
					Err: fmt.Errorf("OpenAI stream error: %w", err),
				}
				break
			}
			if len(response.Choices) == 0 {
				continue
			}
			result <- &ChatCompletionResponse{
				Content: response.Choices[0].Delta.Content,
			}
		}
	}()

	return result, nil
}
