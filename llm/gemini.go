package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const GeminiModel = "gemini-2.5-flash"

type GeminiLanguageModel struct {
	client *genai.Client
	model  string
	logger *log.Logger
}

func NewGeminiLanguageModel(
	ctx context.Context,
	apiKey string,
	model string,
	logger *log.Logger,
) (*GeminiLanguageModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = GeminiModel
	}
	return &GeminiLanguageModel{client: client, model: model, logger: logger}, nil
}

func (g *GeminiLanguageModel) Close() error {
	return g.client.Close()
}

func (g *GeminiLanguageModel) setupGenerativeModel(
	req *ChatCompletionRequest,
) *genai.GenerativeModel {
	model := g.client.GenerativeModel(g.model)
	if req.MaxTokens > 0 {
		model.GenerationConfig.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		model.GenerationConfig.SetTemperature(req.Temperature)
	}
	if req.JSON {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}
	return model
}

func (g *GeminiLanguageModel) ChatCompletion(
	ctx context.Context,
	req *ChatCompletionRequest,
) (chan *ChatCompletionResponse, error) {
	model := g.setupGenerativeModel(req)

	var prompt []genai.Part
	for _, message := range req.UserMessages {
		prompt = append(prompt, genai.Text(message))
	}
	if len(prompt) == 0 {
		return nil, errors.New("empty prompt")
	}
	g.logger.Debug("prompt", "model", g.model, "json", req.JSON)

	stream := model.GenerateContentStream(ctx, prompt...)

	result := make(chan *ChatCompletionResponse)
	go func() {
		defer close(result)
		for {
			resp, err := stream.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				result <- &ChatCompletionResponse{
					Err: fmt.Errorf("error streaming: %w", err),
				}
				return
			}
			result <- &ChatCompletionResponse{Content: getResponseText(resp)}
		}
	}()

	return result, nil
}

func getResponseText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
