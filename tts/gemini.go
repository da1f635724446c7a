package tts

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	GeminiSpeechModel = "gemini-2.5-flash-preview-tts"
	GeminiVoice       = "Kore"

	// Read in an upbeat voice.
	speechPrefix = "พูดด้วยความกระตือรือร้น: "
)

var ErrNoAudio = errors.New("no audio in response")

// GeminiSpeech synthesizes speech with a Gemini TTS model.
type GeminiSpeech struct {
	client *genai.Client
	model  string
	voice  string
}

func NewGeminiSpeech(ctx context.Context, apiKey, model string) (*GeminiSpeech, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = GeminiSpeechModel
	}
	return &GeminiSpeech{client: client, model: model, voice: GeminiVoice}, nil
}

func (g *GeminiSpeech) Speak(ctx context.Context, text string) (Clip, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: g.voice,
				},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		genai.Text(speechPrefix+text),
		config,
	)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to generate speech: %w", err)
	}

	data := inlineAudio(resp)
	if len(data) == 0 {
		return Clip{}, ErrNoAudio
	}
	return Clip{Data: data, Format: FormatPCM24k}, nil
}

func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}
