package tts

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/haguro/elevenlabs-go"
)

const (
	ElevenLabsModel = "eleven_turbo_v2_5"
	ElevenLabsVoice = "pKLLpypGseGMUjkb5fEZ"
)

type ElevenLabsSpeech struct {
	apiKey  string
	voiceID string
}

func NewElevenLabsSpeech(apiKey, voiceID string) *ElevenLabsSpeech {
	if voiceID == "" {
		voiceID = ElevenLabsVoice
	}
	return &ElevenLabsSpeech{apiKey: apiKey, voiceID: voiceID}
}

func (e *ElevenLabsSpeech) Speak(ctx context.Context, text string) (Clip, error) {
	client := elevenlabs.NewClient(ctx, e.apiKey, 30*time.Second)
	ttsReq := elevenlabs.TextToSpeechRequest{
		Text:    text,
		ModelID: ElevenLabsModel,
	}

	var buf bytes.Buffer
	err := client.TextToSpeechStream(&buf, e.voiceID, ttsReq)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to generate speech: %w", err)
	}
	return Clip{Data: buf.Bytes(), Format: FormatMP3}, nil
}
