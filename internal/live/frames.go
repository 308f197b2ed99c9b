package live

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	// AudioInputMIMEType tags microphone chunks sent upstream.
	AudioInputMIMEType = "audio/pcm"
	// AudioOutputMIMEType is what the service uses for synthesized speech.
	AudioOutputMIMEType = "audio/pcm;rate=24000"
)

// Outbound frames use the snake_case field names of the websocket protocol.

type setupFrame struct {
	Setup setupBody `json:"setup"`
}

type setupBody struct {
	Model             string           `json:"model"`
	SystemInstruction *contentBody     `json:"system_instruction,omitempty"`
	GenerationConfig  generationConfig `json:"generation_config"`
}

type contentBody struct {
	Role  string     `json:"role,omitempty"`
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature        *float64         `json:"temperature,omitempty"`
	ResponseModalities []genai.Modality `json:"response_modalities"`
	SpeechConfig       *speechBody      `json:"speech_config,omitempty"`
}

type speechBody struct {
	VoiceConfig  voiceConfig `json:"voice_config"`
	SpeakingRate *float64    `json:"speaking_rate,omitempty"`
	Pitch        *float64    `json:"pitch,omitempty"`
	VolumeGainDB *float64    `json:"volume_gain_db,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoice `json:"prebuilt_voice_config"`
}

type prebuiltVoice struct {
	VoiceName string `json:"voice_name"`
}

type clientContentFrame struct {
	ClientContent clientContent `json:"client_content"`
}

type clientContent struct {
	Turns        []contentBody `json:"turns"`
	TurnComplete bool          `json:"turn_complete"`
}

type realtimeInputFrame struct {
	RealtimeInput realtimeInput `json:"realtime_input"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

func newSetupFrame(cfg Config) setupFrame {
	body := setupBody{
		Model: cfg.Model,
		GenerationConfig: generationConfig{
			Temperature:        cfg.Temperature,
			ResponseModalities: []genai.Modality{cfg.Modality},
		},
	}
	if cfg.SystemInstruction != "" {
		body.SystemInstruction = &contentBody{Parts: []textPart{{Text: cfg.SystemInstruction}}}
	}
	if cfg.Modality == genai.ModalityAudio && cfg.Speech != nil {
		body.GenerationConfig.SpeechConfig = &speechBody{
			VoiceConfig:  voiceConfig{PrebuiltVoiceConfig: prebuiltVoice{VoiceName: cfg.Speech.Voice}},
			SpeakingRate: cfg.Speech.SpeakingRate,
			Pitch:        cfg.Speech.Pitch,
			VolumeGainDB: cfg.Speech.VolumeGainDB,
		}
	}
	return setupFrame{Setup: body}
}

func newTextFrame(text string) clientContentFrame {
	return clientContentFrame{ClientContent: clientContent{
		Turns:        []contentBody{{Role: string(genai.RoleUser), Parts: []textPart{{Text: text}}}},
		TurnComplete: true,
	}}
}

func newAudioFrame(b64, mimeType string) realtimeInputFrame {
	if mimeType == "" {
		mimeType = AudioInputMIMEType
	}
	return realtimeInputFrame{RealtimeInput: realtimeInput{
		MediaChunks: []mediaChunk{{MIMEType: mimeType, Data: b64}},
	}}
}

// inbound is the decoded content of one server frame
type inbound struct {
	setupComplete bool
	text          string
	audio         []AudioEvent
	interrupted   bool
	turnComplete  bool
	goAway        bool
}

func (in inbound) empty() bool {
	return !in.setupComplete && in.text == "" && len(in.audio) == 0 &&
		!in.interrupted && !in.turnComplete && !in.goAway
}

// decodeFrame parses a server frame. Inbound frames use camelCase names
// and decode directly into genai.LiveServerMessage.
func decodeFrame(data []byte) (inbound, error) {
	var msg genai.LiveServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return inbound{}, fmt.Errorf("decode server frame: %w", err)
	}

	var in inbound
	in.setupComplete = msg.SetupComplete != nil
	in.goAway = msg.GoAway != nil

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			var text strings.Builder
			for _, part := range sc.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					text.WriteString(part.Text)
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					in.audio = append(in.audio, AudioEvent{
						MIMEType: part.InlineData.MIMEType,
						Data:     part.InlineData.Data,
					})
				}
			}
			in.text = text.String()
		}
		in.interrupted = sc.Interrupted
		in.turnComplete = sc.TurnComplete
	}
	return in, nil
}
