package stt

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/domain/repositories"
)

// GoogleTranscriber implements the Transcriber interface with Google Cloud
// Speech batch recognition. Every call re-recognizes the full buffer it is
// given; the engine owns pacing and buffer size.
type GoogleTranscriber struct {
	client *speech.Client
	logger *zap.Logger
}

var _ repositories.Transcriber = (*GoogleTranscriber)(nil)

// NewGoogleTranscriber creates a transcriber backed by Google Cloud Speech.
// Credentials come from the environment the way the cloud SDK resolves them.
func NewGoogleTranscriber(ctx context.Context, logger *zap.Logger) (*GoogleTranscriber, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &GoogleTranscriber{client: client, logger: logger}, nil
}

// Transcribe recognizes one buffer of 16-bit mono PCM.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, pcm []int16, config repositories.AudioConfig) (entities.TranscriptResult, error) {
	if len(pcm) == 0 {
		return entities.TranscriptResult{Segments: []entities.TranscriptSegment{}}, nil
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:              speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:       int32(config.SampleRate),
			LanguageCode:          config.Language,
			Model:                 config.Model,
			EnableWordTimeOffsets: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: encodePCM(pcm)},
		},
	})
	if err != nil {
		return entities.TranscriptResult{}, fmt.Errorf("recognize: %w", err)
	}

	var parts []string
	segments := []entities.TranscriptSegment{}
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		parts = append(parts, text)

		seg := entities.TranscriptSegment{Text: text}
		if len(alt.Words) > 0 {
			seg.Start = alt.Words[0].StartTime.AsDuration().Seconds()
			seg.End = alt.Words[len(alt.Words)-1].EndTime.AsDuration().Seconds()
		} else if result.ResultEndTime != nil {
			seg.End = result.ResultEndTime.AsDuration().Seconds()
		}
		segments = append(segments, seg)
	}

	return entities.TranscriptResult{
		Text:     strings.Join(parts, " "),
		Segments: segments,
	}, nil
}

// Close releases the underlying gRPC connection.
func (g *GoogleTranscriber) Close() error {
	return g.client.Close()
}

func encodePCM(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}
