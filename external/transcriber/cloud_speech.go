package transcriber

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/hibikilab/kikitori/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	audioSampleRateHertz  = 48000
	audioChannelCount     = 2
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

type CloudSpeechTranscriber struct {
	projectID       string
	credentialsJSON string
	defaultLanguage string
	location        string
	model           string
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) transcriber.Transcriber {
	return &CloudSpeechTranscriber{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		defaultLanguage: cfg.Language,
		location:        strings.TrimSpace(cfg.Location),
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (t *CloudSpeechTranscriber) Transcribe(ctx context.Context, assetPath, language string) (transcriber.Result, error) {
	if language == "" {
		language = t.defaultLanguage
	}
	audio, err := os.ReadFile(assetPath)
	if err != nil {
		return transcriber.Result{}, fmt.Errorf("read audio asset: %w", err)
	}
	slog.Info("sending audio to cloud speech", "asset_path", assetPath, "asset_bytes", len(audio), "location", t.location, "language", language, "model", t.model)

	client, err := t.newClient(ctx)
	if err != nil {
		return transcriber.Result{}, err
	}
	defer func() {
		_ = client.Close()
	}()

	started := time.Now()
	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.projectID, t.location),
		Config: &speechpb.RecognitionConfig{
			Model:         t.model,
			LanguageCodes: []string{language},
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   audioSampleRateHertz,
					AudioChannelCount: audioChannelCount,
				},
			},
			Features: &speechpb.RecognitionFeatures{},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: audio},
	})
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.InvalidArgument {
			return transcriber.Result{}, fmt.Errorf("cloud speech rejected audio: %w", err)
		}
		return transcriber.Result{}, fmt.Errorf("cloud speech recognize: %w", err)
	}

	result := collectRecognizeResponse(resp, language)
	result.Duration = time.Since(started)
	slog.Info("cloud speech recognize finished", "asset_path", assetPath, "text_len", len(result.Text), "confidence", result.Confidence, "took", result.Duration)
	return result, nil
}

func (t *CloudSpeechTranscriber) newClient(ctx context.Context) (*speech.Client, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if t.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)))
	}
	return speech.NewClient(ctx, opts...)
}

func collectRecognizeResponse(resp *speechpb.RecognizeResponse, language string) transcriber.Result {
	var (
		parts         []string
		confidenceSum float64
		confidenceN   int
	)
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		text := strings.TrimSpace(alts[0].GetTranscript())
		if text == "" {
			continue
		}
		parts = append(parts, text)
		if c := alts[0].GetConfidence(); c > 0 {
			confidenceSum += float64(c)
			confidenceN++
		}
		if lc := r.GetLanguageCode(); lc != "" {
			language = lc
		}
	}

	text := strings.Join(parts, "\n")
	result := transcriber.Result{
		Text:      text,
		WordCount: len(strings.Fields(text)),
		Language:  language,
	}
	if confidenceN > 0 {
		result.Confidence = confidenceSum / float64(confidenceN)
	}
	return result
}
