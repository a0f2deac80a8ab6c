package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"agrox/internal/logging"
)

const (
	googleSpeechEndpoint = "https://speech.googleapis.com"
	googleScope          = "https://www.googleapis.com/auth/cloud-platform"
)

// GoogleProvider implements STT using Google Cloud Speech-to-Text REST API
type GoogleProvider struct {
	projectID  string
	apiKey     string
	endpoint   string
	httpClient *http.Client
	useAPIKey  bool // true if using API key, false if using service account
}

// NewGoogleProvider creates a new Google STT provider
// keyData can be either:
//   - An API key (39 characters, typically starts with "AIzaSy")
//   - A file path to a JSON key file (e.g., "./keys/google-service-account.json")
//   - A JSON string containing the service account credentials
//   - Empty, in which case application default credentials are used
func NewGoogleProvider(ctx context.Context, projectID, keyData string) (*GoogleProvider, error) {
	log := logging.For("stt")
	keyDataTrimmed := strings.TrimSpace(keyData)

	if isGoogleAPIKey(keyDataTrimmed) {
		log.Info("Google STT using API key authentication")
		return &GoogleProvider{
			projectID:  projectID,
			apiKey:     keyDataTrimmed,
			endpoint:   googleSpeechEndpoint,
			httpClient: &http.Client{Timeout: 90 * time.Second},
			useAPIKey:  true,
		}, nil
	}

	var creds *google.Credentials
	var err error

	switch {
	case keyDataTrimmed == "":
		creds, err = google.FindDefaultCredentials(ctx, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w. Please set GOOGLE_STT_KEY_FILE", err)
		}
	default:
		var jsonData []byte
		if strings.HasPrefix(keyDataTrimmed, "{") {
			log.Info("Google STT using JSON credentials from environment")
			jsonData = []byte(keyDataTrimmed)
		} else {
			log.Info("Google STT reading key file", "path", keyDataTrimmed)
			jsonData, err = os.ReadFile(keyDataTrimmed)
			if err != nil {
				return nil, fmt.Errorf("failed to read key file '%s': %w", keyDataTrimmed, err)
			}
		}
		creds, err = google.CredentialsFromJSON(ctx, jsonData, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to create credentials from JSON: %w", err)
		}
	}

	client := oauth2.NewClient(ctx, creds.TokenSource)
	client.Timeout = 90 * time.Second

	return &GoogleProvider{
		projectID:  projectID,
		endpoint:   googleSpeechEndpoint,
		httpClient: client,
	}, nil
}

func isGoogleAPIKey(s string) bool {
	return len(s) == 39 && strings.HasPrefix(s, "AIzaSy")
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

type googleRequest struct {
	Config googleRecognitionConfig `json:"config"`
	Audio  googleAudio             `json:"audio"`
}

type googleRecognitionConfig struct {
	Encoding                   string   `json:"encoding"`
	SampleRateHertz            int      `json:"sampleRateHertz,omitempty"`
	LanguageCode               string   `json:"languageCode"`
	AlternativeLanguageCodes   []string `json:"alternativeLanguageCodes,omitempty"`
	EnableAutomaticPunctuation bool     `json:"enableAutomaticPunctuation"`
	Model                      string   `json:"model,omitempty"`
}

type googleAudio struct {
	Content string `json:"content"` // Base64 encoded
}

type googleResponse struct {
	Results []googleResult `json:"results"`
	Error   *googleError   `json:"error,omitempty"`
}

type googleResult struct {
	Alternatives []googleAlternative `json:"alternatives"`
	LanguageCode string              `json:"languageCode"`
}

type googleAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type googleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Transcribe transcribes an audio file using Google Cloud Speech-to-Text REST API.
// Indian English is primary with Hindi as an alternative, so mixed speech
// is recognized either way.
func (p *GoogleProvider) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	log := logging.For("stt")
	startTime := time.Now()

	audioBytes, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	fileExt := filepath.Ext(audioPath)
	log.Debug("Google STT processing audio file", "path", audioPath, "bytes", len(audioBytes), "ext", fileExt)

	encoding, sampleRate := googleAudioConfig(fileExt)

	reqJSON, err := json.Marshal(googleRequest{
		Config: googleRecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            sampleRate,
			LanguageCode:               "en-IN",
			AlternativeLanguageCodes:   []string{"hi-IN"},
			EnableAutomaticPunctuation: true,
			Model:                      "latest_short",
		},
		Audio: googleAudio{Content: base64.StdEncoding.EncodeToString(audioBytes)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var apiURL string
	if p.useAPIKey {
		apiURL = fmt.Sprintf("%s/v1/speech:recognize?key=%s", p.endpoint, p.apiKey)
	} else {
		apiURL = p.endpoint + "/v1/speech:recognize"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.projectID != "" {
		req.Header.Set("X-Goog-User-Project", p.projectID)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Warn("Google STT HTTP error", "error", err)
		return &Result{Provider: p.Name()}, fmt.Errorf("failed to send request to Google Speech-to-Text: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	failed := &Result{Provider: p.Name(), RawResponse: string(body)}

	if resp.StatusCode != http.StatusOK {
		var wrapped googleResponse
		if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil {
			log.Warn("Google STT API error", "code", wrapped.Error.Code, "status", wrapped.Error.Status, "message", wrapped.Error.Message)
			return failed, fmt.Errorf("Google Speech-to-Text API error: %s", wrapped.Error.Message)
		}
		return failed, fmt.Errorf("Google Speech-to-Text API returned status %d", resp.StatusCode)
	}

	var sttResp googleResponse
	if err := json.Unmarshal(body, &sttResp); err != nil {
		return failed, fmt.Errorf("failed to parse Google Speech-to-Text response: %w", err)
	}
	if sttResp.Error != nil {
		return failed, fmt.Errorf("Google Speech-to-Text API error: %s", sttResp.Error.Message)
	}
	if len(sttResp.Results) == 0 || len(sttResp.Results[0].Alternatives) == 0 {
		return failed, fmt.Errorf("no speech detected in audio")
	}

	var parts []string
	var confidence float64
	for i, r := range sttResp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(r.Alternatives[0].Transcript))
		if i == 0 {
			confidence = r.Alternatives[0].Confidence
		}
	}
	transcript := strings.TrimSpace(strings.Join(parts, " "))
	if transcript == "" {
		return failed, fmt.Errorf("empty transcript returned")
	}
	if confidence == 0 {
		confidence = DefaultConfidence
	}

	log.Info("Transcription successful",
		"provider", p.Name(),
		"language", sttResp.Results[0].LanguageCode,
		"confidence", confidence,
		"length", len(transcript),
		"duration", time.Since(startTime))

	return &Result{
		Transcript:  transcript,
		Language:    strings.ToLower(sttResp.Results[0].LanguageCode),
		Confidence:  confidence,
		Provider:    p.Name(),
		RawResponse: string(body),
	}, nil
}

// googleAudioConfig determines encoding and sample rate based on file extension.
// A zero rate lets the service read it from the file header.
func googleAudioConfig(fileExt string) (string, int) {
	switch strings.ToLower(fileExt) {
	case ".wav":
		return "LINEAR16", 0
	case ".mp3":
		return "MP3", 44100
	case ".ogg", ".opus":
		return "OGG_OPUS", 48000
	case ".webm":
		return "WEBM_OPUS", 48000
	case ".flac":
		return "FLAC", 0
	default:
		return "ENCODING_UNSPECIFIED", 0
	}
}
