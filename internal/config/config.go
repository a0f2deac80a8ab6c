package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	GinMode       string
	SessionSecret string

	UploadFolder     string
	MaxContentLength int64
	MaxAudioBytes    int64
	TempDir          string

	ModelPath    string
	ModelThreads int
	ImageSize    int
	MaxPixels    int64

	AudioDir string
	AudioTTL time.Duration

	LLM LLMConfig
	STT STTConfig
	TTS TTSConfig

	DatabasePath string

	LogLevel string
	LogFile  string
}

// LLMConfig configures the Ollama-style advisory service.
type LLMConfig struct {
	BaseURL         string
	Model           string
	ModelHindi      string
	Timeout         time.Duration
	ReprobeInterval time.Duration
}

type STTConfig struct {
	Provider        string
	WhisperBaseURL  string
	WhisperModel    string
	WhisperAPIKey   string
	GoogleProjectID string
	GoogleKeyFile   string
	FFmpegPath      string
}

type TTSConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	VoiceEN string
	VoiceHI string
}

var defaults = map[string]any{
	"port":                  "5000",
	"gin_mode":              "",
	"session_secret":        "agrox-ai-secret-key-2025",
	"upload_folder":         "static/uploads",
	"max_content_length":    16 * 1024 * 1024,
	"max_audio_bytes":       10 * 1024 * 1024,
	"temp_dir":              "",
	"model_path":            "model/plant_disease_model.tflite",
	"model_threads":         0,
	"image_size":            224,
	"max_image_pixels":      40_000_000,
	"audio_dir":             "static/audio",
	"audio_ttl":             "10m",
	"ollama_base_url":       "http://localhost:11434",
	"ollama_model":          "llama3.2",
	"ollama_model_hi":       "",
	"llm_timeout":           "100s",
	"llm_reprobe_interval":  "0s",
	"stt_provider":          "whisper",
	"whisper_base_url":      "http://localhost:8000/v1",
	"whisper_model":         "whisper-1",
	"whisper_api_key":       "",
	"google_stt_project_id": "",
	"google_stt_key_file":   "",
	"ffmpeg_path":           "ffmpeg",
	"tts_base_url":          "http://localhost:8000/v1",
	"tts_api_key":           "",
	"tts_model":             "tts-1",
	"tts_voice_en":          "alloy",
	"tts_voice_hi":          "nova",
	"database_path":         "",
	"log_level":             "info",
	"log_file":              "",
}

// New returns a viper instance with defaults applied and environment
// variables bound (PORT, OLLAMA_BASE_URL, ...).
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// SECRET_KEY is accepted as an alias.
	_ = v.BindEnv("session_secret", "SESSION_SECRET", "SECRET_KEY")
	return v
}

// Load reads configuration from v. An optional config file is merged when
// configFile is non-empty.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = New()
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Port:             v.GetString("port"),
		GinMode:          v.GetString("gin_mode"),
		SessionSecret:    v.GetString("session_secret"),
		UploadFolder:     v.GetString("upload_folder"),
		MaxContentLength: v.GetInt64("max_content_length"),
		MaxAudioBytes:    v.GetInt64("max_audio_bytes"),
		TempDir:          v.GetString("temp_dir"),
		ModelPath:        v.GetString("model_path"),
		ModelThreads:     v.GetInt("model_threads"),
		ImageSize:        v.GetInt("image_size"),
		MaxPixels:        v.GetInt64("max_image_pixels"),
		AudioDir:         v.GetString("audio_dir"),
		AudioTTL:         v.GetDuration("audio_ttl"),
		LLM: LLMConfig{
			BaseURL:         strings.TrimRight(v.GetString("ollama_base_url"), "/"),
			Model:           v.GetString("ollama_model"),
			ModelHindi:      v.GetString("ollama_model_hi"),
			Timeout:         v.GetDuration("llm_timeout"),
			ReprobeInterval: v.GetDuration("llm_reprobe_interval"),
		},
		STT: STTConfig{
			Provider:        strings.ToLower(v.GetString("stt_provider")),
			WhisperBaseURL:  v.GetString("whisper_base_url"),
			WhisperModel:    v.GetString("whisper_model"),
			WhisperAPIKey:   v.GetString("whisper_api_key"),
			GoogleProjectID: v.GetString("google_stt_project_id"),
			GoogleKeyFile:   v.GetString("google_stt_key_file"),
			FFmpegPath:      v.GetString("ffmpeg_path"),
		},
		TTS: TTSConfig{
			BaseURL: v.GetString("tts_base_url"),
			APIKey:  v.GetString("tts_api_key"),
			Model:   v.GetString("tts_model"),
			VoiceEN: v.GetString("tts_voice_en"),
			VoiceHI: v.GetString("tts_voice_hi"),
		},
		DatabasePath: v.GetString("database_path"),
		LogLevel:     v.GetString("log_level"),
		LogFile:      v.GetString("log_file"),
	}

	if cfg.LLM.ModelHindi == "" {
		cfg.LLM.ModelHindi = cfg.LLM.Model
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.UploadFolder == "" {
		return fmt.Errorf("UPLOAD_FOLDER must not be empty")
	}
	if c.AudioDir == "" {
		return fmt.Errorf("AUDIO_DIR must not be empty")
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	if c.MaxAudioBytes <= 0 {
		return fmt.Errorf("MAX_AUDIO_BYTES must be positive, got %d", c.MaxAudioBytes)
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("IMAGE_SIZE must be positive, got %d", c.ImageSize)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.MaxPixels)
	}
	if c.AudioTTL <= 0 {
		return fmt.Errorf("AUDIO_TTL must be positive, got %s", c.AudioTTL)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLM.Timeout)
	}
	switch c.STT.Provider {
	case "whisper", "google":
	default:
		return fmt.Errorf("unsupported STT provider: %s. Supported: whisper, google", c.STT.Provider)
	}
	return nil
}
