package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "static/uploads", cfg.UploadFolder)
	assert.Equal(t, int64(16*1024*1024), cfg.MaxContentLength)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxAudioBytes)
	assert.Equal(t, 224, cfg.ImageSize)
	assert.Equal(t, int64(40_000_000), cfg.MaxPixels)
	assert.Equal(t, 10*time.Minute, cfg.AudioTTL)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
	assert.Equal(t, 100*time.Second, cfg.LLM.Timeout)
	assert.Zero(t, cfg.LLM.ReprobeInterval)
	assert.Equal(t, cfg.LLM.Model, cfg.LLM.ModelHindi)
	assert.Equal(t, "whisper", cfg.STT.Provider)
	assert.NotEmpty(t, cfg.TempDir)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434/")
	t.Setenv("OLLAMA_MODEL_HI", "aya")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("STT_PROVIDER", "GOOGLE")
	t.Setenv("MAX_CONTENT_LENGTH", "1024")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "http://ollama:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "aya", cfg.LLM.ModelHindi)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "google", cfg.STT.Provider)
	assert.Equal(t, int64(1024), cfg.MaxContentLength)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agrox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\naudio_dir: /tmp/agrox-audio\n"), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/tmp/agrox-audio", cfg.AudioDir)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown stt provider", env: map[string]string{"STT_PROVIDER": "fpt"}},
		{name: "zero image size", env: map[string]string{"IMAGE_SIZE": "0"}},
		{name: "zero pixel cap", env: map[string]string{"MAX_IMAGE_PIXELS": "0"}},
		{name: "negative payload ceiling", env: map[string]string{"MAX_CONTENT_LENGTH": "-1"}},
		{name: "zero llm timeout", env: map[string]string{"LLM_TIMEOUT": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(New(), "")
			require.Error(t, err)
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
