package model

import (
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the display format used in responses.
const TimestampLayout = "2006-01-02 15:04:05"

// DiagnosisResponse is returned for a classified leaf image.
type DiagnosisResponse struct {
	DiseaseID   string   `json:"disease_id"`
	DiseaseName string   `json:"disease_name"`
	Confidence  float64  `json:"confidence"`
	ImagePath   string   `json:"image_path"`
	Treatment   string   `json:"treatment"`
	Prevention  string   `json:"prevention"`
	Pesticide   string   `json:"pesticide"`
	Dosage      string   `json:"dosage"`
	Cost        string   `json:"cost"`
	Steps       []string `json:"steps"`
	Timing      string   `json:"timing"`
	Safety      string   `json:"safety"`
	Links       []string `json:"links"`
	Timestamp   string   `json:"timestamp"`
}

// VoiceAnswer is returned for a spoken question. AudioURL is nil when no
// speech could be synthesized.
type VoiceAnswer struct {
	Transcription string  `json:"transcription"`
	Language      string  `json:"language"`
	Response      string  `json:"response"`
	Source        string  `json:"source"`
	AudioURL      *string `json:"audio_url"`
	Timestamp     string  `json:"timestamp"`
}

// Diagnosis is a stored record of one successful classification.
type Diagnosis struct {
	ID          uuid.UUID `json:"id" gorm:"type:text;primaryKey"`
	DiseaseID   string    `json:"disease_id" gorm:"index;not null"`
	DiseaseName string    `json:"disease_name" gorm:"not null"`
	Confidence  float64   `json:"confidence"`
	ImagePath   string    `json:"image_path"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}
