// Package api exposes the diagnosis and voice pipelines over HTTP.
package api

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agrox/internal/knowledge"
	"agrox/internal/logging"
	"agrox/internal/metrics"
	"agrox/internal/pipeline"
	"agrox/internal/repository"
	"agrox/internal/storage"
	"agrox/internal/utils"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Deps are the collaborators a Server routes to. Audio, History and Metrics
// may be nil.
type Deps struct {
	Inference     *pipeline.Inference
	Voice         *pipeline.Voice
	Advisor       pipeline.Responder
	Knowledge     *knowledge.Base
	Uploads       *storage.Uploads
	Audio         *storage.AudioStore
	History       repository.DiagnosisRepository
	Metrics       *metrics.Metrics
	SessionSecret string
	MaxImageBytes int64
	MaxAudioBytes int64
}

// Server holds everything request handlers need. It is built once at
// startup and shared by all requests.
type Server struct {
	Deps
	flash     *flasher
	templates *template.Template
	now       func() time.Time
}

func NewServer(d Deps) (*Server, error) {
	if d.Inference == nil || d.Voice == nil || d.Advisor == nil || d.Knowledge == nil || d.Uploads == nil {
		return nil, fmt.Errorf("api server is missing a required dependency")
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Server{
		Deps:      d,
		flash:     newFlasher(d.SessionSecret),
		templates: tmpl,
		now:       time.Now,
	}, nil
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}

// NewEngine returns a gin engine with middleware and all routes.
func (s *Server) NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.CustomRecovery(recoverJSON), corsMiddleware())
	r.SetHTMLTemplate(s.templates)
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	// Pages
	r.GET("/", s.index)
	r.GET("/detect-disease", s.detectPage)
	r.POST("/detect", s.detect)
	r.GET("/voice-assistant", s.voicePage)

	// JSON
	r.POST("/chat", s.chat)
	r.POST("/voice-query", s.voiceQuery)

	// Files
	r.GET("/audio/:filename", s.serveAudio)
	r.GET("/uploads/:filename", s.serveUpload)

	api := r.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/sensor-data", s.sensorData)
		api.GET("/diseases", s.listDiseases)
		api.GET("/diseases/:id", s.getDisease)
		api.POST("/detect", s.detectJSON)
		api.GET("/diagnoses", s.listDiagnoses)
		api.GET("/diagnoses/:id", s.getDiagnosis)
	}

	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}
}

func recoverJSON(c *gin.Context, recovered any) {
	logging.For("api").Error("Handler panicked", "path", c.Request.URL.Path, "panic", recovered)
	utils.Abort(c, http.StatusInternalServerError, "Internal server error")
}
