package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"agrox/internal/ai"
	"agrox/internal/knowledge"
	"agrox/internal/logging"
	"agrox/internal/model"
	"agrox/internal/pipeline"
	"agrox/internal/repository"
	"agrox/internal/utils"
)

// multipartOverhead is allowed on top of the payload limit for form
// boundaries and headers.
const multipartOverhead = 1 << 20

// healthTimestamp matches Python's datetime.isoformat() for naive times.
const healthTimestamp = "2006-01-02T15:04:05.000000"

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// statusFor maps a pipeline failure kind to an HTTP status.
func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindNoFile, pipeline.KindUnsupportedType, pipeline.KindTooLarge,
		pipeline.KindTranscriptionFailed:
		return http.StatusBadRequest
	case pipeline.KindPreprocessFailed:
		return http.StatusUnprocessableEntity
	case pipeline.KindModelUnavailable, pipeline.KindAdvisoryServiceUnavailable:
		return http.StatusServiceUnavailable
	case pipeline.KindSynthesisFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readUpload reads one multipart file field of at most limit bytes. The
// pipeline enforces the exact limit; the body reader only stops clients
// from streaming far past it.
func readUpload(c *gin.Context, field, what, missing string, limit int64) ([]byte, string, *pipeline.PipelineError) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", &pipeline.PipelineError{
				Kind:    pipeline.KindTooLarge,
				Message: pipeline.TooLargeMessage(what, limit),
				Err:     err,
			}
		}
		// Browsers send an empty filename when nothing was picked, which the
		// multipart reader files under form values.
		if form := c.Request.MultipartForm; form != nil {
			if _, ok := form.Value[field]; ok {
				return nil, "", &pipeline.PipelineError{Kind: pipeline.KindNoFile, Message: pipeline.MsgNoFileSelected, Err: err}
			}
		}
		return nil, "", &pipeline.PipelineError{Kind: pipeline.KindNoFile, Message: missing, Err: err}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fh.Filename, &pipeline.PipelineError{Kind: pipeline.KindInternal, Message: "Failed to read upload", Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fh.Filename, &pipeline.PipelineError{Kind: pipeline.KindInternal, Message: "Failed to read upload", Err: err}
	}
	return data, fh.Filename, nil
}

// index renders the landing page
func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Flashes":       s.flash.Errors(c),
		"ModelLoaded":   s.Inference.ModelLoaded(),
		"TotalDiseases": s.Knowledge.Len(),
	})
}

// detectPage renders the upload form with any flashed errors
func (s *Server) detectPage(c *gin.Context) {
	c.HTML(http.StatusOK, "detect.html", gin.H{
		"Flashes":     s.flash.Errors(c),
		"ModelLoaded": s.Inference.ModelLoaded(),
	})
}

// detect handles the upload form. Failures go back to the form as a
// flash message.
func (s *Server) detect(c *gin.Context) {
	data, filename, perr := readUpload(c, "image", "Image", pipeline.MsgNoImage, s.MaxImageBytes)
	if perr != nil {
		s.backToForm(c, perr)
		return
	}
	resp, perr := s.Inference.Handle(c.Request.Context(), data, filename)
	if perr != nil {
		s.backToForm(c, perr)
		return
	}
	c.HTML(http.StatusOK, "result.html", gin.H{"Result": resp})
}

func (s *Server) backToForm(c *gin.Context, perr *pipeline.PipelineError) {
	logging.For("api").Info("Diagnosis rejected", "kind", perr.Kind, "error", perr.Err)
	s.flash.Error(c, perr.Message)
	c.Redirect(http.StatusFound, "/detect-disease")
}

// detectJSON is the JSON flavour of detect
func (s *Server) detectJSON(c *gin.Context) {
	data, filename, perr := readUpload(c, "image", "Image", pipeline.MsgNoImage, s.MaxImageBytes)
	if perr != nil {
		utils.Error(c, statusFor(perr.Kind), perr.Message)
		return
	}
	resp, perr := s.Inference.Handle(c.Request.Context(), data, filename)
	if perr != nil {
		utils.Error(c, statusFor(perr.Kind), perr.Message)
		return
	}
	utils.Success(c, resp)
}

// ChatRequest is the body of POST /chat. Context is optional and may be the
// diagnosis shown on the result page or a free-text note.
type ChatRequest struct {
	Question string            `json:"question"`
	Context  ai.DiseaseContext `json:"context"`
	Language string            `json:"language"`
}

// chat answers a typed question
func (s *Server) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		utils.Error(c, http.StatusBadRequest, "Question cannot be empty")
		return
	}

	lang, ok := ai.ParseLanguage(req.Language)
	if !ok {
		lang = ai.DetectLanguage(question)
	}

	reply := s.Advisor.Answer(c.Request.Context(), question, req.Context, lang)

	c.Header("Content-Language", reply.Language.Tag().String())
	utils.Success(c, gin.H{
		"response":      reply.Text,
		"source":        reply.Source,
		"language":      reply.Language,
		"llm_available": s.Advisor.Available(),
		"timestamp":     s.now().Format(model.TimestampLayout),
	})
}

// voicePage renders the voice assistant
func (s *Server) voicePage(c *gin.Context) {
	c.HTML(http.StatusOK, "voice.html", gin.H{
		"LLMAvailable": s.Advisor.Available(),
	})
}

// voiceQuery answers a recorded question
func (s *Server) voiceQuery(c *gin.Context) {
	data, filename, perr := readUpload(c, "audio", "Audio", "No audio file provided", s.MaxAudioBytes)
	if perr != nil {
		utils.Error(c, statusFor(perr.Kind), perr.Message)
		return
	}

	answer, perr := s.Voice.Handle(c.Request.Context(), data, filename)
	if perr != nil {
		utils.Error(c, statusFor(perr.Kind), perr.Message)
		return
	}
	c.Header("Content-Language", ai.Language(answer.Language).Tag().String())
	utils.Success(c, answer)
}

// serveAudio streams a generated answer once; the file is gone afterwards
func (s *Server) serveAudio(c *gin.Context) {
	name := c.Param("filename")
	if s.Audio == nil {
		utils.Error(c, http.StatusNotFound, "Audio file not found")
		return
	}

	path, release, err := s.Audio.Take(name)
	if err != nil {
		utils.Error(c, http.StatusNotFound, "Audio file not found")
		return
	}
	defer release()

	f, err := os.Open(path)
	if err != nil {
		utils.Error(c, http.StatusNotFound, "Audio file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		utils.Error(c, http.StatusInternalServerError, "Failed to read audio file")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), audioContentType(name), f, nil)
}

func audioContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// serveUpload serves a stored leaf image
func (s *Server) serveUpload(c *gin.Context) {
	path, err := s.Uploads.Path(c.Param("filename"))
	if err != nil {
		utils.Error(c, http.StatusNotFound, "File not found")
		return
	}
	c.File(path)
}

// health returns server health status
func (s *Server) health(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":         "healthy",
		"model_loaded":   s.Inference.ModelLoaded(),
		"llm_available":  s.Advisor.Available(),
		"total_diseases": s.Knowledge.Len(),
		"timestamp":      s.now().Format(healthTimestamp),
	})
}

// listDiseases returns every known class in model order
func (s *Server) listDiseases(c *gin.Context) {
	classes := s.Knowledge.Classes()
	items := make([]gin.H, 0, len(classes))
	for _, id := range classes {
		items = append(items, gin.H{
			"id":   id,
			"name": id.DisplayName(),
		})
	}
	utils.Success(c, gin.H{
		"diseases": items,
		"total":    len(items),
	})
}

type diseaseView struct {
	knowledge.Record
	Name  string `json:"name"`
	Known bool   `json:"known"`
}

// getDisease returns one treatment record, or the fallback for unknown ids
func (s *Server) getDisease(c *gin.Context) {
	id := knowledge.DiseaseID(c.Param("id"))
	record, found := s.Knowledge.Lookup(id)
	utils.Success(c, diseaseView{
		Record: record,
		Name:   id.DisplayName(),
		Known:  found,
	})
}

// listDiagnoses returns recent diagnoses and per-disease totals
func (s *Server) listDiagnoses(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultHistoryLimit)
	if err != nil || limit <= 0 {
		utils.Error(c, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		utils.Error(c, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	if s.History == nil {
		utils.Success(c, gin.H{"diagnoses": []model.Diagnosis{}, "counts": map[string]int64{}})
		return
	}

	ctx := c.Request.Context()
	diagnoses, err := s.History.ListRecent(ctx, limit, offset)
	if err != nil {
		logging.For("api").Error("Failed to list diagnoses", "error", err)
		utils.Error(c, http.StatusInternalServerError, "Failed to load diagnosis history")
		return
	}
	counts, err := s.History.CountByDisease(ctx)
	if err != nil {
		logging.For("api").Error("Failed to count diagnoses", "error", err)
		utils.Error(c, http.StatusInternalServerError, "Failed to load diagnosis history")
		return
	}

	utils.Success(c, gin.H{
		"diagnoses": diagnoses,
		"counts":    counts,
		"limit":     limit,
		"offset":    offset,
	})
}

// getDiagnosis returns one stored diagnosis
func (s *Server) getDiagnosis(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "Invalid diagnosis id")
		return
	}
	if s.History == nil {
		utils.Error(c, http.StatusNotFound, "Diagnosis not found")
		return
	}

	d, err := s.History.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Error(c, http.StatusNotFound, "Diagnosis not found")
		return
	}
	if err != nil {
		logging.For("api").Error("Failed to load diagnosis", "id", id, "error", err)
		utils.Error(c, http.StatusInternalServerError, "Failed to load diagnosis history")
		return
	}
	utils.Success(c, d)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
