// Package ai answers farmers' free-text questions with a local language
// model served by Ollama.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"agrox/internal/config"
	"agrox/internal/logging"
	"agrox/internal/metrics"
)

// Source says where a reply came from.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Reply is the advisor's answer. It is always non-empty.
type Reply struct {
	Text     string
	Source   Source
	Language Language
}

const probeTimeout = 5 * time.Second

// Advisor forwards questions to an Ollama server through its
// OpenAI-compatible API. Answer never fails: every error maps to a canned
// reply in the question's language.
type Advisor struct {
	client     *openai.Client
	probeURL   string
	httpClient *http.Client
	models     map[Language]string
	timeout    time.Duration
	reprobe    time.Duration
	metrics    *metrics.Metrics

	available atomic.Bool
}

// NewAdvisor creates an advisor. The service is considered offline until
// Probe or Start succeeds.
func NewAdvisor(cfg config.LLMConfig, m *metrics.Metrics) *Advisor {
	base := strings.TrimRight(cfg.BaseURL, "/")

	clientConfig := openai.DefaultConfig("ollama")
	clientConfig.BaseURL = base + "/v1"
	clientConfig.HTTPClient = &http.Client{}

	hindiModel := cfg.ModelHindi
	if hindiModel == "" {
		hindiModel = cfg.Model
	}

	return &Advisor{
		client:     openai.NewClientWithConfig(clientConfig),
		probeURL:   base + "/api/tags",
		httpClient: &http.Client{Timeout: probeTimeout},
		models: map[Language]string{
			English:  cfg.Model,
			Hindi:    hindiModel,
			Hinglish: hindiModel,
		},
		timeout: cfg.Timeout,
		reprobe: cfg.ReprobeInterval,
		metrics: m,
	}
}

// Available reports the result of the most recent probe.
func (a *Advisor) Available() bool {
	return a.available.Load()
}

// Probe checks whether the service answers GET /api/tags and records the
// result.
func (a *Advisor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	ok := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.probeURL, nil)
	if err == nil {
		var resp *http.Response
		resp, err = a.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			ok = resp.StatusCode == http.StatusOK
			if !ok {
				err = fmt.Errorf("status %d", resp.StatusCode)
			}
		}
	}

	was := a.available.Swap(ok)
	a.metrics.SetLLMAvailable(ok)

	log := logging.For("advisor")
	switch {
	case ok && !was:
		log.Info("Advisory service is available", "url", a.probeURL)
	case !ok && was:
		log.Warn("Advisory service went offline", "url", a.probeURL, "error", err)
	case !ok:
		log.Warn("Advisory service not reachable, answers will use fallback text", "url", a.probeURL, "error", err)
	}
	return ok
}

// Start probes once. With a positive re-probe interval it keeps probing in
// the background until ctx is cancelled.
func (a *Advisor) Start(ctx context.Context) {
	a.Probe(ctx)
	if a.reprobe <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(a.reprobe)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Probe(ctx)
			}
		}
	}()
}

// Answer returns advice for question. An invalid lang is detected from the
// question text.
func (a *Advisor) Answer(ctx context.Context, question string, dc DiseaseContext, lang Language) Reply {
	log := logging.For("advisor")
	if !lang.Valid() {
		lang = DetectLanguage(question)
	}

	if !a.Available() {
		a.metrics.RecordLLM("offline", 0)
		return fallbackReply(lang, fallbackOffline)
	}

	system, user := BuildPrompt(question, dc, lang)
	model := a.models[lang]

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.3,
	})
	elapsed := time.Since(start)

	if err != nil {
		kind := classifyError(err)
		log.Warn("Advisory request failed", "model", model, "kind", kind, "error", err, "duration", elapsed)
		a.metrics.RecordLLM(string(kind), elapsed)
		return fallbackReply(lang, kind)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		log.Warn("Advisory service returned no content", "model", model)
		a.metrics.RecordLLM(string(fallbackEmpty), elapsed)
		return fallbackReply(lang, fallbackEmpty)
	}

	log.Info("Advisory answer received",
		"model", model,
		"language", lang,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", elapsed)
	a.metrics.RecordLLM("ok", elapsed)

	return Reply{
		Text:     strings.TrimSpace(resp.Choices[0].Message.Content),
		Source:   SourceLLM,
		Language: lang,
	}
}

type fallbackKind string

const (
	fallbackOffline     fallbackKind = "offline"
	fallbackTimeout     fallbackKind = "timeout"
	fallbackBadStatus   fallbackKind = "bad_status"
	fallbackUnreachable fallbackKind = "unreachable"
	fallbackEmpty       fallbackKind = "empty"
)

func classifyError(err error) fallbackKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return fallbackTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fallbackTimeout
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fallbackBadStatus
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fallbackBadStatus
	}
	return fallbackUnreachable
}

var fallbackTexts = map[Language]map[fallbackKind]string{
	English: {
		fallbackOffline:     "The AI advisor is offline right now. Please follow the recommended treatment shown with your diagnosis, or contact your local Krishi Vigyan Kendra for help.",
		fallbackTimeout:     "The AI advisor took too long to answer. Please try again in a moment, or ask a shorter question.",
		fallbackBadStatus:   "The AI advisor could not process your question right now. Please try again later.",
		fallbackUnreachable: "The AI advisor could not be reached. Please check your connection and try again.",
		fallbackEmpty:       "The AI advisor did not return an answer. Please rephrase your question and try again.",
	},
	Hindi: {
		fallbackOffline:     "AI सलाहकार अभी ऑफ़लाइन है। कृपया निदान के साथ बताए गए उपचार का पालन करें या अपने नज़दीकी कृषि विज्ञान केंद्र से संपर्क करें।",
		fallbackTimeout:     "AI सलाहकार को उत्तर देने में बहुत समय लग गया। कृपया थोड़ी देर बाद फिर से प्रयास करें।",
		fallbackBadStatus:   "AI सलाहकार अभी आपके प्रश्न को संसाधित नहीं कर सका। कृपया बाद में प्रयास करें।",
		fallbackUnreachable: "AI सलाहकार से संपर्क नहीं हो सका। कृपया अपना कनेक्शन जांचें और फिर से प्रयास करें।",
		fallbackEmpty:       "AI सलाहकार ने कोई उत्तर नहीं दिया। कृपया अपना प्रश्न दोबारा पूछें।",
	},
	Hinglish: {
		fallbackOffline:     "AI advisor abhi offline hai. Diagnosis ke saath bataya gaya treatment follow kijiye ya apne local Krishi Vigyan Kendra se contact kijiye.",
		fallbackTimeout:     "AI advisor ko jawab dene mein bahut time lag gaya. Thodi der baad dobara try kijiye.",
		fallbackBadStatus:   "AI advisor abhi aapka sawal process nahi kar paya. Baad mein try kijiye.",
		fallbackUnreachable: "AI advisor se connect nahi ho paya. Apna connection check karke dobara try kijiye.",
		fallbackEmpty:       "AI advisor ne koi jawab nahi diya. Apna sawal dobara puchiye.",
	},
}

func fallbackReply(lang Language, kind fallbackKind) Reply {
	texts, ok := fallbackTexts[lang]
	if !ok {
		lang = English
		texts = fallbackTexts[English]
	}
	return Reply{Text: texts[kind], Source: SourceFallback, Language: lang}
}
