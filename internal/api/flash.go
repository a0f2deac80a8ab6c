package api

import (
	"crypto/sha256"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"

	"agrox/internal/logging"
)

const (
	flashSession = "agrox_flash"
	flashError   = "error"
)

// flasher keeps one-shot messages in a signed cookie across a redirect.
type flasher struct {
	store *sessions.CookieStore
}

func newFlasher(secret string) *flasher {
	key := sha256.Sum256([]byte(secret))
	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   0,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &flasher{store: store}
}

// Error queues msg for the next page render.
func (f *flasher) Error(c *gin.Context, msg string) {
	// A tampered or stale cookie yields a fresh session, which is fine here.
	sess, _ := f.store.Get(c.Request, flashSession)
	sess.AddFlash(msg, flashError)
	if err := sess.Save(c.Request, c.Writer); err != nil {
		logging.For("api").Warn("Failed to save flash message", "error", err)
	}
}

// Errors pops the queued error messages.
func (f *flasher) Errors(c *gin.Context) []string {
	sess, _ := f.store.Get(c.Request, flashSession)
	flashes := sess.Flashes(flashError)
	if len(flashes) == 0 {
		return nil
	}
	if err := sess.Save(c.Request, c.Writer); err != nil {
		logging.For("api").Warn("Failed to clear flash messages", "error", err)
	}
	out := make([]string, 0, len(flashes))
	for _, v := range flashes {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
