package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"agrox/internal/logging"
	"agrox/internal/metrics"
)

// ErrAudioNotFound is returned for unknown, expired or already served audio.
var ErrAudioNotFound = errors.New("audio file not found")

// AudioStore keeps generated answer audio in one directory. Each file can
// be taken once; files never taken are removed when their TTL expires.
type AudioStore struct {
	dir     string
	cache   *cache.Cache
	metrics *metrics.Metrics

	// serializes Take so a file is handed out at most once
	mu sync.Mutex
}

// NewAudioStore creates dir if needed and removes files left over from a
// previous run. The directory is owned by the store.
func NewAudioStore(dir string, ttl time.Duration, m *metrics.Metrics) (*AudioStore, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("audio TTL must be positive")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}

	s := &AudioStore{
		dir:     dir,
		cache:   cache.New(ttl, sweepInterval(ttl)),
		metrics: m,
	}
	s.cache.OnEvicted(s.evicted)

	if n, err := s.sweepOrphans(); err != nil {
		logging.For("storage").Warn("Failed to sweep audio directory", "dir", dir, "error", err)
	} else if n > 0 {
		logging.For("storage").Info("Removed orphaned answer audio", "dir", dir, "files", n)
	}
	return s, nil
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}

// Save creates a new audio file named "<32 hex>.<ext>" and fills it with
// write. On error nothing is kept.
func (s *AudioStore) Save(ext string, write func(io.Writer) error) (string, error) {
	id := uuid.New()
	name := fmt.Sprintf("%x.%s", id[:], strings.TrimPrefix(ext, "."))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	s.cache.SetDefault(name, path)
	s.metrics.RecordAudioFile("created")
	return name, nil
}

// Take hands out the file for name exactly once. The caller streams the
// returned path and must call release afterwards, which deletes the file.
func (s *AudioStore) Take(name string) (string, func(), error) {
	if !validName(name) {
		return "", nil, ErrAudioNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, found := s.cache.Get(name)
	if !found {
		return "", nil, ErrAudioNotFound
	}
	path := v.(string)
	serving := path + ".serving"
	if err := os.Rename(path, serving); err != nil {
		s.cache.Delete(name)
		return "", nil, ErrAudioNotFound
	}
	// The entry is gone before the file is streamed; eviction finds nothing
	// left to remove at path.
	s.cache.Delete(name)
	s.metrics.RecordAudioFile("served")

	return serving, func() { os.Remove(serving) }, nil
}

// Len reports the number of files waiting to be served.
func (s *AudioStore) Len() int {
	return s.cache.ItemCount()
}

// Close removes every pending file.
func (s *AudioStore) Close() {
	s.cache.DeleteExpired()
	for name := range s.cache.Items() {
		s.cache.Delete(name)
	}
}

func (s *AudioStore) evicted(name string, v any) {
	path, ok := v.(string)
	if !ok {
		return
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		s.metrics.RecordAudioFile("expired")
		logging.For("storage").Debug("Answer audio expired", "file", name)
	case !errors.Is(err, os.ErrNotExist):
		logging.For("storage").Warn("Failed to remove answer audio", "file", name, "error", err)
	}
}

func (s *AudioStore) sweepOrphans() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
