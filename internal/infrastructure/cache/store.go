package cache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

const (
	bodyExt = ".zst"
	metaExt = ".meta.json"

	metaPattern = "**/*" + metaExt
)

// ErrMiss is returned by Get when no fresh entry exists
var ErrMiss = errors.New("cache miss")

// Entry describes a stored body
type Entry struct {
	URL         string    `json:"url"`
	StoredAt    time.Time `json:"stored_at"`
	Size        int       `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
}

// Age returns how old the entry is at now
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Store is a zstd-compressed, URL-keyed file cache. Bodies and their
// metadata live side by side under a two-character shard directory.
type Store struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time

	// mu serializes writers; readers rely on atomic renames
	mu sync.Mutex
}

// Open creates dir if needed and returns a store rooted there
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{
		dir:     dir,
		encoder: encoder,
		decoder: decoder,
		now:     time.Now,
	}, nil
}

// Dir returns the root directory
func (s *Store) Dir() string {
	return s.dir
}

// Key returns the hex blake2b-256 digest naming url's files
func Key(url string) string {
	sum := blake2b.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (s *Store) paths(url string) (body, meta string) {
	key := Key(url)
	base := filepath.Join(s.dir, key[:2], key)
	return base + bodyExt, base + metaExt
}

// Get returns the body stored for url if it is younger than maxAge. A
// maxAge of zero accepts any age.
func (s *Store) Get(url string, maxAge time.Duration) ([]byte, *Entry, error) {
	bodyPath, metaPath := s.paths(url)

	entry, err := readEntry(metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrMiss
		}
		return nil, nil, err
	}
	if entry.URL != url {
		return nil, nil, ErrMiss
	}
	if maxAge > 0 && entry.Age(s.now()) > maxAge {
		return nil, entry, ErrMiss
	}

	compressed, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrMiss
		}
		return nil, nil, fmt.Errorf("read cache body: %w", err)
	}

	body, err := s.decoder.DecodeAll(compressed, make([]byte, 0, entry.Size))
	if err != nil {
		return nil, nil, fmt.Errorf("decode cache body: %w", err)
	}
	return body, entry, nil
}

// Put stores body for url, replacing any previous entry
func (s *Store) Put(url string, body []byte, contentType string) error {
	bodyPath, metaPath := s.paths(url)

	entry := Entry{
		URL:         url,
		StoredAt:    s.now().UTC(),
		Size:        len(body),
		ContentType: contentType,
	}
	meta, err := sonic.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}
	// Body first: an entry is only visible once its metadata lands.
	if err := writeAtomic(bodyPath, s.encoder.EncodeAll(body, nil)); err != nil {
		return err
	}
	return writeAtomic(metaPath, meta)
}

// Delete removes the entry for url
func (s *Store) Delete(url string) error {
	bodyPath, metaPath := s.paths(url)

	s.mu.Lock()
	defer s.mu.Unlock()

	return removeAll(metaPath, bodyPath)
}

// Prune removes entries older than maxAge and entries whose metadata cannot
// be read. It returns the number of entries removed.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	now := s.now()

	var (
		mu    sync.Mutex
		stale []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(metaPattern, filepath.ToSlash(rel)); !ok {
			return nil
		}

		entry, err := readEntry(p)
		if err == nil && entry.Age(now) <= maxAge {
			return nil
		}

		mu.Lock()
		stale = append(stale, p)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, metaPath := range stale {
		bodyPath := metaPath[:len(metaPath)-len(metaExt)] + bodyExt
		if err := removeAll(metaPath, bodyPath); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Close releases the zstd encoder and decoder
func (s *Store) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

func readEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", filepath.Base(path), err)
	}
	return &entry, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func removeAll(paths ...string) error {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}
