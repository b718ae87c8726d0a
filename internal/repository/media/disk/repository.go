// Package disk implements the media store on the local filesystem.
// Stored payloads are addressable through the HTTP media route; the
// returned URI is the only handle the rest of the system sees.
package disk

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tunesync/server/internal/repository/media"
)

type repo struct {
	dir     string
	baseURI string

	mu     sync.Mutex
	refs   map[string]int
	logger *slog.Logger
}

func NewRepo(dir, baseURI string, logger *slog.Logger) (*repo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}

	return &repo{
		dir:     dir,
		baseURI: strings.TrimSuffix(baseURI, "/"),
		refs:    make(map[string]int),
		logger:  logger,
	}, nil
}

// Store writes a song payload and returns its fetchable URI with one
// reference held.
func (r *repo) Store(name string, payload []byte) (string, error) {
	ext := filepath.Ext(name)
	if len(ext) > 8 {
		ext = ""
	}
	filename := uuid.NewString() + ext

	if err := os.WriteFile(filepath.Join(r.dir, filename), payload, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", media.ErrStoreFailed, err)
	}

	uri := r.baseURI + "/" + filename

	r.mu.Lock()
	r.refs[uri] = 1
	r.mu.Unlock()

	r.logger.Debug("media object stored", "uri", uri, "bytes", len(payload))
	return uri, nil
}

// Acquire takes a reference on a stored object. A restored room
// re-adopts its tracks this way after a restart, when the in-memory
// refcounts are gone. Unknown URIs (external links) are ignored.
func (r *repo) Acquire(uri string) {
	filename, ours := r.filenameFor(uri)
	if !ours {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.refs[uri]; ok {
		r.refs[uri]++
		return
	}

	if _, err := os.Stat(filepath.Join(r.dir, filename)); err == nil {
		r.refs[uri] = 1
	}
}

// Resolve reports whether a URI still points at a retrievable object.
// URIs outside this store (external links) always resolve.
func (r *repo) Resolve(uri string) bool {
	filename, ours := r.filenameFor(uri)
	if !ours {
		return true
	}

	_, err := os.Stat(filepath.Join(r.dir, filename))
	return err == nil
}

// Release drops one reference; the backing file is removed when the last
// room referencing it is gone. Unknown URIs are a no-op.
func (r *repo) Release(uri string) {
	filename, ours := r.filenameFor(uri)
	if !ours {
		return
	}

	r.mu.Lock()
	count, ok := r.refs[uri]
	if ok {
		count--
		if count > 0 {
			r.refs[uri] = count
			r.mu.Unlock()
			return
		}
		delete(r.refs, uri)
	}
	r.mu.Unlock()

	if err := os.Remove(filepath.Join(r.dir, filename)); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("failed to remove media object", "uri", uri, "error", err)
		return
	}

	r.logger.Debug("media object released", "uri", uri)
}

// Dir exposes the backing directory for the HTTP file server.
func (r *repo) Dir() string {
	return r.dir
}

func (r *repo) filenameFor(uri string) (string, bool) {
	if !strings.HasPrefix(uri, r.baseURI+"/") {
		return "", false
	}

	// Base guards against traversal through a crafted URI.
	return filepath.Base(strings.TrimPrefix(uri, r.baseURI+"/")), true
}
