package keycache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxKeySize bounds the body read from the issuer's key endpoint
const maxKeySize = 1 << 20

var (
	// ErrKeyFetchFailed is returned when the public key cannot be fetched from the issuer
	ErrKeyFetchFailed = errors.New("failed to fetch public key")

	// ErrEmptyKey is returned when the issuer answers with an empty body
	ErrEmptyKey = errors.New("empty public key")
)

// Config holds configuration for Provider
type Config struct {
	// Path is the local file caching the PEM encoded key
	Path string
	// URL is the issuer endpoint serving the PEM encoded key
	URL         string
	HTTPTimeout time.Duration
}

type progressKey struct{}

// WithProgress returns a copy of ctx whose GetKey progress messages are passed to fn
func WithProgress(ctx context.Context, fn func(msg string)) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func progress(ctx context.Context, msg string) {
	if fn, ok := ctx.Value(progressKey{}).(func(string)); ok && fn != nil {
		fn(msg)
	}
}

// Provider supplies the issuer's public signing key. The key is read from a
// local file when present; otherwise it is fetched from the issuer and written
// back to the file in the background. A cached key is trusted indefinitely.
type Provider struct {
	path       string
	url        string
	httpClient *http.Client
	logger     *zap.Logger

	// mu guards closed and every pending.Add so Close never races a new write
	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// New creates a new Provider
func New(config Config, logger *zap.Logger) *Provider {
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		path: config.Path,
		url:  config.URL,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
		},
		logger: logger,
	}
}

// Path returns the location of the cache file
func (p *Provider) Path() string {
	return p.path
}

// GetKey returns the cached key, or fetches it from the issuer when the cache
// cannot be read. A fetched key is returned without waiting for it to be cached.
func (p *Provider) GetKey(ctx context.Context) ([]byte, error) {
	progress(ctx, fmt.Sprintf("Reading cached public key from file %s...", p.path))
	p.logger.Debug("reading cached public key", zap.String("path", p.path))

	cached, err := p.load()
	if err == nil {
		return cached, nil
	}

	progress(ctx, "Fetching public key from IDP...")
	p.logger.Debug("fetching public key from issuer",
		zap.String("url", p.url),
		zap.NamedError("cache_error", err))

	key, err := p.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	p.storeAsync(key)

	return key, nil
}

// Fetch downloads the key from the issuer without touching the cache
func (p *Provider) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrKeyFetchFailed, resp.StatusCode)
	}

	key, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetchFailed, err)
	}
	if len(bytes.TrimSpace(key)) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrKeyFetchFailed, ErrEmptyKey)
	}

	return key, nil
}

// Wait blocks until the background cache writes started so far have
// finished. Calls to GetKey made concurrently with Wait may start new writes
// that Wait does not cover; use Close at shutdown.
func (p *Provider) Wait() {
	p.pending.Wait()
}

// Close stops further cache writes and waits for pending ones. GetKey keeps
// working after Close, but fetched keys are no longer written back.
func (p *Provider) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.pending.Wait()
}

// load reads the cache file; an empty file counts as a miss
func (p *Provider) load() ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyKey
	}
	return data, nil
}

// storeAsync writes key to the cache off the request path. Failures are
// logged and otherwise dropped.
func (p *Provider) storeAsync(key []byte) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Debug("provider closed, public key not cached", zap.String("path", p.path))
		return
	}
	p.pending.Add(1)
	p.mu.Unlock()

	data := bytes.Clone(key)
	go func() {
		defer p.pending.Done()

		if err := p.Store(data); err != nil {
			p.logger.Warn("failed to cache public key",
				zap.String("path", p.path),
				zap.Error(err))
			return
		}

		p.logger.Debug("public key cached", zap.String("path", p.path))
	}()
}

// Store replaces the cache file wholesale via a temp file and rename.
// Request handling never calls it directly; it writes through storeAsync.
func (p *Provider) Store(data []byte) error {
	dir := filepath.Dir(p.path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}
