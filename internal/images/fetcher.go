package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/alanorth/safari-bingo/internal/models"
	"github.com/alanorth/safari-bingo/internal/storage"
)

const (
	// DefaultUserAgent identifies the tool to image hosts
	DefaultUserAgent = "safari-bingo-cards-bot/0.1 (https://git.mjanja.ch/alanorth/safari-bingo-cards)"

	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2.0
)

// ErrFetchFailed is matched by every FetchError
var ErrFetchFailed = errors.New("image fetch failed")

// FetchError reports a failed download. StatusCode is zero when no response was received.
type FetchError struct {
	ID         string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch image for %s: server returned status %d", e.ID, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch image for %s: %v", e.ID, e.Err)
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher downloads animal photos into the asset store
type Fetcher struct {
	store      *storage.Store
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	group      singleflight.Group
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout bounds each download
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithRateLimit caps requests per second. Zero or less disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a new image fetcher writing into store
func NewFetcher(store *storage.Store, opts ...Option) *Fetcher {
	f := &Fetcher{
		store:      store,
		httpClient: &http.Client{},
		userAgent:  DefaultUserAgent,
		timeout:    DefaultTimeout,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// EnsureImage makes sure images/{id}.jpg exists, downloading it if needed.
// It reports whether a download happened. An existing file is never re-fetched.
func (f *Fetcher) EnsureImage(ctx context.Context, animal models.Animal) (bool, error) {
	path := f.store.ImagePath(animal.ID)

	exists, err := storage.Exists(path)
	if err != nil {
		return false, err
	}
	if exists {
		f.logger.Debug("Image already present", "id", animal.ID, "common_name", animal.CommonName)
		return false, nil
	}

	// concurrent callers for one id share a single download
	v, err, _ := f.group.Do(animal.ID, func() (any, error) {
		exists, err := storage.Exists(path)
		if err != nil || exists {
			return false, err
		}
		if err := f.download(ctx, animal, path); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (f *Fetcher) download(ctx context.Context, animal models.Animal, path string) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return &FetchError{ID: animal.ID, URL: animal.ImageURL, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, animal.ImageURL, nil)
	if err != nil {
		return &FetchError{ID: animal.ID, URL: animal.ImageURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)

	f.logger.Info("Downloading image", "id", animal.ID, "common_name", animal.CommonName)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return &FetchError{ID: animal.ID, URL: animal.ImageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return &FetchError{ID: animal.ID, URL: animal.ImageURL, StatusCode: resp.StatusCode}
	}

	err = storage.WriteAtomic(path, func(w io.Writer) error {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("failed to read image body: %w", err)
		}
		return nil
	})
	if err != nil {
		return &FetchError{ID: animal.ID, URL: animal.ImageURL, Err: err}
	}

	f.logger.Debug("Saved image", "id", animal.ID, "path", path)
	return nil
}
