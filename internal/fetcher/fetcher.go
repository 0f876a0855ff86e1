// Package fetcher downloads generated media to local storage. A fetch never
// fails outward: when the remote media cannot be retrieved a placeholder
// artifact is written instead, so a job always ends with a file on disk.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/mediagen-api/internal/media"
)

// Static errors for fetch attempts.
var (
	// ErrBadStatus is returned when the media host answers with a non-2xx status.
	ErrBadStatus = errors.New("fetcher: unexpected status")
	// ErrPlaceholderSource is recorded when the URL is a synthetic placeholder.
	ErrPlaceholderSource = errors.New("fetcher: placeholder source url")
)

// Outcome describes how a fetch ended.
type Outcome struct {
	// Attempts is the number of download attempts made.
	Attempts int
	// Placeholder is true when a placeholder artifact was written.
	Placeholder bool
	// LastErr is the last download error, if any.
	LastErr error
	// WriteErr is set when nothing could be written to the destination.
	WriteErr error
}

// Fetcher downloads media with bounded retries.
type Fetcher struct {
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithMaxAttempts sets the number of download attempts.
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the delay unit; attempt n waits n*delay before retrying.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Fetcher with three attempts and a one second delay unit.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		maxAttempts: 3,
		baseDelay:   time.Second,
		sleep:       sleepCtx,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch downloads url to destPath, retrying with a linearly growing delay.
// When every attempt fails a placeholder for kind is written to destPath.
// The destination directory is created when absent.
func (f *Fetcher) Fetch(ctx context.Context, url, destPath string, kind media.Kind) Outcome {
	var out Outcome

	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		out.WriteErr = fmt.Errorf("fetcher: create destination dir: %w", err)
		f.logger.Error("cannot create destination directory",
			slog.String("path", destPath),
			slog.String("error", err.Error()),
		)
		return out
	}

	if media.IsPlaceholderURL(url) {
		out.LastErr = ErrPlaceholderSource
		return f.writePlaceholder(destPath, kind, out)
	}

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		out.Attempts = attempt
		err := f.download(ctx, url, destPath, kind)
		if err == nil {
			return out
		}
		out.LastErr = err

		f.logger.Warn("media download failed",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", f.maxAttempts),
			slog.String("error", err.Error()),
		)

		if attempt == f.maxAttempts || ctx.Err() != nil {
			break
		}
		if err := f.sleep(ctx, time.Duration(attempt)*f.baseDelay); err != nil {
			break
		}
	}

	return f.writePlaceholder(destPath, kind, out)
}

func (f *Fetcher) writePlaceholder(destPath string, kind media.Kind, out Outcome) Outcome {
	out.Placeholder = true
	if err := os.WriteFile(destPath, media.Placeholder(kind), 0o600); err != nil {
		out.WriteErr = fmt.Errorf("fetcher: write placeholder: %w", err)
		f.logger.Error("cannot write placeholder",
			slog.String("path", destPath),
			slog.String("error", err.Error()),
		)
		return out
	}
	f.logger.Info("placeholder written",
		slog.String("path", destPath),
		slog.String("kind", string(kind)),
	)
	return out
}

// download performs a single attempt, writing through a temp file so a
// partial body never lands at destPath.
func (f *Fetcher) download(ctx context.Context, url, destPath string, kind media.Kind) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fetcher: create request: %w", err)
	}
	setBrowserHeaders(req, kind)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetcher: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w %d: %s", ErrBadStatus, resp.StatusCode, string(body))
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download_*")
	if err != nil {
		return fmt.Errorf("fetcher: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("fetcher: copy body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fetcher: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fetcher: move into place: %w", err)
	}
	return nil
}

// setBrowserHeaders makes the request look like a browser; some media hosts
// reject default client identifiers.
func setBrowserHeaders(req *http.Request, kind media.Kind) {
	accept := "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
	dest := "image"
	if kind == media.KindVideo {
		accept = "video/webm,video/ogg,video/*;q=0.9,application/ogg;q=0.7,*/*;q=0.5"
		dest = "video"
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Sec-Fetch-Dest", dest)
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
}
