package imgsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DownloadOpts configures a media download.
type DownloadOpts struct {
	MaxBytes  int64         // max response body size (default: 20MB)
	Timeout   time.Duration // per-request timeout (default: 60s)
	UserAgent string        // request user agent
	Token     string        // optional bearer token
}

const (
	defaultMaxBytes = 20 * 1024 * 1024 // 20MB
	defaultTimeout  = 60 * time.Second
)

// DownloadResult holds downloaded media.
type DownloadResult struct {
	Data     []byte
	MIMEType string
}

var errTooLarge = errors.New("media exceeds size limit")

// download fetches url with stealth first (if set) and falls back to the
// regular client. Unlike a best-effort fetch every failure is reported,
// since the caller must tell a skipped message from a broken transport.
func download(ctx context.Context, stealth, regular *http.Client, url string, opts DownloadOpts) (*DownloadResult, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	if stealth != nil {
		r, err := fetchMedia(ctx, stealth, url, opts)
		if err == nil {
			return r, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return fetchMedia(ctx, regular, url, opts)
}

func fetchMedia(ctx context.Context, client *http.Client, mediaURL string, opts DownloadOpts) (*DownloadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	resp, err := client.Do(req) //nolint:gosec // G704: URL is built from the configured bridge base
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", mediaURL, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	// Strip MIME parameters: "image/jpeg; charset=utf-8" → "image/jpeg"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}

	// Read one byte past the cap to tell a full body from a truncated one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, fmt.Errorf("GET %s: %w (%d bytes)", mediaURL, errTooLarge, opts.MaxBytes)
	}

	return &DownloadResult{Data: data, MIMEType: ct}, nil
}
