// Package attachments downloads files users attach to inbound messages,
// behind the SSRF guard and a size cap.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/haasonsaas/teamsbridge/internal/botframework"
	"github.com/haasonsaas/teamsbridge/internal/net/ssrf"
	"github.com/haasonsaas/teamsbridge/internal/retry"
)

// DefaultMaxBytes caps a single download at 25 MiB.
const DefaultMaxBytes int64 = 25 << 20

const maxRedirects = 5

// ErrTooLarge is returned when a download exceeds the configured cap.
var ErrTooLarge = errors.New("attachment exceeds size limit")

// Config configures a Downloader.
type Config struct {
	MaxBytes        int64
	AllowedSuffixes []string
	Timeout         time.Duration
	Retry           retry.Config
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// File is a downloaded attachment.
type File struct {
	Name        string
	ContentType string
	URL         string
	Data        []byte
}

// Downloader fetches attachment bytes.
type Downloader struct {
	maxBytes int64
	allowed  []string
	retry    retry.Config
	client   *http.Client
	logger   *slog.Logger
	validate func(raw string) (*url.URL, error)
}

// NewDownloader creates a downloader. The default client dials only public
// addresses and re-validates every redirect hop.
func NewDownloader(cfg Config) *Downloader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Downloader{
		maxBytes: cfg.MaxBytes,
		allowed:  cfg.AllowedSuffixes,
		retry:    cfg.Retry,
		logger:   logger.With("component", "attachments"),
	}
	d.validate = func(raw string) (*url.URL, error) {
		return ssrf.ValidateDownloadURL(raw, d.allowed)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           ssrf.NewDialContext(10 * time.Second),
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}
	if client.CheckRedirect == nil {
		guarded := *client
		guarded.CheckRedirect = d.checkRedirect
		client = &guarded
	}
	d.client = client
	return d
}

func (d *Downloader) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	_, err := d.validate(req.URL.String())
	return err
}

// Fetch downloads the attachment. It returns (nil, nil) when the attachment
// has no downloadable URL and a *ssrf.SSRFBlockedError when the URL is
// rejected by the guard.
func (d *Downloader) Fetch(ctx context.Context, att botframework.Attachment) (*File, error) {
	raw := att.DownloadURL()
	if raw == "" {
		return nil, nil
	}
	target, err := d.validate(raw)
	if err != nil {
		return nil, err
	}

	file, err := retry.Do(ctx, d.retry, func(ctx context.Context) (*File, error) {
		return d.get(ctx, target.String())
	})
	if err != nil {
		return nil, err
	}
	file.Name = fileName(att, target)
	if file.ContentType == "" {
		file.ContentType = att.ContentType
	}
	d.logger.Debug("downloaded attachment", "name", file.Name, "bytes", len(file.Data))
	return file, nil
}

func (d *Downloader) get(ctx context.Context, target string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &retry.StatusError{
			Status:     resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Err:        errors.New("attachment download failed"),
		}
	}
	if resp.ContentLength > d.maxBytes {
		return nil, fmt.Errorf("%w: content-length %d > %d", ErrTooLarge, resp.ContentLength, d.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	return &File{URL: target, ContentType: contentType, Data: data}, nil
}

func fileName(att botframework.Attachment, target *url.URL) string {
	if att.Name != "" {
		return att.Name
	}
	name := path.Base(target.Path)
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}
