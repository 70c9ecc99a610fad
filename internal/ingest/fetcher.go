package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mediaExtensions are the container formats accepted as chunkable sources.
var mediaExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

// Fetcher downloads remote source assets to local storage. Bodies are
// streamed to disk, never fully buffered: source videos may be large.
type Fetcher struct {
	client  *http.Client
	dir     string
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

// NewFetcher creates a fetcher writing downloads into cfg.DownloadDir.
func NewFetcher(cfg *Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.FetchTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		dir:     cfg.DownloadDir,
		retries: cfg.FetchRetries,
		backoff: cfg.FetchBackoff,
		logger:  logger,
	}
}

// Fetch retrieves the resource at rawURL into a local file and returns its
// path. credential, when non-empty, authenticates the request; it is never
// logged. Transient failures are retried with bounded exponential backoff;
// ErrUnauthorized and ErrCorrupt are returned immediately.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, credential string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < f.retries; attempt++ {
		if attempt > 0 {
			delay := f.backoff << (attempt - 1)
			f.logger.Info("retrying fetch",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		path, err := f.fetchOnce(ctx, rawURL, credential, true)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, ErrUnreachable) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("after %d attempts: %w", f.retries, lastErr)
}

// fetchOnce performs a single retrieval. When the response turns out to be an
// HTML page, the first linked media asset is fetched instead (one hop only).
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL, credential string, followHTML bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid source url: %w", err)
	}
	req.Header.Set("User-Agent", "video-archiver/1.0")
	applyCredential(req, credential)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if followHTML && strings.HasPrefix(contentType, "text/html") {
		mediaURL, err := discoverMediaLink(resp.Body, resp.Request.URL)
		if err != nil {
			return "", err
		}
		f.logger.Info("discovered media link on page",
			zap.String("page", rawURL),
			zap.String("media", mediaURL))
		return f.fetchOnce(ctx, mediaURL, credential, false)
	}

	return f.streamToFile(resp.Body)
}

// streamToFile copies the body into the download directory and runs the
// container sanity check on the result.
func (f *Fetcher) streamToFile(body io.Reader) (string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	path := filepath.Join(f.dir, "source-"+uuid.NewString()+".download")
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}

	_, err = io.Copy(out, body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if err := sniffContainer(path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// applyCredential attaches the resolved secret to the request. A value
// containing a colon is treated as user:password basic auth, anything else as
// a bearer token.
func applyCredential(req *http.Request, credential string) {
	if credential == "" {
		return
	}
	if user, pass, found := strings.Cut(credential, ":"); found {
		req.SetBasicAuth(user, pass)
		return
	}
	req.Header.Set("Authorization", "Bearer "+credential)
}

// discoverMediaLink scrapes an HTML page for the first link pointing at a
// supported media container.
func discoverMediaLink(body io.Reader, base *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("%w: parse page: %v", ErrCorrupt, err)
	}

	var found string
	doc.Find("a[href], video[src], video source[src]").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		attr := "href"
		if goquery.NodeName(sel) != "a" {
			attr = "src"
		}
		link, ok := sel.Attr(attr)
		if !ok || link == "" {
			return true
		}
		if !hasMediaExtension(link) {
			return true
		}
		linkURL, err := url.Parse(link)
		if err != nil {
			return true
		}
		found = base.ResolveReference(linkURL).String()
		return false
	})

	if found == "" {
		return "", fmt.Errorf("%w: page contains no media links", ErrCorrupt)
	}
	return found, nil
}

func hasMediaExtension(link string) bool {
	link = strings.ToLower(link)
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	for _, ext := range mediaExtensions {
		if strings.HasSuffix(link, ext) {
			return true
		}
	}
	return false
}

// sniffContainer checks the leading bytes of the download for a known media
// container signature.
func sniffContainer(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open download: %w", err)
	}
	defer file.Close()

	header := make([]byte, 12)
	n, err := io.ReadFull(file, header)
	if err != nil && n < 8 {
		return fmt.Errorf("%w: file too short", ErrCorrupt)
	}
	header = header[:n]

	switch {
	case len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")): // MP4 / MOV
		return nil
	case len(header) >= 8 && bytes.Equal(header[4:8], []byte("moov")): // legacy MOV
		return nil
	case bytes.HasPrefix(header, []byte{0x1A, 0x45, 0xDF, 0xA3}): // Matroska / WebM
		return nil
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) &&
		bytes.Equal(header[8:12], []byte("AVI ")):
		return nil
	}
	return fmt.Errorf("%w: unrecognized container signature", ErrCorrupt)
}
