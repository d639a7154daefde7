// Package fetcher downloads reference datasets over HTTP, FTP or from the
// local filesystem, and parses the tabular formats they ship in.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kb-harvester/internal/config"
	"github.com/sells-group/kb-harvester/internal/resilience"
)

// Fetcher retrieves a remote resource.
type Fetcher interface {
	// Download returns the resource body. The caller closes it.
	Download(ctx context.Context, src string) (io.ReadCloser, error)

	// DownloadToFile writes the resource to path and returns the bytes written.
	DownloadToFile(ctx context.Context, src, path string) (int64, error)
}

// Options configures every transport of a Mux.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	Sleep      resilience.SleepFunc
}

// OptionsFromConfig maps the fetcher config section onto Options.
func OptionsFromConfig(cfg config.FetcherConfig) Options {
	return Options{
		UserAgent:  cfg.UserAgent,
		Timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
		MaxRetries: cfg.MaxRetries,
	}
}

// Mux dispatches on the URL scheme: http(s) and ftp go to their fetchers,
// bare paths and file:// URLs are opened locally.
type Mux struct {
	http Fetcher
	ftp  Fetcher
}

// New creates a Mux with an HTTP and an FTP fetcher.
func New(opts Options) *Mux {
	return &Mux{
		http: NewHTTPFetcher(HTTPOptions{
			UserAgent:  opts.UserAgent,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
			Sleep:      opts.Sleep,
		}),
		ftp: NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
	}
}

// Open is shorthand for New(opts).Download(ctx, src).
func Open(ctx context.Context, src string, opts Options) (io.ReadCloser, error) {
	return New(opts).Download(ctx, src)
}

// Download implements Fetcher.
func (m *Mux) Download(ctx context.Context, src string) (io.ReadCloser, error) {
	switch scheme(src) {
	case "http", "https":
		return m.http.Download(ctx, src)
	case "ftp":
		return m.ftp.Download(ctx, src)
	case "", "file":
		f, err := os.Open(localPath(src))
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", src)
		}
		return f, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme in %q", src)
	}
}

// DownloadToFile implements Fetcher.
func (m *Mux) DownloadToFile(ctx context.Context, src, path string) (int64, error) {
	rc, err := m.Download(ctx, src)
	if err != nil {
		return 0, err
	}
	return saveTo(rc, path)
}

func scheme(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	// Windows drive letters parse as a one-letter scheme.
	if len(u.Scheme) == 1 {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

func localPath(src string) string {
	if u, err := url.Parse(src); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return src
}

// saveTo copies rc into a new file at path and closes rc.
func saveTo(rc io.ReadCloser, path string) (int64, error) {
	defer rc.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, rc)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, nil
}
