// Package fetcher downloads tabular files over HTTP and FTP and decodes CSV
// and XLSX content into string rows.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Remote dispatches downloads to the HTTP or FTP fetcher by URL scheme.
type Remote struct {
	HTTP *HTTPFetcher
	FTP  *FTPFetcher
}

// NewRemote creates a Remote with default HTTP and FTP fetchers.
func NewRemote(httpOpts HTTPOptions, ftpOpts FTPOptions) *Remote {
	return &Remote{HTTP: NewHTTPFetcher(httpOpts), FTP: NewFTPFetcher(ftpOpts)}
}

// Download fetches http, https, and ftp URLs.
func (r *Remote) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch u.Scheme {
	case "http", "https":
		return r.HTTP.Download(ctx, rawURL)
	case "ftp":
		return r.FTP.Download(ctx, rawURL)
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// ReadAll downloads rawURL and returns at most maxBytes of its body. A body
// larger than maxBytes is an error. maxBytes <= 0 means no limit.
func ReadAll(ctx context.Context, f Fetcher, rawURL string, maxBytes int64) ([]byte, error) {
	rc, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	var r io.Reader = rc
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read body")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, eris.Errorf("fetcher: %s exceeds %d bytes", rawURL, maxBytes)
	}
	return data, nil
}
