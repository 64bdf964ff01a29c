package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	// Timeout bounds dialing and each control exchange. Default 30s.
	Timeout time.Duration
}

// FTPFetcher downloads source tables over FTP. Each download uses its own
// control connection.
type FTPFetcher struct {
	timeout time.Duration
}

// NewFTPFetcher creates an FTPFetcher.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPFetcher{timeout: opts.Timeout}
}

// ftpTarget is a parsed ftp:// location.
type ftpTarget struct {
	addr     string
	path     string
	user     string
	password string
}

// parseFTPURL splits an ftp:// URL into server address, file path and
// login. The port defaults to 21 and the login to anonymous.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.Errorf("fetcher: ftp url %q names no file", rawURL)
	}

	t := ftpTarget{addr: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if u.Port() == "" {
		t.addr = net.JoinHostPort(u.Hostname(), "21")
	}
	if name := u.User.Username(); name != "" {
		t.user = name
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// ftpFile streams one retrieved file. Closing it ends the transfer and
// logs out.
type ftpFile struct {
	*ftp.Response
	conn *ftp.ServerConn
	once sync.Once
	err  error
}

func (f *ftpFile) Close() error {
	f.once.Do(func() {
		if err := f.Response.Close(); err != nil {
			f.err = eris.Wrap(err, "fetcher: finish ftp transfer")
		}
		if err := f.conn.Quit(); err != nil && f.err == nil {
			f.err = eris.Wrap(err, "fetcher: ftp quit")
		}
	})
	return f.err
}

// Download logs in and starts retrieving the file at ftpURL. The caller
// must close the returned reader to release the connection.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	target, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("fetcher: ftp download", zap.String("addr", target.addr), zap.String("path", target.path))

	conn, err := ftp.Dial(target.addr, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: ftp dial %s", target.addr)
	}
	if err := conn.Login(target.user, target.password); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "fetcher: ftp login as %s", target.user)
	}
	resp, err := conn.Retr(target.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "fetcher: ftp retrieve %s", target.path)
	}
	return &ftpFile{Response: resp, conn: conn}, nil
}
