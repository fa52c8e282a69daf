package refsource

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gbd-tools/harmonize-cli/internal/resilience"
)

// FetcherOptions configures the download client.
type FetcherOptions struct {
	UserAgent string
	Timeout   time.Duration
	RPS       float64
	Retry     *resilience.RetryConfig
}

// Fetcher downloads published reference table files. Supports http,
// https and ftp URLs.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    FetcherOptions
}

// NewFetcher creates a fetcher with retry and request pacing.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "harmonize-cli"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RPS == 0 {
		opts.RPS = 2
	}
	if opts.Retry == nil {
		cfg := resilience.DefaultRetryConfig()
		opts.Retry = &cfg
	}
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), 1),
		opts:    opts,
	}
}

// Fetch downloads rawURL to dest.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrapf(err, "refsource: parse url %s", rawURL)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL, dest)
	case "ftp":
		return f.fetchFTP(ctx, u, dest)
	}
	return eris.Errorf("refsource: unsupported scheme %q", u.Scheme)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL, dest string) error {
	return resilience.Do(ctx, *f.opts.Retry, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return eris.Wrap(err, "refsource: build request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "refsource: http get"), 0)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("refsource: fetch %s: status %d", rawURL, resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}

		return writeFile(dest, resp.Body)
	})
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL, dest string) error {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return eris.New("refsource: empty path in ftp url")
	}

	zap.S().Debugw("ftp fetch", "host", host, "path", u.Path)

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "refsource: ftp dial")
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return eris.Wrap(err, "refsource: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return eris.Wrap(err, "refsource: ftp retrieve")
	}
	defer resp.Close()

	return writeFile(dest, resp)
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "refsource: create %s", dest)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return eris.Wrapf(err, "refsource: write %s", dest)
	}
	return eris.Wrapf(f.Close(), "refsource: close %s", dest)
}

// SupportedScheme reports whether the fetcher can handle the URL.
func SupportedScheme(rawURL string) bool {
	for _, prefix := range []string{"http://", "https://", "ftp://"} {
		if strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}
