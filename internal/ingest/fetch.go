package ingest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/httputil"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/metrics"
)

const (
	MaxFetchBytes     = 32 << 20
	defaultFTPTimeout = 30 * time.Second
	defaultMaxElapsed = 2 * time.Minute
)

// Payload is a fetched dataset. Name keeps the extension so the decoder can
// pick a format.
type Payload struct {
	Name string
	Data []byte
}

// Fetcher loads bulk files from disk, HTTP(S) or FTP.
type Fetcher struct {
	client     *http.Client
	ftpTimeout time.Duration
	maxElapsed time.Duration
}

// NewFetcher returns a Fetcher. A nil client uses httputil.NewClient.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = httputil.NewClient()
	}
	return &Fetcher{
		client:     client,
		ftpTimeout: defaultFTPTimeout,
		maxElapsed: defaultMaxElapsed,
	}
}

// Fetch resolves location as an http(s) or ftp URL, or else a local path.
func (f *Fetcher) Fetch(ctx context.Context, location string) (*Payload, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return f.fetchFile(location)
	}

	start := time.Now()
	var p *Payload
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		p, err = f.fetchHTTP(ctx, u)
	case "ftp":
		p, err = f.fetchFTP(ctx, u)
	case "file":
		return f.fetchFile(u.Path)
	default:
		return nil, eris.Errorf("ingest: unsupported scheme %q", u.Scheme)
	}
	metrics.FetchLatency.WithLabelValues(u.Scheme).Observe(time.Since(start).Seconds())
	return p, err
}

func (f *Fetcher) fetchFile(name string) (*Payload, error) {
	fh, err := os.Open(name)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", name)
	}
	defer fh.Close()

	data, err := readLimited(fh)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", name)
	}
	return &Payload{Name: filepath.Base(name), Data: data}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) (*Payload, error) {
	var data []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(eris.Wrap(err, "ingest: build request"))
		}

		resp, err := f.client.Do(req)
		if err != nil {
			metrics.FetchesTotal.WithLabelValues(u.Scheme, "error").Inc()
			return backoff.Permanent(eris.Wrapf(err, "ingest: get %s", u.Redacted()))
		}
		defer resp.Body.Close()
		metrics.FetchesTotal.WithLabelValues(u.Scheme, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			zap.L().Warn("fetch: retrying", zap.String("url", u.Redacted()), zap.Int("status", resp.StatusCode))
			return fmt.Errorf("ingest: get %s: status %d", u.Redacted(), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(eris.Errorf("ingest: get %s: status %d", u.Redacted(), resp.StatusCode))
		}

		data, err = readLimited(resp.Body)
		if err != nil {
			return backoff.Permanent(eris.Wrap(err, "ingest: read body"))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return &Payload{Name: path.Base(u.Path), Data: data}, nil
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) (*Payload, error) {
	if u.Path == "" || u.Path == "/" {
		return nil, eris.Errorf("ingest: ftp url %s has no file path", u.Redacted())
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}

	zap.L().Debug("fetch: ftp connecting", zap.String("host", host), zap.String("path", u.Path))
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		metrics.FetchesTotal.WithLabelValues("ftp", "error").Inc()
		return nil, eris.Wrapf(err, "ingest: ftp dial %s", host)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	if err := conn.Login(user, pass); err != nil {
		metrics.FetchesTotal.WithLabelValues("ftp", "error").Inc()
		return nil, eris.Wrap(err, "ingest: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues("ftp", "error").Inc()
		return nil, eris.Wrapf(err, "ingest: ftp retrieve %s", u.Path)
	}
	defer resp.Close()

	data, err := readLimited(resp)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: ftp read")
	}
	metrics.FetchesTotal.WithLabelValues("ftp", "ok").Inc()
	return &Payload{Name: path.Base(u.Path), Data: data}, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFetchBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFetchBytes {
		return nil, eris.Errorf("file exceeds %d bytes", MaxFetchBytes)
	}
	return data, nil
}
