package storage

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftoolkit/internal/pdferr"
)

// Downloader reads an object from a bucket. *S3Client implements it.
type Downloader interface {
	Download(ctx context.Context, bucket, key string, limit int64) ([]byte, error)
}

const maxRedirects = 5

var errBlockedAddress = errors.New("address not allowed")

// FetchOptions configure a Fetcher.
type FetchOptions struct {
	// S3 serves s3:// sources, which must name Bucket and sit under Prefix.
	// Both S3 and Bucket must be set for s3:// sources to be accepted.
	S3     Downloader
	Bucket string
	Prefix string

	// AllowedHosts limits http(s) sources to these hosts and their
	// subdomains. Empty allows any host with a public address.
	AllowedHosts []string
	// AllowPrivate permits loopback, private and link-local targets.
	AllowPrivate bool

	MaxBytes int64
	Timeout  time.Duration
}

// Fetcher pulls remote inputs into memory with a size cap and a timeout.
type Fetcher struct {
	http *http.Client
	opts FetchOptions
}

// NewFetcher returns a Fetcher. Dials to non-public addresses are refused
// unless opts.AllowPrivate is set, including names that resolve to them.
func NewFetcher(opts FetchOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hosts := make([]string, 0, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		hosts = append(hosts, strings.ToLower(strings.TrimSuffix(h, ".")))
	}
	opts.AllowedHosts = hosts
	f := &Fetcher{opts: opts}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if !opts.AllowPrivate {
		dialer.Control = guardDial
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	f.http = &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return pdferr.New(pdferr.IOFailure, "too many redirects")
			}
			return f.checkURL(req.URL)
		},
	}
	return f
}

// Limit is the largest input Fetch will return; 0 means unbounded.
func (f *Fetcher) Limit() int64 { return f.opts.MaxBytes }

// Fetch downloads ref (http, https or s3 URL) and returns its bytes and a
// display name derived from the URL path.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	start := time.Now()
	var (
		data []byte
		name string
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "s3://"):
		data, name, err = f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, name, err = f.fetchHTTP(ctx, ref)
	default:
		return nil, "", pdferr.New(pdferr.InvalidRequest, "unsupported source url %q", ref)
	}
	if err != nil {
		return nil, "", err
	}
	log.Debug().Str("ref", ref).Int("size", len(data)).Dur("duration", time.Since(start)).Msg("fetched remote input")
	return data, name, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, ref string) ([]byte, string, error) {
	if f.opts.S3 == nil || f.opts.Bucket == "" {
		return nil, "", pdferr.New(pdferr.InvalidRequest, "s3 sources are not configured")
	}
	bucket, key, err := ParseS3URL(ref)
	if err != nil {
		return nil, "", pdferr.Wrap(pdferr.InvalidRequest, err, "bad source url")
	}
	if bucket != f.opts.Bucket {
		return nil, "", pdferr.New(pdferr.InvalidRequest, "bucket %q is not readable", bucket)
	}
	if !strings.HasPrefix(key, f.opts.Prefix) || strings.Contains(key, "..") {
		return nil, "", pdferr.New(pdferr.InvalidRequest, "key %q is outside %q", key, f.opts.Prefix)
	}
	data, err := f.opts.S3.Download(ctx, bucket, key, f.opts.MaxBytes)
	if errors.Is(err, ErrNotFound) {
		return nil, "", pdferr.Wrap(pdferr.IOFailure, err, "source %s not found", ref)
	}
	return data, path.Base(key), err
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) ([]byte, string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return nil, "", pdferr.New(pdferr.InvalidRequest, "bad source url %q", ref)
	}
	if err := f.checkURL(u); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", pdferr.Wrap(pdferr.InvalidRequest, err, "bad source url")
	}
	resp, err := f.http.Do(req)
	if err != nil {
		var perr *pdferr.Error
		switch {
		case errors.As(err, &perr):
			return nil, "", perr
		case errors.Is(err, errBlockedAddress):
			return nil, "", pdferr.New(pdferr.InvalidRequest, "source host %s is not allowed", u.Hostname())
		}
		return nil, "", ioFailure(err, "fetch %s", u.Redacted())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", pdferr.New(pdferr.IOFailure, "fetch %s: http %d", u.Redacted(), resp.StatusCode)
	}
	if f.opts.MaxBytes > 0 && resp.ContentLength > f.opts.MaxBytes {
		return nil, "", tooLarge(resp.ContentLength, f.opts.MaxBytes)
	}
	data, err := readLimited(resp.Body, f.opts.MaxBytes)
	if err != nil {
		return nil, "", err
	}
	return data, path.Base(u.Path), nil
}

// checkURL applies the scheme, allowlist and literal-address rules. Names
// resolving to blocked addresses are caught later by guardDial.
func (f *Fetcher) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return pdferr.New(pdferr.InvalidRequest, "unsupported source scheme %q", u.Scheme)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if len(f.opts.AllowedHosts) > 0 && !hostAllowed(host, f.opts.AllowedHosts) {
		return pdferr.New(pdferr.InvalidRequest, "source host %s is not allowed", host)
	}
	if f.opts.AllowPrivate {
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return pdferr.New(pdferr.InvalidRequest, "source host %s is not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil && blockedIP(ip) {
		return pdferr.New(pdferr.InvalidRequest, "source host %s is not allowed", host)
	}
	return nil
}

func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast()
}

// guardDial runs after DNS resolution, on the address actually dialed.
func guardDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || blockedIP(ip) {
		return errBlockedAddress
	}
	return nil
}

func tooLarge(size, limit int64) error {
	return pdferr.New(pdferr.TooLarge, "object of %d bytes exceeds limit of %d bytes", size, limit)
}
