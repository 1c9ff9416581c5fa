package autoria

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/time/rate"

	"autoria-scraper/config"
	"autoria-scraper/models"
	"autoria-scraper/utils"
)

const maxBodyBytes = 10 * 1024 * 1024

type ResponseFormat int

const (
	FormatText ResponseFormat = iota
	FormatJSON
)

// RetryOptions configures FetchWithRetry.
type RetryOptions struct {
	Attempts  int
	BaseDelay time.Duration
	Format    ResponseFormat
}

// Payload is a successfully decoded response; exactly one field is set
// depending on the requested format.
type Payload struct {
	Text string
	JSON map[string]any
}

// Fetcher issues plain HTTP requests for search pages and the phone API.
type Fetcher struct {
	client    *http.Client
	searchURL *url.URL
	perPage   int
	limiter   *rate.Limiter
	backoff   func(base time.Duration) utils.Backoff

	// defaults for FetchWithRetry
	attempts   int
	retryDelay time.Duration
}

func NewFetcher(cfg *config.Config) (*Fetcher, error) {
	searchURL, err := url.Parse(cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ChromeTLS {
		transport = chromeTransport()
	}
	// One connection per worker; search pages and phone lookups run in
	// different phases.
	perHost := max(cfg.PageConcurrency, cfg.MaxConcurrency, 1)
	transport.MaxConnsPerHost = perHost
	transport.MaxIdleConnsPerHost = perHost

	f := &Fetcher{
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		searchURL:  searchURL,
		perPage:    cfg.ResultsPerPage,
		backoff:    utils.JitteredBackoff,
		attempts:   cfg.FetchRetries,
		retryDelay: cfg.FetchRetryDelay,
	}
	if cfg.RequestsPerSec > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}
	return f, nil
}

// chromeH1Spec is a Chrome ClientHello with ALPN limited to http/1.1, since
// net/http cannot speak h2 over a utls connection. A fresh spec is built per
// connection because ApplyPreset mutates its extensions.
func chromeH1Spec() (*tls.ClientHelloSpec, error) {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return nil, err
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	return &spec, nil
}

// chromeTransport ignores HTTP(S)_PROXY: net/http would tunnel through the
// proxy with crypto/tls and the Chrome fingerprint would be lost. Turn
// CHROME_TLS_FINGERPRINT off to crawl through a proxy.
func chromeTransport() *http.Transport {
	return &http.Transport{
		Proxy: nil,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			spec, err := chromeH1Spec()
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("build tls spec: %w", err)
			}
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
		IdleConnTimeout:   90 * time.Second,
	}
}

// PageURL is the search URL with the page number and page size applied. The
// base query (filters, language) is preserved.
func (f *Fetcher) PageURL(page int) string {
	u := *f.searchURL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("countpage", strconv.Itoa(f.perPage))
	u.RawQuery = q.Encode()
	return u.String()
}

// SearchURL is the parsed base search URL, used to resolve relative links.
func (f *Fetcher) SearchURL() *url.URL {
	u := *f.searchURL
	return &u
}

// FetchPage downloads one search results page. Failures are logged and
// reported as ok=false; search pages are not retried.
func (f *Fetcher) FetchPage(ctx context.Context, page int) (string, bool) {
	pageURL := f.PageURL(page)
	body, status, err := f.get(ctx, pageURL)
	if err != nil {
		utils.Error("Failed to fetch page %d: %v", page, err)
		return "", false
	}
	if status != http.StatusOK {
		utils.Error("Failed to fetch page %d: HTTP %d", page, status)
		return "", false
	}
	return string(body), true
}

// FetchWithRetry tries rawURL up to opts.Attempts times and returns the
// decoded payload of the first 200 response, or nil when every attempt
// fails. It never returns an error; failures are logged. Zero options fall
// back to FETCH_RETRIES and FETCH_RETRY_DELAY.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string, opts RetryOptions) *Payload {
	if opts.Attempts <= 0 {
		opts.Attempts = f.attempts
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = f.retryDelay
	}

	var payload *Payload
	err := utils.Retry(ctx, opts.Attempts, f.backoff(opts.BaseDelay), func(ctx context.Context) error {
		body, status, err := f.get(ctx, rawURL)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrTransientFetch, err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("%w: HTTP %d", models.ErrTransientFetch, status)
		}
		p, err := decodePayload(body, opts.Format)
		if err != nil {
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		utils.Error("Giving up on %s: %v", rawURL, err)
		return nil
	}
	return payload
}

func decodePayload(body []byte, format ResponseFormat) (*Payload, error) {
	if format == FormatJSON {
		var data map[string]any
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return &Payload{JSON: data}, nil
	}
	return &Payload{Text: string(body)}, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "uk-UA,uk;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}
