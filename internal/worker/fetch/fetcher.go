// Package fetch はソース取得用のHTTPクライアントと詳細ページ取得の予算管理を提供する。
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/Stratos888/Bocholt-Erleben/internal/metrics"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/security"
)

// DefaultUserAgent は外部サイトへのリクエストで名乗るUser-Agent。
const DefaultUserAgent = "BocholtErlebenDiscovery/1.0"

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Options はClientの設定。
type Options struct {
	Timeout        time.Duration
	MaxBodySize    int64
	MaxRetries     int
	BackoffInitial time.Duration
	UserAgent      string
	// HostInterval は同一ホストへのリクエスト間の最小間隔。0以下なら間隔を空けない。
	HostInterval time.Duration
}

// DefaultOptions は既定の設定を返す。
func DefaultOptions() Options {
	return Options{
		Timeout:        20 * time.Second,
		MaxBodySize:    5 * 1024 * 1024,
		MaxRetries:     2,
		BackoffInitial: 2 * time.Second,
		UserAgent:      DefaultUserAgent,
		HostInterval:   500 * time.Millisecond,
	}
}

// Client はソース取得用のHTTPクライアント。
// SSRF検証、429/5xxとタイムアウトの再試行、文字コード変換、ホスト単位の間隔制御を行う。
type Client struct {
	httpClient *http.Client
	ssrfGuard  SSRFValidator
	opts       Options
	pacer      *hostPacer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// ssrfGuardがnilの場合はSSRF検証を行わない（テストやローカルのソース向け）。
func NewClient(ssrfGuard SSRFValidator, opts Options, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultOptions().MaxBodySize
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var hc *http.Client
	if ssrfGuard != nil {
		hc = ssrfGuard.NewSafeClient(opts.Timeout)
	} else {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		httpClient: hc,
		ssrfGuard:  ssrfGuard,
		opts:       opts,
		pacer:      newHostPacer(opts.HostInterval),
		metrics:    collector,
		logger:     logger,
	}
}

// Get はURLの本文をUTF-8文字列として取得する。
func (c *Client) Get(ctx context.Context, rawURL string) (string, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil)
}

// PostForm はフォームをPOSTし、応答の本文を返す。ページ送りがフォーム送信のサイトで使う。
func (c *Client) PostForm(ctx context.Context, rawURL string, values url.Values) (string, error) {
	return c.do(ctx, http.MethodPost, rawURL, values)
}

func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values) (string, error) {
	target := security.NormalizeWebcal(rawURL)

	if c.ssrfGuard != nil {
		if err := c.ssrfGuard.ValidateURL(target); err != nil {
			c.logger.Warn("SSRF検証に失敗しました",
				slog.String("url", target),
				slog.String("error", err.Error()),
			)
			c.metrics.RecordFetch("blocked")
			return "", &model.FetchError{URL: target, Err: err}
		}
	}

	host := hostOf(target)
	var body string
	attempt := 0

	op := func() error {
		attempt++
		if err := c.pacer.wait(ctx, host); err != nil {
			return backoff.Permanent(&model.FetchError{URL: target, Err: err})
		}

		var reqBody io.Reader
		if form != nil {
			reqBody = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return backoff.Permanent(&model.FetchError{URL: target, Err: err})
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "text/html, application/xhtml+xml, application/rss+xml, application/atom+xml, text/calendar, application/json, application/xml, */*")
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		c.metrics.RecordFetchLatency(time.Since(start))
		if err != nil {
			fe := &model.FetchError{URL: target, Err: err}
			if isTransientNetError(err) {
				c.logger.Warn("HTTPリクエストがタイムアウトしました。再試行します",
					slog.String("url", target),
					slog.Int("attempt", attempt),
				)
				return fe
			}
			return backoff.Permanent(fe)
		}
		defer resp.Body.Close()

		c.metrics.RecordHTTPStatus(resp.StatusCode)

		switch ClassifyHTTPStatus(resp.StatusCode) {
		case FetchResultOK:
		case FetchResultBackoff:
			c.logger.Warn("HTTPステータスによりバックオフを適用します",
				slog.String("url", target),
				slog.Int("http_status", resp.StatusCode),
				slog.Int("attempt", attempt),
			)
			return &model.FetchError{URL: target, StatusCode: resp.StatusCode}
		default:
			return backoff.Permanent(&model.FetchError{URL: target, StatusCode: resp.StatusCode})
		}

		text, err := readBody(resp, c.opts.MaxBodySize)
		if err != nil {
			return backoff.Permanent(&model.FetchError{URL: target, StatusCode: resp.StatusCode, Err: err})
		}
		body = text
		return nil
	}

	if err := backoff.Retry(op, newRetryPolicy(ctx, c.opts.BackoffInitial, c.opts.MaxRetries)); err != nil {
		c.metrics.RecordFetch("error")
		c.logger.Warn("ソースの取得に失敗しました",
			slog.String("url", target),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	c.metrics.RecordFetch("ok")
	c.logger.Debug("ソースを取得しました",
		slog.String("url", target),
		slog.Int("bytes", len(body)),
		slog.Int("attempts", attempt),
	)
	return body, nil
}

// readBody は最大サイズまで本文を読み、Content-Typeと内容から判定した文字コードでUTF-8に変換する。
func readBody(resp *http.Response, maxSize int64) (string, error) {
	limited := io.LimitReader(resp.Body, maxSize)
	r, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("文字コードの判定に失敗: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	return string(data), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// hostPacer は同一ホストへのリクエストの間隔を空ける。
type hostPacer struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

func newHostPacer(interval time.Duration) *hostPacer {
	return &hostPacer{interval: interval, limiters: make(map[string]*rate.Limiter)}
}

func (p *hostPacer) wait(ctx context.Context, host string) error {
	if p.interval <= 0 || host == "" {
		return nil
	}
	p.mu.Lock()
	lim, ok := p.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[host] = lim
	}
	p.mu.Unlock()
	return lim.Wait(ctx)
}
