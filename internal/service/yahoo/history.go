package yahoo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"BarSync/internal/domain/models"
	svcmetrics "BarSync/internal/service/metrics"
	"BarSync/pkg/logger"
)

var errNoCrumb = errors.New("empty crumb")

// HistoryClient is the structured backend: a cookie-backed session with a
// crumb token, downloading daily history as CSV.
type HistoryClient struct {
	cfg Config
	rc  *resty.Client
	log *logger.Logger

	mu     sync.RWMutex
	crumb  string
	flight singleflight.Group
}

func NewHistoryClient(cfg Config, log *logger.Logger) (*HistoryClient, error) {
	cfg = cfg.withDefaults()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	rc := resty.New().
		SetTransport(newTransport(cfg.DialTimeout)).
		SetCookieJar(jar).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/csv,application/json;q=0.9,*/*;q=0.8")

	svcmetrics.Register()
	return &HistoryClient{cfg: cfg, rc: rc, log: log}, nil
}

func (c *HistoryClient) Name() models.BackendName { return models.BackendHistory }

// Fetch downloads [start, end] at daily interval.
func (c *HistoryClient) Fetch(ctx context.Context, symbol string, start, end time.Time) models.FetchOutcome {
	began := time.Now()
	defer func() {
		svcmetrics.ProviderLatency.WithLabelValues(string(models.BackendHistory)).Observe(time.Since(began).Seconds())
	}()

	crumb, err := c.session(ctx)
	if err != nil {
		return c.fail(models.ErrSourceUnavailable, "session: %v", err)
	}

	p1, p2 := bounds(start, end)
	params := map[string]string{
		"period1":              strconv.FormatInt(p1, 10),
		"period2":              strconv.FormatInt(p2, 10),
		"interval":             "1d",
		"events":               "history",
		"includeAdjustedClose": "true",
	}
	if crumb != "" {
		params["crumb"] = crumb
	}
	resp, err := c.rc.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(params).
		Get(c.cfg.BaseURL + "/v7/finance/download/{symbol}")
	if err != nil {
		return c.fail(models.ErrSourceUnavailable, "download: %v", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		c.resetSession()
		return c.fail(models.ErrSourceUnavailable, "status %d", code)
	case resp.IsError():
		return c.fail(models.ErrSourceUnavailable, "status %d", code)
	}

	rows, err := ParseHistoryCSV(bytes.NewReader(resp.Body()))
	if err != nil {
		return c.fail(models.ErrDataShape, "csv: %v", err)
	}
	if len(rows) < 2 {
		return models.Empty(models.BackendHistory, fmt.Sprintf("%d usable rows", len(rows)))
	}
	return models.Success(models.BackendHistory, rows)
}

func (c *HistoryClient) fail(kind error, format string, args ...interface{}) models.FetchOutcome {
	label := "unavailable"
	if errors.Is(kind, models.ErrDataShape) {
		label = "data_shape"
	}
	svcmetrics.ProviderErrors.WithLabelValues(string(models.BackendHistory), label).Inc()
	return models.Failure(models.BackendHistory, models.NewSourceError(models.BackendHistory, kind, format, args...))
}

// session returns the cached crumb or obtains one. Concurrent callers share a
// single in-flight request; no lock is held during the network calls.
func (c *HistoryClient) session(ctx context.Context) (string, error) {
	c.mu.RLock()
	crumb := c.crumb
	c.mu.RUnlock()
	if crumb != "" {
		return crumb, nil
	}

	v, err, _ := c.flight.Do("crumb", func() (interface{}, error) {
		if c.cfg.SessionURL != "" {
			// the cookie endpoint usually answers 404; only the Set-Cookie matters
			if _, err := c.rc.R().SetContext(ctx).Get(c.cfg.SessionURL); err != nil {
				return "", err
			}
		}
		if c.cfg.CrumbURL == "" {
			return "", nil
		}
		resp, err := c.rc.R().SetContext(ctx).Get(c.cfg.CrumbURL)
		if err != nil {
			return "", err
		}
		if resp.IsError() {
			return "", fmt.Errorf("crumb status %d", resp.StatusCode())
		}
		crumb := strings.TrimSpace(resp.String())
		if crumb == "" || strings.ContainsAny(crumb, "<{ ") {
			return "", errNoCrumb
		}

		c.mu.Lock()
		c.crumb = crumb
		c.mu.Unlock()
		c.log.Info("provider session established", logger.String("backend", string(models.BackendHistory)))
		return crumb, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *HistoryClient) resetSession() {
	c.mu.Lock()
	c.crumb = ""
	c.mu.Unlock()
}
