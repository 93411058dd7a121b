package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"BarSync/internal/domain/models"
	svcmetrics "BarSync/internal/service/metrics"
	apphttp "BarSync/pkg/http"
	"BarSync/pkg/logger"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*decimal.Decimal `json:"open"`
			High   []*decimal.Decimal `json:"high"`
			Low    []*decimal.Decimal `json:"low"`
			Close  []*decimal.Decimal `json:"close"`
			Volume []*int64           `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*decimal.Decimal `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// ChartClient is the raw HTTP/JSON backend against the v8 chart endpoint.
type ChartClient struct {
	cfg  Config
	http *apphttp.Client
	log  *logger.Logger
}

func NewChartClient(cfg Config, log *logger.Logger) *ChartClient {
	cfg = cfg.withDefaults()
	svcmetrics.Register()
	return &ChartClient{
		cfg:  cfg,
		http: apphttp.NewClient(apphttp.WithTimeout(cfg.Timeout), apphttp.WithDialTimeout(cfg.DialTimeout)),
		log:  log,
	}
}

func (c *ChartClient) Name() models.BackendName { return models.BackendChart }

func (c *ChartClient) Fetch(ctx context.Context, symbol string, start, end time.Time) models.FetchOutcome {
	began := time.Now()
	defer func() {
		svcmetrics.ProviderLatency.WithLabelValues(string(models.BackendChart)).Observe(time.Since(began).Seconds())
	}()

	p1, p2 := bounds(start, end)
	var payload chartResponse
	err := c.http.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    c.cfg.BaseURL + "/v8/finance/chart/" + url.PathEscape(symbol),
		Headers: map[string]string{
			"User-Agent": c.cfg.UserAgent,
			"Accept":     "application/json",
		},
		QueryParams: map[string][]string{
			"period1":  {strconv.FormatInt(p1, 10)},
			"period2":  {strconv.FormatInt(p2, 10)},
			"interval": {"1d"},
			"events":   {"history"},
		},
	}, &payload)
	if err != nil {
		var se *apphttp.StatusError
		if errors.As(err, &se) {
			return c.fail(models.ErrSourceUnavailable, "status %d", se.StatusCode)
		}
		return c.fail(models.ErrSourceUnavailable, "request: %v", err)
	}

	rows, err := decodeChart(&payload)
	if err != nil {
		kind := models.ErrDataShape
		if !errors.Is(err, models.ErrDataShape) {
			kind = models.ErrSourceUnavailable
		}
		return c.fail(kind, "%s", err.(*models.SourceError).Detail)
	}
	if len(rows) < 2 {
		return models.Empty(models.BackendChart, fmt.Sprintf("%d usable rows", len(rows)))
	}
	return models.Success(models.BackendChart, rows)
}

func (c *ChartClient) fail(kind error, format string, args ...interface{}) models.FetchOutcome {
	label := "unavailable"
	if errors.Is(kind, models.ErrDataShape) {
		label = "data_shape"
	}
	svcmetrics.ProviderErrors.WithLabelValues(string(models.BackendChart), label).Inc()
	return models.Failure(models.BackendChart, models.NewSourceError(models.BackendChart, kind, format, args...))
}

// decodeChart flattens the parallel indicator arrays into rows. Timestamps
// are shifted by the exchange GMT offset before taking the calendar date.
// Errors are *models.SourceError.
func decodeChart(p *chartResponse) ([]models.DailyBar, error) {
	shape := func(format string, args ...interface{}) error {
		return models.NewSourceError(models.BackendChart, models.ErrDataShape, format, args...)
	}
	if e := p.Chart.Error; e != nil {
		return nil, models.NewSourceError(models.BackendChart, models.ErrSourceUnavailable, "api error %s: %s", e.Code, e.Description)
	}
	if len(p.Chart.Result) == 0 {
		return nil, shape("no result")
	}
	res := p.Chart.Result[0]
	n := len(res.Timestamp)
	if n == 0 {
		return nil, nil
	}
	if len(res.Indicators.Quote) == 0 || res.Indicators.Quote[0].Close == nil {
		return nil, shape("missing close array")
	}
	if len(res.Indicators.AdjClose) == 0 || res.Indicators.AdjClose[0].AdjClose == nil {
		return nil, shape("missing adjclose array")
	}
	q := res.Indicators.Quote[0]
	adj := res.Indicators.AdjClose[0].AdjClose
	if len(q.Close) != n || len(adj) != n {
		return nil, shape("indicator length mismatch (timestamps=%d close=%d adjclose=%d)", n, len(q.Close), len(adj))
	}
	for name, arr := range map[string]int{"open": len(q.Open), "high": len(q.High), "low": len(q.Low)} {
		if arr != 0 && arr != n {
			return nil, shape("%s length %d, want %d", name, arr, n)
		}
	}
	if len(q.Volume) != 0 && len(q.Volume) != n {
		return nil, shape("volume length %d, want %d", len(q.Volume), n)
	}

	at := func(arr []*decimal.Decimal, i int) decimal.Decimal {
		if i < len(arr) && arr[i] != nil {
			return *arr[i]
		}
		return decimal.Zero
	}

	rows := make([]models.DailyBar, 0, n)
	for i, ts := range res.Timestamp {
		if q.Close[i] == nil {
			continue
		}
		local := time.Unix(ts+res.Meta.GMTOffset, 0).UTC()
		row := models.DailyBar{
			Date:  time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
			Open:  at(q.Open, i),
			High:  at(q.High, i),
			Low:   at(q.Low, i),
			Close: decimal.NewNullDecimal(*q.Close[i]),
		}
		if adj[i] != nil {
			row.AdjClose = decimal.NewNullDecimal(*adj[i])
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			v := *q.Volume[i]
			row.Volume = &v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
