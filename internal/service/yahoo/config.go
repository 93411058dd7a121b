package yahoo

import (
	"net"
	"net/http"
	"time"
)

// Config holds the provider endpoints and timeouts shared by both backends.
type Config struct {
	BaseURL     string
	SessionURL  string
	CrumbURL    string
	UserAgent   string
	Timeout     time.Duration
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://query1.finance.yahoo.com"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; barsync/1.0)"
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c
}

func newTransport(dialTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	return t
}

// bounds converts an inclusive [start, end] date range to the provider's
// period1/period2 Unix seconds, where period2 is exclusive.
func bounds(start, end time.Time) (int64, int64) {
	return start.Unix(), end.AddDate(0, 0, 1).Unix()
}
