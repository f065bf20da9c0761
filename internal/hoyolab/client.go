// Package hoyolab is the outbound client for the HoYoLAB public API: the
// daily check-in events and the per-game real-time notes endpoints. All
// calls go through one circuit breaker and one rate limiter so a degraded
// upstream cannot be hammered by thousands of schedule entries at once.
package hoyolab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

type Config struct {
	RequestTimeout time.Duration // per-call HTTP timeout (default 15s)
	RatePerSec     int           // outbound call budget (default 5)
	UserAgent      string
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*envelope]
	limiter *rate.Limiter
	log     *slog.Logger
	ua      string

	// Endpoint roots, kept as fields so tests can point them at a fake
	// server.
	signEvents map[Game]signEvent
	recordBase string
	bbsBase    string
}

func New(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	ua := cfg.UserAgent
	if strings.TrimSpace(ua) == "" {
		ua = defaultUserAgent
	}

	cb := gobreaker.NewCircuitBreaker[*envelope](gobreaker.Settings{
		Name:        "hoyolab",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 8
		},
		// Business retcodes (already claimed, bad cookie, geetest) are not
		// upstream health signals; only transport-level failures trip.
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransportError(err)
		},
	})

	return &Client{
		http:       &http.Client{Timeout: timeout},
		breaker:    cb,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		log:        log,
		ua:         ua,
		signEvents: defaultSignEvents,
		recordBase: defaultRecordBase,
		bbsBase:    defaultBBSBase,
	}
}

// envelope is the uniform HoYoLAB response wrapper.
type envelope struct {
	Retcode int             `json:"retcode"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "hoyolab transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransportError(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

// call performs one API request and returns the raw data payload.
// A non-zero retcode is returned as a classified error; the data payload is
// still returned when present (geetest results ride inside data).
func (c *Client) call(ctx context.Context, method, url string, cred Credential, body any, extraHeaders map[string]string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Cookie", cred.Cookie)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	env, err := c.breaker.Execute(func() (*envelope, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &transportError{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &transportError{err: fmt.Errorf("upstream returned %d", resp.StatusCode)}
		}
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, &transportError{err: fmt.Errorf("decode response: %w", err)}
		}
		return &env, nil
	})
	if err != nil {
		return nil, err
	}

	if err := classifyRetcode(env.Retcode, env.Message); err != nil {
		return env.Data, err
	}
	return env.Data, nil
}
