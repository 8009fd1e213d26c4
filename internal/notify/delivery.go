package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	responseExcerptLimit = 1024
	userAgent            = "openstack-service-checks"
)

// DeliveryPolicy paces and retries webhook posts.
type DeliveryPolicy struct {
	// Timeout bounds a single POST.
	Timeout time.Duration
	// MinInterval is the spacing between notifications for one unit.
	MinInterval time.Duration
	Burst       int
	FirstRetry  time.Duration
	MaxRetry    time.Duration
	// GiveUpAfter bounds the whole delivery, including Retry-After waits.
	GiveUpAfter time.Duration
}

// DefaultDeliveryPolicy is used unless a notifier option overrides it.
func DefaultDeliveryPolicy() DeliveryPolicy {
	return DeliveryPolicy{
		Timeout:     10 * time.Second,
		MinInterval: time.Second,
		Burst:       1,
		FirstRetry:  time.Second,
		MaxRetry:    10 * time.Second,
		GiveUpAfter: 30 * time.Second,
	}
}

// deliverer posts payloads to one webhook URL.
type deliverer struct {
	logger zerolog.Logger
	target string
	url    string
	client *retryablehttp.Client
	policy DeliveryPolicy

	mu     sync.Mutex
	pacers map[string]*rate.Limiter
}

func newDeliverer(logger zerolog.Logger, target, url string, policy DeliveryPolicy) *deliverer {
	// Retries are driven by deliver so Retry-After can be honoured.
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(context.Context, *http.Response, error) (bool, error) { return false, nil }
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: policy.Timeout}

	return &deliverer{
		logger: logger.With().Str("target", target).Logger(),
		target: target,
		url:    url,
		client: client,
		policy: policy,
		pacers: make(map[string]*rate.Limiter),
	}
}

// pace blocks until the unit may send another notification.
func (d *deliverer) pace(ctx context.Context, unit string) error {
	d.mu.Lock()
	limiter, ok := d.pacers[unit]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(d.policy.MinInterval), d.policy.Burst)
		d.pacers[unit] = limiter
	}
	d.mu.Unlock()
	return limiter.Wait(ctx)
}

// deliver posts payload, retrying transient failures with exponential backoff.
func (d *deliverer) deliver(ctx context.Context, payload []byte) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.policy.FirstRetry
	exp.MaxInterval = d.policy.MaxRetry
	exp.MaxElapsedTime = d.policy.GiveUpAfter
	schedule := &throttleAwareBackOff{BackOff: exp}

	operation := func() error {
		err := d.attempt(ctx, payload)
		if err == nil {
			return nil
		}
		var throttled *throttledError
		if errors.As(err, &throttled) {
			if throttled.wait > d.policy.GiveUpAfter {
				return backoff.Permanent(err)
			}
			schedule.serverWait = throttled.wait
			return err
		}
		var transient *transientError
		if errors.As(err, &transient) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.RetryNotify(operation, backoff.WithContext(schedule, ctx), func(err error, wait time.Duration) {
		d.logger.Debug().Err(err).Dur("wait", wait).Msg("notification delivery failed, retrying")
	})
}

// attempt performs one POST and classifies the outcome.
func (d *deliverer) attempt(ctx context.Context, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, d.policy.Timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", d.target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return &transientError{err: fmt.Errorf("post to %s: %w", d.target, err)}
	}
	defer resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		err := fmt.Errorf("%s throttled delivery: %s", d.target, resp.Status)
		if wait, ok := retryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			return &throttledError{wait: wait, err: err}
		}
		return &transientError{err: err}
	case code >= http.StatusInternalServerError:
		return &transientError{err: fmt.Errorf("%s unavailable: %s", d.target, resp.Status)}
	}

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, responseExcerptLimit))
	if text := strings.TrimSpace(string(excerpt)); text != "" {
		return fmt.Errorf("%s rejected notification: %s (%s)", d.target, resp.Status, text)
	}
	return fmt.Errorf("%s rejected notification: %s", d.target, resp.Status)
}

// throttleAwareBackOff prefers a server-provided wait over the exponential schedule.
type throttleAwareBackOff struct {
	backoff.BackOff
	serverWait time.Duration
}

func (b *throttleAwareBackOff) NextBackOff() time.Duration {
	if b.serverWait > 0 {
		wait := b.serverWait
		b.serverWait = 0
		return wait
	}
	return b.BackOff.NextBackOff()
}

// retryAfter parses a Retry-After header given as seconds or an HTTP date.
func retryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	var wait time.Duration
	if seconds, err := strconv.Atoi(value); err == nil {
		wait = time.Duration(seconds) * time.Second
	} else if when, err := http.ParseTime(value); err == nil {
		wait = when.Sub(now)
	}
	return wait, wait > 0
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type throttledError struct {
	wait time.Duration
	err  error
}

func (e *throttledError) Error() string {
	return fmt.Sprintf("%v; retry after %s", e.err, e.wait)
}

func (e *throttledError) Unwrap() error { return e.err }
