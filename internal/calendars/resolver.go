package calendars

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"readerhub/pkg/config"
	"readerhub/pkg/interval"
	"readerhub/pkg/logger"
	"readerhub/pkg/metrics"
	"readerhub/pkg/otelx"
)

const (
	fetchOK           = "ok"
	fetchCached       = "cached"
	fetchFailed       = "fetch_error"
	fetchParseFailed  = "parse_error"
	fetchTimedOut     = "timeout"
	acceptCalendarHdr = "text/calendar, text/plain;q=0.9, */*;q=0.1"
)

// Fetcher retrieves one feed body. client.HttpClient with an empty base URL
// satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, headers map[string]string) ([]byte, error)
}

// Resolver turns a provider's calendar feeds into busy intervals. It never
// fails: a feed that cannot be fetched or parsed contributes nothing.
type Resolver struct {
	fetcher Fetcher
	cache   FeedCache
	cfg     *config.Config
}

type Option func(*Resolver)

// WithCache serves feed bodies from cache when present and stores fresh
// ones.
func WithCache(cache FeedCache) Option {
	return func(r *Resolver) { r.cache = cache }
}

func NewResolver(fetcher Fetcher, cfg *config.Config, opts ...Option) *Resolver {
	r := &Resolver{fetcher: fetcher, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BusyIntervals fetches all feeds concurrently, each bounded by
// FeedFetchTimeout, and returns the concatenation of their busy intervals.
func (r *Resolver) BusyIntervals(ctx context.Context, feeds []string, loc *time.Location) []interval.Interval {
	if len(feeds) == 0 {
		return nil
	}

	ctx, span := otelx.Start(ctx, "calendars.BusyIntervals")
	defer otelx.End(span, nil)

	log := logger.FromContext(ctx, r.cfg.Log)
	results := make([][]interval.Interval, len(feeds))

	var wg sync.WaitGroup
	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed string) {
			defer wg.Done()
			results[i] = r.resolveFeed(ctx, feed, loc, log)
		}(i, feed)
	}
	wg.Wait()

	var busy []interval.Interval
	for _, res := range results {
		busy = append(busy, res...)
	}
	return busy
}

func (r *Resolver) resolveFeed(ctx context.Context, feed string, loc *time.Location, log *logger.Logger) []interval.Interval {
	body, cached := r.cached(ctx, feed)
	if !cached {
		fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FeedFetchTimeout)
		defer cancel()

		var err error
		body, err = r.fetcher.Fetch(fetchCtx, feed, map[string]string{"Accept": acceptCalendarHdr})
		if err != nil {
			result := fetchFailed
			if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
				result = fetchTimedOut
			}
			metrics.RecordFeedFetch(result)
			log.Warn("Skipping calendar feed", "feed", redactFeed(feed), "reason", result, "error", err)
			return nil
		}
	}

	busy, err := ParseBusy(bytes.NewReader(body), loc)
	if err != nil {
		metrics.RecordFeedFetch(fetchParseFailed)
		log.Warn("Skipping calendar feed", "feed", redactFeed(feed), "reason", fetchParseFailed, "error", err)
		return nil
	}

	if cached {
		metrics.RecordFeedFetch(fetchCached)
	} else {
		metrics.RecordFeedFetch(fetchOK)
		if r.cache != nil {
			r.cache.Set(ctx, feed, body)
		}
	}
	return busy
}

func (r *Resolver) cached(ctx context.Context, feed string) ([]byte, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(ctx, feed)
}

// redactFeed keeps only the scheme and host of a feed URL for logs. Private
// feed URLs carry their access token in the path.
func redactFeed(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host + "/..."
}
