package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supertrend-core/internal/logger"
)

var (
	// ErrDataUnavailable is returned after the retry budget for one poll is spent.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrUnauthorized is not retried: the credentials will not fix themselves.
	ErrUnauthorized = errors.New("market data source rejected credentials")
)

// MarketDataSource is the quote provider behind the feed.
type MarketDataSource interface {
	LTP(ctx context.Context, instrument string) (Quote, error)
}

// Feed polls a MarketDataSource at a fixed interval and builds candles from the quotes.
type Feed struct {
	Source     MarketDataSource
	Instrument string
	Interval   time.Duration
	Timeframe  time.Duration
	MaxRetries int // retries per poll before ErrDataUnavailable
	MaxBackoff int // backoff cap, in intervals

	builder  candleBuilder
	lastPoll time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewFeed(src MarketDataSource, instrument string, interval, timeframe time.Duration) *Feed {
	return &Feed{
		Source:     src,
		Instrument: instrument,
		Interval:   interval,
		Timeframe:  timeframe,
		MaxRetries: 5,
		MaxBackoff: 5,
		builder:    candleBuilder{frame: timeframe},
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Next blocks until the polling interval since the previous poll has elapsed, then
// fetches one quote.
func (f *Feed) Next(ctx context.Context) (Tick, error) {
	if !f.lastPoll.IsZero() {
		if err := f.sleep(ctx, f.Interval-f.now().Sub(f.lastPoll)); err != nil {
			return Tick{}, err
		}
	}
	q, err := f.fetch(ctx)
	f.lastPoll = f.now()
	if err != nil {
		return Tick{}, err
	}
	if q.At.IsZero() {
		q.At = f.lastPoll
	}
	return Tick{At: q.At, Price: q.Price, Candle: f.builder.add(q)}, nil
}

// NextCandle polls until a candle closes.
func (f *Feed) NextCandle(ctx context.Context) (Candle, error) {
	for {
		tick, err := f.Next(ctx)
		if err != nil {
			return Candle{}, err
		}
		if tick.Candle != nil {
			return *tick.Candle, nil
		}
	}
}

func (f *Feed) backoff(attempt int) time.Duration {
	limit := f.Interval * time.Duration(f.MaxBackoff)
	d := f.Interval << uint(attempt)
	if d > limit || d <= 0 {
		d = limit
	}
	return d
}

func (f *Feed) fetch(ctx context.Context) (Quote, error) {
	for attempt := 0; ; attempt++ {
		q, err := f.Source.LTP(ctx, f.Instrument)
		if err == nil && q.Price > 0 {
			return q, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive price %v", q.Price)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Quote{}, ctxErr
		}
		if errors.Is(err, ErrUnauthorized) {
			return Quote{}, err
		}
		if attempt >= f.MaxRetries {
			return Quote{}, fmt.Errorf("%w: %s after %d attempts: %w", ErrDataUnavailable, f.Instrument, attempt+1, err)
		}
		wait := f.backoff(attempt)
		logger.Debugf("quote fetch for %s failed (attempt %d): %v; retrying in %s", f.Instrument, attempt+1, err, wait)
		if err := f.sleep(ctx, wait); err != nil {
			return Quote{}, err
		}
	}
}
