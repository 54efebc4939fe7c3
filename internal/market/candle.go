package market

import "time"

// Candle is one OHLC bar. Timestamp is the bucket start.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
}

// Quote is a last-traded-price observation.
type Quote struct {
	Price float64
	At    time.Time
}

// Tick is what the feed yields every polling interval. Candle is set when the
// quote opened a new bucket and the previous one closed.
type Tick struct {
	At     time.Time
	Price  float64
	Candle *Candle
}

// candleBuilder folds quotes into fixed-width buckets aligned to the frame.
type candleBuilder struct {
	frame time.Duration
	cur   *Candle
}

func (b *candleBuilder) add(q Quote) *Candle {
	start := q.At.Truncate(b.frame)
	if b.cur == nil {
		b.cur = &Candle{Timestamp: start, Open: q.Price, High: q.Price, Low: q.Price, Close: q.Price}
		return nil
	}
	if start.Before(b.cur.Timestamp) {
		// stale quote from an already-closed bucket
		return nil
	}
	if start.Equal(b.cur.Timestamp) {
		if q.Price > b.cur.High {
			b.cur.High = q.Price
		}
		if q.Price < b.cur.Low {
			b.cur.Low = q.Price
		}
		b.cur.Close = q.Price
		return nil
	}
	closed := *b.cur
	b.cur = &Candle{Timestamp: start, Open: q.Price, High: q.Price, Low: q.Price, Close: q.Price}
	return &closed
}
