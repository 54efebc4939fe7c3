package market

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MockSource generates a random-walk quote stream for local development.
type MockSource struct {
	mu    sync.Mutex
	price float64
	step  float64
	rng   *rand.Rand
}

func NewMockSource(startPrice, step float64, seed int64) *MockSource {
	if startPrice <= 0 {
		startPrice = 100
	}
	if step <= 0 {
		step = startPrice * 0.0005
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockSource{price: startPrice, step: step, rng: rand.New(rand.NewSource(seed))}
}

func (m *MockSource) LTP(ctx context.Context, _ string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price += (m.rng.Float64()*2 - 1) * m.step
	if m.price <= m.step {
		m.price = m.step * 2
	}
	return Quote{Price: m.price, At: time.Now()}, nil
}
