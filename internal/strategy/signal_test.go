package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"supertrend-core/internal/indicators"
	"supertrend-core/internal/market"
	"supertrend-core/internal/state"
)

func TestGenerate(t *testing.T) {
	candle := market.Candle{Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), Close: 135}
	up := indicators.Update{Ready: true, Flipped: true, State: indicators.State{Trend: indicators.TrendUp}}
	down := indicators.Update{Ready: true, Flipped: true, State: indicators.State{Trend: indicators.TrendDown}}
	long := &state.Position{Symbol: "NIFTY", Side: state.SideLong}
	short := &state.Position{Symbol: "NIFTY", Side: state.SideShort}

	tests := []struct {
		name string
		u    indicators.Update
		pos  *state.Position
		want []Kind
	}{
		{"warming", indicators.Update{Flipped: true}, nil, nil},
		{"no flip", indicators.Update{Ready: true, State: indicators.State{Trend: indicators.TrendUp}}, nil, nil},
		{"flip up flat", up, nil, []Kind{EnterLong}},
		{"flip down flat", down, nil, []Kind{EnterShort}},
		{"flip up while short", up, short, []Kind{Exit, EnterLong}},
		{"flip down while long", down, long, []Kind{Exit, EnterShort}},
		{"flip up while already long", up, long, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Generate("NIFTY", tt.u, candle, tt.pos)
			var kinds []Kind
			for _, s := range got {
				kinds = append(kinds, s.Kind)
				assert.Equal(t, 135.0, s.Price)
				assert.Equal(t, candle.Timestamp, s.At)
				assert.Equal(t, ReasonTrendFlip, s.Reason)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestKindSide(t *testing.T) {
	assert.Equal(t, state.SideLong, EnterLong.Side())
	assert.Equal(t, state.SideShort, EnterShort.Side())
	assert.True(t, EnterShort.IsEntry())
	assert.False(t, Exit.IsEntry())
}
