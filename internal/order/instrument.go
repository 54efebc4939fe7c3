package order

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"supertrend-core/internal/state"
)

// OptionType is the option leg bought for a direction.
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// InstrumentResolver maps an option contract to the broker's security id.
type InstrumentResolver interface {
	Resolve(index string, strike int, opt OptionType) (string, error)
}

// OptionFor maps a position side to the option bought for it.
func OptionFor(side state.Side) OptionType {
	if side == state.SideShort {
		return Put
	}
	return Call
}

// ATMStrike rounds ltp to the nearest strike_interval.
func ATMStrike(ltp float64, interval int) int {
	if interval <= 0 {
		return int(math.Round(ltp))
	}
	return int(math.Round(ltp/float64(interval))) * interval
}

// ContractName builds the display symbol, e.g. "NIFTY 24500 CE".
func ContractName(index string, strike int, opt OptionType) string {
	return fmt.Sprintf("%s %d %s", index, strike, opt)
}

// ParseContract splits a name built by ContractName back into strike and option.
func ParseContract(name string) (int, OptionType, error) {
	fields := strings.Fields(name)
	if len(fields) < 3 {
		return 0, "", fmt.Errorf("malformed contract %q", name)
	}
	strike, err := strconv.Atoi(fields[len(fields)-2])
	if err != nil {
		return 0, "", fmt.Errorf("malformed strike in %q", name)
	}
	opt := OptionType(fields[len(fields)-1])
	if opt != Call && opt != Put {
		return 0, "", fmt.Errorf("unknown option type in %q", name)
	}
	return strike, opt, nil
}
