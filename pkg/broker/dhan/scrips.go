package dhan

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"supertrend-core/internal/order"
)

type scripKey struct {
	underlying string
	strike     int
	opt        order.OptionType
}

type scrip struct {
	securityID string
	expiry     time.Time
}

// Scrips resolves index options to security ids using Dhan's scrip master CSV.
type Scrips struct {
	entries map[scripKey][]scrip
	now     func() time.Time
}

var requiredColumns = []string{
	"SEM_SMST_SECURITY_ID",
	"SEM_INSTRUMENT_NAME",
	"SEM_TRADING_SYMBOL",
	"SEM_EXPIRY_DATE",
	"SEM_STRIKE_PRICE",
	"SEM_OPTION_TYPE",
}

func LoadScripsFile(path string) (*Scrips, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadScrips(f)
}

// LoadScrips keeps only OPTIDX rows.
func LoadScrips(r io.Reader) (*Scrips, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read scrip header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("scrip master missing column %s", name)
		}
	}

	s := &Scrips{entries: make(map[scripKey][]scrip), now: time.Now}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read scrip row: %w", err)
		}
		get := func(name string) string {
			i := col[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if get("SEM_INSTRUMENT_NAME") != "OPTIDX" {
			continue
		}
		strike, err := strconv.ParseFloat(get("SEM_STRIKE_PRICE"), 64)
		if err != nil {
			continue
		}
		expiry, err := parseExpiry(get("SEM_EXPIRY_DATE"))
		if err != nil {
			continue
		}
		underlying, _, _ := strings.Cut(get("SEM_TRADING_SYMBOL"), "-")
		key := scripKey{
			underlying: strings.ToUpper(underlying),
			strike:     int(math.Round(strike)),
			opt:        order.OptionType(strings.ToUpper(get("SEM_OPTION_TYPE"))),
		}
		s.entries[key] = append(s.entries[key], scrip{securityID: get("SEM_SMST_SECURITY_ID"), expiry: expiry})
	}
	return s, nil
}

func parseExpiry(v string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad expiry %q", v)
}

// Resolve picks the nearest expiry that has not passed yet.
func (s *Scrips) Resolve(index string, strike int, opt order.OptionType) (string, error) {
	today := s.now().Format("2006-01-02")
	var best *scrip
	for _, sc := range s.entries[scripKey{underlying: strings.ToUpper(index), strike: strike, opt: opt}] {
		if sc.expiry.Format("2006-01-02") < today {
			continue
		}
		if best == nil || sc.expiry.Before(best.expiry) {
			best = &sc
		}
	}
	if best == nil {
		return "", fmt.Errorf("no live %s %d %s contract in scrip master", index, strike, opt)
	}
	return best.securityID, nil
}
