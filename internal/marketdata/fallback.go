package marketdata

import (
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	futuresSymbols = []string{
		"HDFCBANK25JAN24FUT", "RELIANCE25JAN24FUT", "TCS25JAN24FUT",
		"INFY25JAN24FUT", "ITC25JAN24FUT", "KOTAKBANK25JAN24FUT",
		"SBIN25JAN24FUT", "BHARTIARTL25JAN24FUT", "ICICIBANK25JAN24FUT",
		"HINDUNILVR25JAN24FUT",
	}
	indexSymbols = []string{"NIFTY25JAN24FUT", "BANKNIFTY25JAN24FUT", "SENSEX25JAN24FUT"}
)

const (
	firstSymbolToken = 55394
	oiBuildupRows    = 5
)

// mockSource generates illustrative market data. Values are random; only the shape is fixed.
type mockSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newMockSource(seed uint64) *mockSource {
	return &mockSource{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// between returns a uniform integer in [lo, hi].
func (m *mockSource) between(lo, hi int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo + m.rnd.Int64N(hi-lo+1)
}

func mockResponse[T any](data []T) Response[T] {
	return Response[T]{Status: true, Message: MockMessage, ErrorCode: "", Data: RowsOf(data)}
}

// GainersLosers returns ten futures sorted by percent change: descending for
// gainer data types (1% to 20%), ascending for losers (-1% to -15%).
func (m *mockSource) GainersLosers(dataType string) Response[Mover] {
	gainers := strings.Contains(dataType, "Gainers")

	rows := make([]Mover, 0, len(futuresSymbols))
	for i, sym := range futuresSymbols {
		var pct int64
		if gainers {
			pct = m.between(100, 2000)
		} else {
			pct = -m.between(100, 1500)
		}
		rows = append(rows, Mover{
			TradingSymbol:         sym,
			PercentChange:         NewNum(pct, -2),
			SymbolToken:           NewNum(int64(firstSymbolToken+i), 0),
			OpenInterest:          NewNum(m.between(1_000_000, 200_000_000), 0),
			NetChangeOpenInterest: NewNum(m.between(100_000, 20_000_000), 0),
			LTP:                   NewNum(m.between(50_000, 500_000), -2),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if gainers {
			return rows[i].PercentChange.GreaterThan(rows[j].PercentChange.Decimal)
		}
		return rows[i].PercentChange.LessThan(rows[j].PercentChange.Decimal)
	})
	return mockResponse(rows)
}

// PutCallRatio returns the three index futures with a ratio between 0.50 and 1.50.
func (m *mockSource) PutCallRatio() Response[PCR] {
	rows := make([]PCR, 0, len(indexSymbols))
	for _, sym := range indexSymbols {
		rows = append(rows, PCR{
			PCR:           NewNum(m.between(50, 150), -2),
			TradingSymbol: sym,
		})
	}
	return mockResponse(rows)
}

// OIBuildup returns five futures with string-encoded figures. The buildup
// category does not influence the values.
func (m *mockSource) OIBuildup(string) Response[OIBuildup] {
	rows := make([]OIBuildup, 0, oiBuildupRows)
	for i, sym := range futuresSymbols[:oiBuildupRows] {
		rows = append(rows, OIBuildup{
			SymbolToken:           strconv.Itoa(firstSymbolToken + i),
			LTP:                   decimal.New(m.between(50_000, 500_000), -2),
			NetChange:             decimal.New(m.between(-5_000, 5_000), -2),
			PercentChange:         decimal.New(m.between(-500, 500), -2),
			OpenInterest:          decimal.New(m.between(1_000_000, 50_000_000), -2),
			NetChangeOpenInterest: decimal.New(m.between(-1_000_000, 1_000_000), -2),
			TradingSymbol:         sym,
		})
	}
	return mockResponse(rows)
}
