package marketdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

const (
	DefaultDataType         = "PercPriceGainers"
	DefaultOIBuildupType    = "Long Built Up"
	DefaultExpiryType       = "NEAR"
	MockMessage             = "SUCCESS (Mock Data)"
	cacheKeyPutCallRatio    = "pcr_data"
	cacheKeyGainersFormat   = "market_data_%s_%s"
	cacheKeyOIBuildupFormat = "oi_buildup_%s_%s"
)

var (
	DataTypes      = []string{"PercPriceGainers", "PercPriceLosers", "PercOILosers", "PercOIGainers"}
	OIBuildupTypes = []string{"Long Built Up", "Short Built Up", "Short Covering", "Long Unwinding"}
	ExpiryTypes    = []string{"NEAR", "NEXT", "FAR"}
)

func IsDataType(v string) bool      { return slices.Contains(DataTypes, v) }
func IsOIBuildupType(v string) bool { return slices.Contains(OIBuildupTypes, v) }
func IsExpiryType(v string) bool    { return slices.Contains(ExpiryTypes, v) }

// Response is the JSON shape returned to callers for every operation.
type Response[T any] struct {
	Status    bool    `json:"status"`
	Message   string  `json:"message"`
	ErrorCode string  `json:"errorcode"`
	Data      Rows[T] `json:"data"`
}

// IsMock reports whether the response carries synthetic data.
func (r Response[T]) IsMock() bool { return r.Message == MockMessage }

// Rows keeps broker rows byte for byte, so fields the broker adds or omits
// reach the caller unchanged. T is the typed view of one row.
type Rows[T any] []json.RawMessage

// RowsOf encodes typed rows. It panics if an item cannot be encoded, which
// cannot happen for the row types in this package.
func RowsOf[T any](items []T) Rows[T] {
	rows := make(Rows[T], 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			panic(err)
		}
		rows = append(rows, raw)
	}
	return rows
}

// Decode returns the typed view. Fields absent from a row stay zero.
func (r Rows[T]) Decode() ([]T, error) {
	out := make([]T, 0, len(r))
	for i, raw := range r {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r Rows[T]) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]json.RawMessage(r))
}

// Num is a decimal that accepts JSON numbers or numeric strings and encodes as a JSON number.
type Num struct {
	decimal.Decimal
}

func NewNum(value int64, exp int32) Num { return Num{decimal.New(value, exp)} }

func (n Num) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

// UnmarshalJSON treats null and "" as zero; SmartAPI sends both for
// figures it has not computed yet.
func (n *Num) UnmarshalJSON(b []byte) error {
	if t := bytes.TrimSpace(b); bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`)) {
		n.Decimal = decimal.Zero
		return nil
	}
	return n.Decimal.UnmarshalJSON(b)
}

// Mover is one row of the gainers/losers table.
type Mover struct {
	TradingSymbol         string `json:"tradingSymbol"`
	PercentChange         Num    `json:"percentChange"`
	SymbolToken           Num    `json:"symbolToken"`
	OpenInterest          Num    `json:"opnInterest"`
	NetChangeOpenInterest Num    `json:"netChangeOpnInterest"`
	LTP                   Num    `json:"ltp"`
}

// PCR is the put-call ratio of one contract.
type PCR struct {
	PCR           Num    `json:"pcr"`
	TradingSymbol string `json:"tradingSymbol"`
}

// OIBuildup is one row of the open-interest buildup table. Numeric fields
// are encoded as strings, as SmartAPI does for this endpoint.
type OIBuildup struct {
	SymbolToken           string          `json:"symbolToken"`
	LTP                   decimal.Decimal `json:"ltp"`
	NetChange             decimal.Decimal `json:"netChange"`
	PercentChange         decimal.Decimal `json:"percentChange"`
	OpenInterest          decimal.Decimal `json:"opnInterest"`
	NetChangeOpenInterest decimal.Decimal `json:"netChangeOpnInterest"`
	TradingSymbol         string          `json:"tradingSymbol"`
}
