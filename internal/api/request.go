package api

import (
	"fmt"
	"strings"

	"github.com/smart-hedge/marketdata-gateway/internal/marketdata"
)

// GainersLosersQuery is the query string of /market-data/gainers-losers.
type GainersLosersQuery struct {
	DataType   string `query:"datatype"`
	ExpiryType string `query:"expirytype"`
}

// OIBuildupQuery is the query string of /market-data/oi-buildup.
type OIBuildupQuery struct {
	DataType   string `query:"datatype"`
	ExpiryType string `query:"expirytype"`
}

// Validate accepts empty values (defaults apply) or one of the documented values.
func (q *GainersLosersQuery) Validate() error {
	if q.DataType != "" && !marketdata.IsDataType(q.DataType) {
		return fmt.Errorf("datatype must be one of %s", strings.Join(marketdata.DataTypes, ", "))
	}
	return validateExpiry(q.ExpiryType)
}

// Validate accepts empty values (defaults apply) or one of the documented values.
func (q *OIBuildupQuery) Validate() error {
	if q.DataType != "" && !marketdata.IsOIBuildupType(q.DataType) {
		return fmt.Errorf("datatype must be one of %s", strings.Join(marketdata.OIBuildupTypes, ", "))
	}
	return validateExpiry(q.ExpiryType)
}

func validateExpiry(v string) error {
	if v != "" && !marketdata.IsExpiryType(v) {
		return fmt.Errorf("expirytype must be one of %s", strings.Join(marketdata.ExpiryTypes, ", "))
	}
	return nil
}
