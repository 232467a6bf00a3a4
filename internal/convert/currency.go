package convert

import (
	"context"
	"strconv"

	"github.com/cartmigrate/migration-core/internal/mapping"
	"github.com/cartmigrate/migration-core/internal/runlog"
)

var currencyRequiredFields = []string{"isoCode"}

// CurrencyConverter converts one source currency into a target currency
// record keyed by ISO code.
type CurrencyConverter struct {
	mappings mapping.Service
	logs     runlog.Sink
}

// NewCurrencyConverter wires a currency converter.
func NewCurrencyConverter(mappings mapping.Service, logs runlog.Sink) *CurrencyConverter {
	return &CurrencyConverter{mappings: mappings, logs: logs}
}

func (c *CurrencyConverter) SourceIdentifier(record Record) string {
	return SourceString(record, "isoCode")
}

func (c *CurrencyConverter) Convert(ctx context.Context, mc *Context, data Record) (*Result, error) {
	isoCode := c.SourceIdentifier(data)

	if missing := EmptyRequiredFields(data, currencyRequiredFields); len(missing) > 0 {
		c.logs.Record(ctx, runlog.MissingField(mc.RunID, EntityCurrency, isoCode, missing...))
		return Reject(data), nil
	}

	m, err := c.mappings.GetOrCreate(ctx, &mapping.GetOrCreateRequest{
		ConnectionID: mc.ConnectionID,
		EntityType:   EntityCurrency,
		SourceID:     isoCode,
		Checksum:     mapping.Checksum(data),
	})
	if err != nil {
		return nil, err
	}

	b := NewBuilder()
	b.Set("id", m.EntityUUID)
	b.Set("isoCode", isoCode)
	b.Set("symbol", symbolOrISO(data, isoCode))
	b.Set("shortName", isoCode)
	b.MapValue("name", data, "name", TypeString)
	if !b.Has("name") {
		b.Set("name", isoCode)
	}
	b.Set("factor", currencyFactor(data))
	b.Set("decimalPrecision", 2)

	return &Result{Converted: b.Build(), Unmapped: CloneRecord(data)}, nil
}

func symbolOrISO(data Record, isoCode string) string {
	if symbol := SourceString(data, "symbol"); symbol != "" {
		return symbol
	}
	return isoCode
}

// currencyFactor parses the source exchange rate, defaulting to 1 when
// absent or unparseable.
func currencyFactor(data Record) float64 {
	switch v := data["rate"].(type) {
	case float64:
		if v > 0 {
			return v
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return 1
}
