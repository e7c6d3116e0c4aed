package pgparking

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Деньги читаются как numeric::text и пишутся строкой: без потерь на float.

func decArg(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullDecArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	return d, errors.Wrapf(err, "parse numeric %q", s)
}

func parseNullDec(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDec(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
