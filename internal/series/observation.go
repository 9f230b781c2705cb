// Package series turns SDMX generic-data documents into dated observations.
package series

import (
	"time"

	"github.com/shopspring/decimal"
)

type Observation struct {
	Date  time.Time
	Value decimal.Decimal
}

func (o Observation) Equal(other Observation) bool {
	return o.Date.Equal(other.Date) && o.Value.Equal(other.Value)
}
