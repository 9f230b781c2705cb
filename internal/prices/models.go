package prices

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dtfcapture/internal/flow"
	"dtfcapture/internal/series"
)

// Static identifiers of the DTF 90-day series in the downstream pricing system.
const (
	AssetCode  = 123456
	MarketCode = "RBLG"
	FeederCode = 8
	FieldCode  = 7
)

func init() {
	// The downstream contract expects numeric prices, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Payload is the record persisted as jsonb and posted downstream. JSON names
// follow the downstream contract.
type Payload struct {
	AssetCode        int             `json:"CodAtivo"`
	Date             string          `json:"Data"`
	MarketCode       string          `json:"CodPraca"`
	FeederCode       int             `json:"CodFeeder"`
	FieldCode        int             `json:"CodCampo"`
	Price            decimal.Decimal `json:"Preco"`
	AdjustmentFactor decimal.Decimal `json:"FatorAjuste"`
	IsForecast       bool            `json:"Previsao"`
	IsRebook         bool            `json:"IsRebook"`
}

func NewPayload(o series.Observation) Payload {
	return Payload{
		AssetCode:        AssetCode,
		Date:             o.Date.Format(flow.DateLayout),
		MarketCode:       MarketCode,
		FeederCode:       FeederCode,
		FieldCode:        FieldCode,
		Price:            o.Value,
		AdjustmentFactor: decimal.NewFromInt(1),
		IsForecast:       false,
		IsRebook:         false,
	}
}

func PayloadsFrom(observations []series.Observation) []Payload {
	out := make([]Payload, 0, len(observations))
	for _, o := range observations {
		out = append(out, NewPayload(o))
	}
	return out
}

func (p Payload) PriceDate() (time.Time, error) {
	d, err := flow.ParseDate(p.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid payload date %q: %w", p.Date, err)
	}
	return d, nil
}
