package prices

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_WireShape(t *testing.T) {
	body, err := json.Marshal(samplePayload(16, "10.751"))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"CodAtivo": 123456,
		"Data": "2024-08-16",
		"CodPraca": "RBLG",
		"CodFeeder": 8,
		"CodCampo": 7,
		"Preco": 10.751,
		"FatorAjuste": 1,
		"Previsao": false,
		"IsRebook": false
	}`, string(body))
}

func TestPayload_PriceDate(t *testing.T) {
	d, err := samplePayload(19, "1").PriceDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.August, 19, 0, 0, 0, 0, time.UTC), d)

	_, err = Payload{Date: "19/08/2024"}.PriceDate()
	assert.Error(t, err)
}
