package api

import (
	"encoding/json"
	"time"

	"dtfcapture/internal/series"
	"dtfcapture/internal/state"
)

const (
	SeriesDaily  = "DTF 90 dias (diario, direto do SDMX)"
	SeriesWeekly = "DTF 90 dias (semanal, agregado a partir do SDMX diario)"

	dateLayout = "2006-01-02"
)

type ObservationResponse struct {
	Date  string      `json:"date"`
	Value json.Number `json:"value"`
}

type SeriesResponse struct {
	Series string                `json:"series"`
	Start  *string               `json:"start"`
	End    *string               `json:"end"`
	Count  int                   `json:"count"`
	Data   []ObservationResponse `json:"data"`
}

// ReprocessRequest names the flow to replay; at least one field is required.
type ReprocessRequest struct {
	CaptureDate *string `json:"capture_date"`
	FlowID      *string `json:"flow_id"`
}

type ReprocessResponse struct {
	FlowID      string `json:"flowId"`
	CaptureDate string `json:"captureDate"`
}

type FlowsResponse struct {
	Count int            `json:"count"`
	Flows []*state.State `json:"flows"`
}

func newSeriesResponse(name string, start, end *time.Time, obs []series.Observation) SeriesResponse {
	data := make([]ObservationResponse, 0, len(obs))
	for _, o := range obs {
		data = append(data, ObservationResponse{Date: o.Date.Format(dateLayout), Value: json.Number(o.Value.String())})
	}
	return SeriesResponse{
		Series: name,
		Start:  formatDate(start),
		End:    formatDate(end),
		Count:  len(data),
		Data:   data,
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// parseOptionalDate treats blank and malformed values as absent.
func parseOptionalDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil
	}
	return &t
}
