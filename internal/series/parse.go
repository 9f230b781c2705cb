package series

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	compactDateLayout = "20060102"
	isoDateLayout     = "2006-01-02"
)

var plainDecimal = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)

// Parse reads every Obs element of a generic-data document regardless of its
// namespace. Elements without a usable ObsDimension/ObsValue pair are skipped.
// The result is sorted by date ascending.
func Parse(r io.Reader) ([]Observation, error) {
	var out []Observation
	err := Walk(r, func(o Observation) error {
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortByDate(out)
	return out, nil
}

// Walk streams observations in document order to fn. An error from fn stops
// the walk and is returned unchanged.
func Walk(r io.Reader, fn func(Observation) error) error {
	dec := xml.NewDecoder(r)

	var (
		depth          int
		obsDepth       = -1
		dimRaw, valRaw string
		haveDim        bool
		haveVal        bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to decode generic data document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case t.Name.Local == "Obs" && obsDepth < 0:
				obsDepth = depth
				dimRaw, valRaw, haveDim, haveVal = "", "", false, false
			case obsDepth >= 0 && t.Name.Local == "ObsDimension" && !haveDim:
				dimRaw, haveDim = attrValue(t), true
			case obsDepth >= 0 && t.Name.Local == "ObsValue" && !haveVal:
				valRaw, haveVal = attrValue(t), true
			}
		case xml.EndElement:
			if depth == obsDepth {
				obsDepth = -1
				if o, ok := toObservation(dimRaw, valRaw); ok {
					if err := fn(o); err != nil {
						return err
					}
				}
			}
			depth--
		}
	}
}

func attrValue(el xml.StartElement) string {
	for _, a := range el.Attr {
		if a.Name.Local == "value" {
			return a.Value
		}
	}
	return ""
}

func toObservation(dimRaw, valRaw string) (Observation, bool) {
	if strings.TrimSpace(dimRaw) == "" || strings.TrimSpace(valRaw) == "" {
		return Observation{}, false
	}
	date, ok := ParseDate(dimRaw)
	if !ok {
		return Observation{}, false
	}
	value, ok := ParseValue(valRaw)
	if !ok {
		return Observation{}, false
	}
	return Observation{Date: date, Value: value}, true
}

// ParseDate accepts yyyyMMdd and yyyy-MM-dd.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	layout := isoDateLayout
	if len(raw) == len(compactDateLayout) && !strings.Contains(raw, "-") {
		layout = compactDateLayout
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseValue accepts an optional sign and a dot as decimal separator, nothing else.
func ParseValue(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if !plainDecimal.MatchString(raw) {
		return decimal.Decimal{}, false
	}
	sign := ""
	switch raw[0] {
	case '-':
		sign, raw = "-", raw[1:]
	case '+':
		raw = raw[1:]
	}
	if strings.HasPrefix(raw, ".") {
		raw = "0" + raw
	}
	if strings.HasSuffix(raw, ".") {
		raw += "0"
	}
	d, err := decimal.NewFromString(sign + raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func SortByDate(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Date.Before(obs[j].Date)
	})
}
