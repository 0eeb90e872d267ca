package market

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one market as the upstream insights backend returns it. Upstream
// rows are heterogeneous: amounts arrive as numbers or numeric strings,
// outcome lists arrive as arrays or JSON-encoded strings, and either of two
// date fields may be present. The custom field types absorb all of that so
// the rest of the package can stay total.
type Record struct {
	Title       string     `json:"title,omitempty"`
	Question    string     `json:"question,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	Slug        string     `json:"slug,omitempty"`
	Category    string     `json:"category,omitempty"`
	Subcategory string     `json:"subcategory,omitempty"`
	VolumeTotal Amount     `json:"volume_total,omitempty"`
	Volume      Amount     `json:"volume,omitempty"`
	Liquidity   Amount     `json:"liquidity,omitempty"`
	EndTime     *int64     `json:"end_time,omitempty"`
	EndDateISO  string     `json:"end_date_iso,omitempty"`
	Outcomes    StringList `json:"outcomes,omitempty"`
	Prices      PriceList  `json:"outcomePrices,omitempty"`
	Tags        StringList `json:"llm_tags,omitempty"`
}

// Amount is a money-ish value that tolerates numeric strings and garbage.
// Unparseable input decodes as zero rather than failing the whole record.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		a.Decimal = decimal.Zero
		return nil
	}
	a.Decimal = d
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return a.Decimal.MarshalJSON()
}

// StringList decodes either a JSON array of strings or a string containing
// JSON-encoded array ("[\"Yes\",\"No\"]"). Malformed input decodes as empty.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*l = direct
		return nil
	}
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		var nested []string
		if err := json.Unmarshal([]byte(encoded), &nested); err == nil {
			*l = nested
			return nil
		}
	}
	*l = nil
	return nil
}

// PriceList decodes outcome prices from arrays of numbers, arrays of numeric
// strings, or a JSON-encoded string of either. Position i aligns with the
// outcome at position i; index 0 conventionally represents "Yes".
type PriceList []float64

func (p *PriceList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			*p = nil
			return nil
		}
		if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
			*p = nil
			return nil
		}
	}
	out := make(PriceList, 0, len(raw))
	for _, item := range raw {
		var f float64
		if err := json.Unmarshal(item, &f); err == nil {
			out = append(out, f)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				out = append(out, f)
				continue
			}
		}
		*p = nil
		return nil
	}
	*p = out
	return nil
}

// DisplayTitle prefers title over question, with a fixed fallback.
func (r Record) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	if r.Question != "" {
		return r.Question
	}
	return "Unknown Market"
}

// DisplayVolume prefers the totaled field when upstream provides both.
func (r Record) DisplayVolume() decimal.Decimal {
	if !r.VolumeTotal.IsZero() {
		return r.VolumeTotal.Decimal
	}
	return r.Volume.Decimal
}

// Probability returns the primary (index 0, conventionally "Yes") outcome
// price, or nil when prices are missing or unparseable. Single-card display
// renders nil as "--"; aggregation should use ProbabilityOrNeutral instead.
func (r Record) Probability() *float64 {
	if len(r.Prices) == 0 {
		return nil
	}
	p := r.Prices[0]
	return &p
}

// ProbabilityOrNeutral is the aggregation-side fallback: missing data counts
// as a neutral 0.5 so one malformed market cannot sink a consensus figure.
func (r Record) ProbabilityOrNeutral() float64 {
	if p := r.Probability(); p != nil {
		return *p
	}
	return 0.5
}

// OutcomeLabel names the primary outcome, defaulting to the Yes convention.
func (r Record) OutcomeLabel() string {
	if len(r.Outcomes) > 0 && r.Outcomes[0] != "" {
		return r.Outcomes[0]
	}
	return "Yes"
}

// EndDate resolves the market end, preferring the ISO field over epoch
// seconds. Returns nil when neither parses.
func (r Record) EndDate() *time.Time {
	if r.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, r.EndDateISO); err == nil {
			return &t
		}
		if t, err := time.Parse("2006-01-02", r.EndDateISO); err == nil {
			return &t
		}
	}
	if r.EndTime != nil {
		t := time.Unix(*r.EndTime, 0)
		return &t
	}
	return nil
}

// Expired reports whether the market's resolved end date is strictly before
// now. Markets with no resolvable end date never expire.
func (r Record) Expired(now time.Time) bool {
	end := r.EndDate()
	return end != nil && end.Before(now)
}

// URL links back to the source platform when a slug is known.
func (r Record) URL() string {
	if r.Slug == "" {
		return ""
	}
	return "https://polymarket.com/market/" + r.Slug
}
