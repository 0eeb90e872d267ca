package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const maxDisplayTags = 3

// Per-market spread is not exposed by the upstream API; the dashboard assumes
// a flat placeholder until real order-book spreads are wired through.
var placeholderSpread = decimal.NewFromFloat(0.01)

// Card is the display-ready projection of one market, optionally enriched
// with research context.
type Card struct {
	Title        string     `json:"title"`
	Platform     string     `json:"platform,omitempty"`
	Category     string     `json:"category,omitempty"`
	Subcategory  string     `json:"subcategory,omitempty"`
	Probability  *float64   `json:"probability"`
	OutcomeLabel string     `json:"outcome_label"`
	Volume       string     `json:"volume"`
	Liquidity    string     `json:"liquidity"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Expired      bool       `json:"expired"`
	Tags         []string   `json:"tags,omitempty"`
	URL          string     `json:"url,omitempty"`

	Research ResearchContext `json:"research"`
}

// Aggregates is the client-side fallback for the upstream server aggregates.
type Aggregates struct {
	ConsensusProb  float64         `json:"consensusProb"`
	TotalVolume    decimal.Decimal `json:"totalVol"`
	TotalLiquidity decimal.Decimal `json:"totalLiq"`
	AvgSpread      decimal.Decimal `json:"avgSpread"`
	MarketCount    int             `json:"marketCount"`
}

// FormatCurrency renders a dollar amount compactly: millions as $X.XM,
// thousands as $X.Xk, else whole dollars. Negative or zero values (including
// the zero that malformed input decodes to) render as plain dollars.
func FormatCurrency(v decimal.Decimal) string {
	million := decimal.NewFromInt(1_000_000)
	thousand := decimal.NewFromInt(1_000)
	switch {
	case v.GreaterThanOrEqual(million):
		return "$" + v.Div(million).StringFixed(1) + "M"
	case v.GreaterThanOrEqual(thousand):
		return "$" + v.Div(thousand).StringFixed(1) + "k"
	default:
		return "$" + v.StringFixed(0)
	}
}

// Consensus computes the volume-weighted mean of primary probabilities.
// Zero-volume markets are excluded from the weighted sum but still counted;
// with no volume anywhere the consensus is 0, not NaN.
func Consensus(records []Record) Aggregates {
	agg := Aggregates{}
	weighted := decimal.Zero
	for _, r := range records {
		vol := r.DisplayVolume()
		agg.TotalVolume = agg.TotalVolume.Add(vol)
		agg.TotalLiquidity = agg.TotalLiquidity.Add(r.Liquidity.Decimal)
		if vol.IsPositive() {
			prob := decimal.NewFromFloat(r.ProbabilityOrNeutral())
			weighted = weighted.Add(prob.Mul(vol))
		}
		agg.MarketCount++
	}
	if agg.TotalVolume.IsPositive() {
		agg.ConsensusProb, _ = weighted.Div(agg.TotalVolume).Float64()
	}
	if agg.MarketCount > 0 {
		agg.AvgSpread = placeholderSpread
	}
	return agg
}

// Enrich shapes records into display cards, aligning each against the
// research record when one is present, and orders them for display:
// research-context markets first (stable within the group), then by
// descending volume.
func Enrich(records []Record, research *Research, now time.Time) []Card {
	cards := make([]Card, 0, len(records))
	for _, r := range records {
		tags := r.Tags
		if len(tags) > maxDisplayTags {
			tags = tags[:maxDisplayTags]
		}
		cards = append(cards, Card{
			Title:        r.DisplayTitle(),
			Platform:     r.Platform,
			Category:     r.Category,
			Subcategory:  r.Subcategory,
			Probability:  r.Probability(),
			OutcomeLabel: r.OutcomeLabel(),
			Volume:       FormatCurrency(r.DisplayVolume()),
			Liquidity:    FormatCurrency(r.Liquidity.Decimal),
			EndDate:      r.EndDate(),
			Expired:      r.Expired(now),
			Tags:         tags,
			URL:          r.URL(),
			Research:     AlignResearch(r, research),
		})
	}

	volumes := make([]decimal.Decimal, len(records))
	for i, r := range records {
		volumes[i] = r.DisplayVolume()
	}
	idx := make([]int, len(cards))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := cards[idx[a]], cards[idx[b]]
		if ca.Research.HasContext != cb.Research.HasContext {
			return ca.Research.HasContext
		}
		return volumes[idx[a]].GreaterThan(volumes[idx[b]])
	})
	out := make([]Card, len(cards))
	for i, j := range idx {
		out[i] = cards[j]
	}
	return out
}
