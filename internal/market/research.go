package market

import "strings"

// Research is the upstream web-research record attached to a search response.
type Research struct {
	Summary        string          `json:"summary,omitempty"`
	BullCase       []string        `json:"bull_case,omitempty"`
	BearCase       []string        `json:"bear_case,omitempty"`
	KeyEvents      []string        `json:"key_events,omitempty"`
	Sources        []Source        `json:"sources,omitempty"`
	Confidence     string          `json:"confidence,omitempty"`
	MarketInsights []MarketInsight `json:"market_insights,omitempty"`
}

type Source struct {
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// MarketInsight is a server-side (LLM-matched) pairing of research notes with
// a market title.
type MarketInsight struct {
	MarketTitle      string   `json:"market_title"`
	RelevantInsights []string `json:"relevant_insights,omitempty"`
}

// Alignment labels how the research relates to a market's current pricing.
// This is a best-effort heuristic classifier, not a guaranteed mapping.
type Alignment string

const (
	AlignmentNeutral   Alignment = "neutral"
	AlignmentSupported Alignment = "supported"
)

const (
	supportedHighProb = 0.6
	supportedLowProb  = 0.4
	minKeywordLen     = 3
)

// ResearchContext is the per-market result of aligning research to markets.
type ResearchContext struct {
	Alignment  Alignment `json:"alignment"`
	Notes      []string  `json:"notes,omitempty"`
	HasContext bool      `json:"has_context"`
}

// AlignResearch matches research content to one market. Server-provided
// market_insights win when a fuzzy title match lands; otherwise keyword
// overlap between the market title and the concatenated research text decides
// whether the market has research context at all. The market reads as
// "supported" when its probability is decisive (>= 0.6 or <= 0.4) and at
// least one matching bull/bear point backs that side.
func AlignResearch(r Record, research *Research) ResearchContext {
	out := ResearchContext{Alignment: AlignmentNeutral}
	if research == nil {
		return out
	}

	prob := r.ProbabilityOrNeutral()
	title := strings.ToLower(r.DisplayTitle())

	for _, insight := range research.MarketInsights {
		insightTitle := strings.ToLower(strings.TrimSpace(insight.MarketTitle))
		if insightTitle == "" || !fuzzyTitleMatch(title, insightTitle) {
			continue
		}
		out.HasContext = true
		out.Notes = insight.RelevantInsights
		if (prob >= supportedHighProb || prob <= supportedLowProb) && len(out.Notes) > 0 {
			out.Alignment = AlignmentSupported
		}
		return out
	}

	// Fallback: keyword overlap against summary + bull + bear text.
	keywords := titleKeywords(title)
	if len(keywords) == 0 {
		return out
	}
	corpus := strings.ToLower(research.Summary + " " +
		strings.Join(research.BullCase, " ") + " " +
		strings.Join(research.BearCase, " "))
	for _, kw := range keywords {
		if strings.Contains(corpus, kw) {
			out.HasContext = true
			break
		}
	}
	if !out.HasContext {
		return out
	}

	switch {
	case prob >= supportedHighProb:
		if mentions := mentionedPoints(research.BullCase, keywords); len(mentions) > 0 {
			out.Alignment = AlignmentSupported
			out.Notes = mentions
		}
	case prob <= supportedLowProb:
		if mentions := mentionedPoints(research.BearCase, keywords); len(mentions) > 0 {
			out.Alignment = AlignmentSupported
			out.Notes = mentions
		}
	}
	return out
}

// fuzzyTitleMatch accepts containment in either direction, or first-word
// containment either way. Deliberately loose.
func fuzzyTitleMatch(marketTitle, insightTitle string) bool {
	if strings.Contains(marketTitle, insightTitle) || strings.Contains(insightTitle, marketTitle) {
		return true
	}
	if w := firstWord(insightTitle); w != "" && strings.Contains(marketTitle, w) {
		return true
	}
	if w := firstWord(marketTitle); w != "" && strings.Contains(insightTitle, w) {
		return true
	}
	return false
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// titleKeywords keeps words longer than three characters; shorter words match
// too much text to discriminate anything.
func titleKeywords(title string) []string {
	var out []string
	for _, w := range strings.Fields(title) {
		if len(w) > minKeywordLen {
			out = append(out, w)
		}
	}
	return out
}

func mentionedPoints(points []string, keywords []string) []string {
	var out []string
	for _, point := range points {
		lower := strings.ToLower(point)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, point)
				break
			}
		}
	}
	return out
}
