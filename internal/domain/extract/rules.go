package extract

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/finsight/internal/domain/model"
)

var (
	cashtagRe  = regexp.MustCompile(`\$([A-Z]{1,5})\b`)
	exchangeRe = regexp.MustCompile(`\((?:(?:NYSE|NASDAQ|Nasdaq|LSE|TSX):\s?)?([A-Z]{1,5})\)`)
	percentRe  = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?)\s?(?:%|percent)`)
	amountRe   = regexp.MustCompile(`\$\s?(\d+(?:\.\d+)?)\s?(billion|million|bn|m)\b`)
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]*`)
)

// knownCompanies maps lower-case names to tickers.
var knownCompanies = map[string]string{
	"apple":     "AAPL",
	"microsoft": "MSFT",
	"tesla":     "TSLA",
	"amazon":    "AMZN",
	"alphabet":  "GOOGL",
	"google":    "GOOGL",
	"nvidia":    "NVDA",
	"meta":      "META",
	"netflix":   "NFLX",
	"jpmorgan":  "JPM",
	"exxon":     "XOM",
}

var companyRules = func() []keywordRule {
	names := make([]string, 0, len(knownCompanies))
	for name := range knownCompanies {
		names = append(names, name)
	}
	sort.Strings(names)
	rules := make([]keywordRule, len(names))
	for i, n := range names {
		rules[i] = keywordRule{label: n, keywords: []string{n}}
	}
	return compileRules(rules)
}()

type keywordRule struct {
	label    string
	keywords []string
	re       *regexp.Regexp
}

// matches reports a whole-word hit for any keyword.
func (r keywordRule) matches(lower string) bool {
	return r.re.MatchString(lower)
}

func compileRules(rules []keywordRule) []keywordRule {
	for i := range rules {
		quoted := make([]string, len(rules[i].keywords))
		for j, kw := range rules[i].keywords {
			quoted[j] = regexp.QuoteMeta(kw)
		}
		rules[i].re = regexp.MustCompile(`(?:^|[^a-z0-9])(?:` + strings.Join(quoted, "|") + `)(?:[^a-z0-9]|$)`)
	}
	return rules
}

// eventRules are checked in order; the first hit wins.
var eventRules = compileRules([]keywordRule{
	{label: "merger", keywords: []string{"acquire", "acquires", "acquired", "acquisition", "merger", "takeover", "buyout"}},
	{label: "monetary_policy", keywords: []string{"federal reserve", "interest rate", "rate cut", "rate cuts", "rate hike", "rate hikes", "rates", "central bank", "ecb", "the fed"}},
	{label: "earnings", keywords: []string{"earnings", "quarterly results", "revenue", "eps", "profit", "profits"}},
	{label: "guidance", keywords: []string{"guidance", "outlook", "forecast"}},
	{label: "regulation", keywords: []string{"regulator", "antitrust", "lawsuit", "fined", "sec"}},
})

var sectorRules = compileRules([]keywordRule{
	{label: "technology", keywords: []string{"chip", "chips", "semiconductor", "software", "cloud", "ai", "artificial intelligence"}},
	{label: "energy", keywords: []string{"oil", "natural gas", "opec", "crude", "energy"}},
	{label: "financials", keywords: []string{"bank", "banks", "lender", "insurer", "credit"}},
	{label: "healthcare", keywords: []string{"drug", "fda", "pharma", "biotech"}},
	{label: "consumer", keywords: []string{"retail", "consumer", "e-commerce"}},
	{label: "automotive", keywords: []string{"electric vehicle", "automaker", "ev"}},
})

var geoRules = compileRules([]keywordRule{
	{label: "US", keywords: []string{"united states", "u.s.", "federal reserve", "wall street", "washington"}},
	{label: "EU", keywords: []string{"europe", "euro zone", "eurozone", "ecb", "brussels"}},
	{label: "CN", keywords: []string{"china", "beijing", "chinese"}},
	{label: "JP", keywords: []string{"japan", "tokyo", "boj"}},
	{label: "UK", keywords: []string{"britain", "united kingdom", "london", "bank of england"}},
})

var (
	fxRule    = compileRules([]keywordRule{{label: "fx", keywords: []string{"dollar", "euro", "yen", "currency"}}})[0]
	ratesRule = compileRules([]keywordRule{{label: "rates", keywords: []string{"treasury", "treasuries", "bond", "bonds", "yield"}}})[0]
)

var baseImpact = map[string]int{
	"merger":          65,
	"monetary_policy": 65,
	"earnings":        55,
	"guidance":        55,
	"regulation":      50,
	"general":         30,
}

// RuleExtractor is a deterministic keyword and pattern extractor.
type RuleExtractor struct {
	freshFor time.Duration
}

// NewRuleExtractor returns an extractor that treats articles fetched within
// 24h of publication as fresh.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{freshFor: 24 * time.Hour}
}

// Extract implements Extractor.
func (r *RuleExtractor) Extract(ctx context.Context, a model.Article) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("extract: %w", err)
	}

	body := a.Body()
	text := a.Title + ". " + body
	lower := " " + strings.ToLower(text) + " "

	tickers, companies := findTickers(text, lower)
	event := firstMatch(lower, eventRules, "general")
	sectors := allMatches(lower, sectorRules)
	geos := allMatches(lower, geoRules)
	numerics := findNumerics(text)

	ex := model.Extracted{
		EventType: event,
		Tickers:   tickers,
		Companies: companies,
		Sectors:   sectors,
		Geos:      geos,
		Markets:   markets(event, tickers, sectors, lower),
		Numerics:  numerics,
	}

	return Result{
		Extracted: ex,
		Raw: model.Impact{
			ImpactScore: r.impact(ex),
			Confidence:  r.confidence(a, ex),
			Novelty:     r.novelty(a),
		},
		Narrative: narrative(a, ex, body),
	}, nil
}

func (r *RuleExtractor) impact(ex model.Extracted) int {
	score := baseImpact[ex.EventType]
	score += min(len(ex.Tickers)*5, 15)
	if pct, ok := ex.Numerics["percent_change"]; ok {
		score += int(math.Min(math.Abs(pct), 20))
	}
	return model.ClampScore(score)
}

func (r *RuleExtractor) confidence(a model.Article, ex model.Extracted) int {
	score := 40
	if len(ex.Tickers) > 0 {
		score += 15
	}
	if len(ex.Numerics) > 0 {
		score += 15
	}
	if len(a.Body()) > 500 {
		score += 10
	}
	if ex.EventType != "general" {
		score += 10
	}
	return model.ClampScore(score)
}

func (r *RuleExtractor) novelty(a model.Article) int {
	if a.PublishedAt.IsZero() || a.FetchedAt.IsZero() {
		return 70
	}
	if a.FetchedAt.Sub(a.PublishedAt) <= r.freshFor {
		return 85
	}
	return 55
}

func findTickers(text, lower string) (tickers, companies []string) {
	seen := map[string]struct{}{}
	add := func(t string) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			tickers = append(tickers, t)
		}
	}
	for _, m := range cashtagRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range exchangeRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	for _, c := range companyRules {
		if c.matches(lower) {
			companies = append(companies, strings.ToUpper(c.label[:1])+c.label[1:])
			add(knownCompanies[c.label])
		}
	}
	sort.Strings(tickers)
	return tickers, companies
}

func firstMatch(lower string, rules []keywordRule, fallback string) string {
	for i := range rules {
		if rules[i].matches(lower) {
			return rules[i].label
		}
	}
	return fallback
}

func allMatches(lower string, rules []keywordRule) []string {
	var out []string
	for i := range rules {
		if rules[i].matches(lower) {
			out = append(out, rules[i].label)
		}
	}
	return out
}

func findNumerics(text string) map[string]float64 {
	out := map[string]float64{}
	if m := percentRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out["percent_change"] = v
		}
	}
	if m := amountRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			switch strings.ToLower(m[2]) {
			case "billion", "bn":
				v *= 1e9
			default:
				v *= 1e6
			}
			out["amount_usd"] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func markets(event string, tickers, sectors []string, lower string) []string {
	var out []string
	if len(tickers) > 0 {
		out = append(out, "equities")
	}
	if event == "monetary_policy" || ratesRule.matches(lower) {
		out = append(out, "rates")
	}
	for _, s := range sectors {
		if s == "energy" {
			out = append(out, "commodities")
			break
		}
	}
	if fxRule.matches(lower) {
		out = append(out, "fx")
	}
	return out
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func narrative(a model.Article, ex model.Extracted, body string) model.Narrative {
	lead := a.Summary
	if strings.TrimSpace(lead) == "" {
		if s := sentences(body); len(s) > 0 {
			lead = s[0]
		}
	}
	if len(lead) > 280 {
		lead = strings.TrimSpace(lead[:277]) + "..."
	}

	var bullets []string
	for _, s := range sentences(body) {
		if percentRe.MatchString(s) || amountRe.MatchString(s) {
			bullets = append(bullets, s)
		}
		if len(bullets) == 3 {
			break
		}
	}

	var actions, risks []string
	if len(ex.Tickers) > 0 {
		actions = append(actions, "Review exposure to "+strings.Join(ex.Tickers, ", "))
	}
	switch ex.EventType {
	case "monetary_policy":
		risks = append(risks, "Rate path repricing across duration-sensitive holdings")
	case "merger":
		risks = append(risks, "Deal completion and regulatory approval risk")
	case "earnings", "guidance":
		risks = append(risks, "Estimate revisions following the print")
	case "regulation":
		risks = append(risks, "Legal and compliance costs")
	}

	return model.Narrative{
		ExecutiveSummary: lead,
		Bullets:          bullets,
		Actions:          actions,
		Risks:            risks,
		Citations:        []string{a.URL},
	}
}
