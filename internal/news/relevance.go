package news

import "strings"

var financialKeywords = []string{
	"stock", "share", "trading", "market", "price", "investment", "portfolio",
}

// Relevance scores how much text is about symbol. Each case-insensitive
// occurrence of the symbol adds 0.6 and each distinct financial keyword
// present adds 0.4. The result is capped at 1.
func Relevance(text, symbol string) float64 {
	lower := strings.ToLower(text)

	var symbolCount int
	if s := strings.ToLower(strings.TrimSpace(symbol)); s != "" {
		symbolCount = strings.Count(lower, s)
	}

	var keywordCount int
	for _, kw := range financialKeywords {
		if strings.Contains(lower, kw) {
			keywordCount++
		}
	}

	score := 0.6*float64(symbolCount) + 0.4*float64(keywordCount)
	if score > 1 {
		return 1
	}
	return score
}
