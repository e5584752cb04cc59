package scoring

import "strings"

// Relevance scores how well a post matches the project vocabulary.
//
// An empty keyword list yields a neutral 0.5. A post matching no positive
// keyword scores 0 regardless of negative matches. Otherwise the match ratio
// is penalized 0.2 per negative keyword hit and clamped to [0, 1].
func Relevance(title, body string, keywords, negativeKeywords []string) float64 {
	if len(keywords) == 0 {
		return 0.5
	}

	text := strings.ToLower(title + " " + body)

	positiveMatches := 0
	for _, keyword := range keywords {
		if strings.Contains(text, strings.ToLower(keyword)) {
			positiveMatches++
		}
	}

	if positiveMatches == 0 {
		return 0.0
	}

	negativeMatches := 0
	for _, keyword := range negativeKeywords {
		if strings.Contains(text, strings.ToLower(keyword)) {
			negativeMatches++
		}
	}

	positiveScore := float64(positiveMatches) / float64(len(keywords))
	if positiveScore > 1.0 {
		positiveScore = 1.0
	}
	penalty := float64(negativeMatches) * 0.2

	return clamp01(positiveScore - penalty)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
