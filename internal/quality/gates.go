package quality

import (
	"regexp"
	"strings"

	"github.com/reddit-agent/internal/models"
)

// Length bounds for a publishable reply
const (
	MinReplyLength = 50
	MaxReplyLength = 2000
)

// spamPatterns are phrases that read as marketing copy on Reddit
var spamPatterns = []string{
	"click here",
	"sign up now",
	"limited time",
	"don't miss out",
	"game changer",
	"game-changer",
	"revolutionary",
	"best in class",
	"check out our",
	"use code",
	"discount",
	"% off",
}

var linkPattern = regexp.MustCompile(`https?://\S+`)

// Context carries the posting rules the gate evaluates against
type Context struct {
	Subreddit        string
	AllowLinks       bool
	MinCommentLength int // Zero means use MinReplyLength
	ProductURL       string
}

// Evaluate runs every gate against the reply text. Blocking issues stop
// publication, warnings only lower the score.
func Evaluate(text string, gateCtx Context) models.QualityReport {
	report := models.QualityReport{Score: 1.0}
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	minLength := gateCtx.MinCommentLength
	if minLength <= 0 {
		minLength = MinReplyLength
	}

	if len(trimmed) < minLength {
		report.BlockingIssues = append(report.BlockingIssues, "reply too short")
	}
	if len(trimmed) > MaxReplyLength {
		report.BlockingIssues = append(report.BlockingIssues, "reply too long")
	}

	for _, pattern := range spamPatterns {
		if strings.Contains(lower, pattern) {
			report.BlockingIssues = append(report.BlockingIssues, "promotional phrasing: "+pattern)
		}
	}

	links := linkPattern.FindAllString(trimmed, -1)
	if len(links) > 0 {
		if !gateCtx.AllowLinks {
			report.BlockingIssues = append(report.BlockingIssues, "subreddit disallows links")
		} else if len(links) > 1 {
			report.Warnings = append(report.Warnings, "multiple links in reply")
		}
	}

	// A reply that is mostly the product pitch reads as an ad
	if gateCtx.ProductURL != "" && strings.Contains(trimmed, gateCtx.ProductURL) && len(trimmed) < 200 {
		report.Warnings = append(report.Warnings, "short reply dominated by product link")
	}

	if strings.Count(trimmed, "!") > 3 {
		report.Warnings = append(report.Warnings, "excessive exclamation marks")
	}
	if hasExcessiveCaps(trimmed) {
		report.Warnings = append(report.Warnings, "excessive capitalization")
	}

	report.Score -= 0.5 * float64(len(report.BlockingIssues))
	report.Score -= 0.1 * float64(len(report.Warnings))
	if report.Score < 0 {
		report.Score = 0
	}
	return report
}

// Passed reports whether the text cleared every blocking gate
func Passed(report models.QualityReport) bool {
	return len(report.BlockingIssues) == 0
}

func hasExcessiveCaps(text string) bool {
	letters, caps := 0, 0
	for _, r := range text {
		if r >= 'a' && r <= 'z' {
			letters++
		} else if r >= 'A' && r <= 'Z' {
			letters++
			caps++
		}
	}
	return letters > 20 && float64(caps)/float64(letters) > 0.3
}
