package scoring

import (
	"strings"
	"time"
	"unicode"
)

// PostFeatures are the discovery-time signals fed to virality prediction.
// Only information available at discovery belongs here, never outcome data.
type PostFeatures struct {
	// Temporal
	AgeHours  float64
	HourOfDay int
	DayOfWeek time.Weekday

	// Engagement at discovery time
	Score       int
	NumComments int
	UpvoteRatio float64
	Velocity    float64

	// Title
	TitleLength    int
	TitleWordCount int
	HasQuestion    bool
	HasNumber      bool

	// Content
	IsSelf     bool
	BodyLength int

	// Subreddit
	SubredditSubscribers int

	// Author, zero when unknown
	AuthorKarma   int
	AuthorAgeDays int
}

// ExtractFeatures builds a feature set from raw post attributes
func ExtractFeatures(
	title, body string,
	isSelf bool,
	score, numComments int,
	upvoteRatio float64,
	createdAt time.Time,
	subscribers int,
	now time.Time,
) PostFeatures {
	ageHours := AgeHours(createdAt, now)
	if ageHours < minAgeHours {
		ageHours = minAgeHours
	}

	hasNumber := false
	for _, r := range title {
		if unicode.IsDigit(r) {
			hasNumber = true
			break
		}
	}

	bodyLength := 0
	if isSelf {
		bodyLength = len(body)
	}

	return PostFeatures{
		AgeHours:             ageHours,
		HourOfDay:            createdAt.UTC().Hour(),
		DayOfWeek:            createdAt.UTC().Weekday(),
		Score:                score,
		NumComments:          numComments,
		UpvoteRatio:          upvoteRatio,
		Velocity:             Velocity(score, numComments, ageHours),
		TitleLength:          len(title),
		TitleWordCount:       len(strings.Fields(title)),
		HasQuestion:          strings.Contains(title, "?"),
		HasNumber:            hasNumber,
		IsSelf:               isSelf,
		BodyLength:           bodyLength,
		SubredditSubscribers: subscribers,
	}
}

// Predictor estimates the engagement potential of a post in [0, 1].
// Implementations must be safe for concurrent use.
type Predictor interface {
	Predict(features PostFeatures, threshold float64) (float64, error)
}

// HeuristicPredictor scores virality from additive discovery-time signals.
// It is the default until a trained model replaces it.
type HeuristicPredictor struct{}

func (HeuristicPredictor) Predict(f PostFeatures, threshold float64) (float64, error) {
	score := 0.5

	// Velocity signal, the strongest one
	switch {
	case f.Velocity > threshold*2:
		score += 0.25
	case f.Velocity > threshold:
		score += 0.15
	case f.Velocity > threshold*0.5:
		score += 0.05
	}

	// Early engagement
	if f.AgeHours < 1 {
		if f.Score > 10 {
			score += 0.1
		}
		if f.NumComments > 5 {
			score += 0.1
		}
	} else if f.AgeHours < 2 {
		if f.Score > 50 {
			score += 0.1
		}
	}

	// Upvote ratio
	switch {
	case f.UpvoteRatio > 0.9:
		score += 0.1
	case f.UpvoteRatio > 0.8:
		score += 0.05
	case f.UpvoteRatio < 0.6:
		score -= 0.1
	}

	// Title quality
	if f.TitleLength >= 40 && f.TitleLength <= 120 {
		score += 0.05
	}
	if f.HasQuestion {
		score += 0.05
	}

	// Content type
	if f.IsSelf && f.BodyLength > 100 {
		score += 0.05
	}

	// Comment volume relative to subreddit size
	subscribers := f.SubredditSubscribers
	if subscribers < 1 {
		subscribers = 1
	}
	if float64(f.NumComments)/float64(subscribers) > 0.0001 {
		score += 0.1
	}

	return clamp01(score), nil
}

// FallbackPredictor tries a primary predictor and falls back on error.
// Lets a trained model slot in front of the heuristic without changing callers.
type FallbackPredictor struct {
	Primary  Predictor
	Fallback Predictor
}

func (p FallbackPredictor) Predict(f PostFeatures, threshold float64) (float64, error) {
	score, err := p.Primary.Predict(f, threshold)
	if err == nil {
		return score, nil
	}
	return p.Fallback.Predict(f, threshold)
}
