package scoring

import "time"

// Urgency classifies how time-sensitive an opportunity is
type Urgency string

const (
	UrgencyUrgent  Urgency = "urgent"  // Act within the hour
	UrgencyHigh    Urgency = "high"    // Act within 2 hours
	UrgencyMedium  Urgency = "medium"  // Act within 4 hours
	UrgencyLow     Urgency = "low"     // Can wait longer
	UrgencyExpired Urgency = "expired" // Too late
)

// TimingScore maps an urgency tier to its contribution in the composite score
func (u Urgency) TimingScore() float64 {
	switch u {
	case UrgencyUrgent:
		return 1.0
	case UrgencyHigh:
		return 0.85
	case UrgencyMedium:
		return 0.6
	case UrgencyLow:
		return 0.3
	case UrgencyExpired:
		return 0.1
	default:
		return 0.3
	}
}

// ExpiryWindowHours returns how long an opportunity of this urgency stays actionable
func (u Urgency) ExpiryWindowHours() float64 {
	switch u {
	case UrgencyUrgent:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 4
	case UrgencyLow:
		return 8
	case UrgencyExpired:
		return 0
	default:
		return 4
	}
}

// minimum post age used in rate calculations, avoids division blowups on
// posts only minutes old
const minAgeHours = 0.1

// Velocity computes the engagement growth rate of a post.
//
// Formula: (score/age_hours)*0.7 + (comments/age_hours)*0.3*10
func Velocity(score, numComments int, ageHours float64) float64 {
	if ageHours < minAgeHours {
		ageHours = minAgeHours
	}

	scoreVelocity := float64(score) / ageHours
	commentVelocity := float64(numComments) / ageHours

	return scoreVelocity*0.7 + commentVelocity*0.3*10
}

// AgeHours returns the age of a post in hours relative to now
func AgeHours(createdAt, now time.Time) float64 {
	return now.Sub(createdAt).Hours()
}

// ClassifyUrgency classifies urgency from velocity and age against a
// subreddit-specific threshold. Rules are evaluated in order, first match wins;
// anything older than 6 hours is expired regardless of velocity.
func ClassifyUrgency(velocity, ageHours, threshold float64) Urgency {
	switch {
	case ageHours > 6:
		return UrgencyExpired
	case velocity > threshold*2 && ageHours < 1:
		return UrgencyUrgent
	case velocity > threshold && ageHours < 2:
		return UrgencyHigh
	case velocity > threshold*0.5 && ageHours < 4:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// VelocityThreshold returns the default velocity bar for a subreddit of the
// given size. Used when no per-subreddit override is configured.
func VelocityThreshold(subscribers int) float64 {
	switch {
	case subscribers < 50_000:
		return 5.0
	case subscribers < 500_000:
		return 15.0
	case subscribers < 2_000_000:
		return 50.0
	default:
		return 200.0
	}
}
