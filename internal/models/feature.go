package models

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// FeatureType names a learning dimension
type FeatureType string

const (
	FeatureTimingHour FeatureType = "timing_hour"
	FeatureSubreddit  FeatureType = "subreddit"
	FeatureStyle      FeatureType = "style"
)

// EMAAlpha is the smoothing factor for the average score estimate
const EMAAlpha = 0.1

// LearningFeature is an aggregated outcome statistic for one value of one
// learning dimension, scoped to a project. The (type, key, project) triple
// is unique. Alpha and Beta form a Beta-distribution posterior used for
// Thompson sampling.
type LearningFeature struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	ProjectID   uint        `gorm:"uniqueIndex:idx_feature_key;not null" json:"project_id"`
	FeatureType FeatureType `gorm:"uniqueIndex:idx_feature_key;not null" json:"feature_type"`
	FeatureKey  string      `gorm:"uniqueIndex:idx_feature_key;not null" json:"feature_key"`

	SampleCount  int     `gorm:"default:0" json:"sample_count"`
	SuccessCount int     `gorm:"default:0" json:"success_count"`
	SuccessRate  float64 `gorm:"default:0" json:"success_rate"`

	// Exponential moving average of observed scores
	AvgScore float64 `gorm:"default:0" json:"avg_score"`

	// Beta posterior, initialized to the uniform prior
	BanditAlpha float64 `gorm:"default:1.0" json:"bandit_alpha"`
	BanditBeta  float64 `gorm:"default:1.0" json:"bandit_beta"`

	LastObservedAt *time.Time `json:"last_observed_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewLearningFeature builds a feature with the uniform prior
func NewLearningFeature(projectID uint, featureType FeatureType, key string) *LearningFeature {
	return &LearningFeature{
		ProjectID:   projectID,
		FeatureType: featureType,
		FeatureKey:  key,
		BanditAlpha: 1.0,
		BanditBeta:  1.0,
	}
}

// RecordOutcome folds one observed outcome into the feature. Success bumps
// alpha, failure bumps beta, and the score flows through the EMA.
func (f *LearningFeature) RecordOutcome(success bool, score float64, observedAt time.Time) {
	f.SampleCount++
	if success {
		f.SuccessCount++
		f.BanditAlpha++
	} else {
		f.BanditBeta++
	}
	f.UpdateSuccessRate()

	if f.SampleCount == 1 {
		f.AvgScore = score
	} else {
		f.AvgScore = f.AvgScore*(1-EMAAlpha) + score*EMAAlpha
	}
	f.LastObservedAt = &observedAt
}

// RecordBatch folds a batch of outcomes in one step. Counters and the
// posterior absorb every outcome, the batch mean flows through a single
// EMA fold.
func (f *LearningFeature) RecordBatch(successes, total int, meanScore float64, observedAt time.Time) {
	if total <= 0 {
		return
	}
	first := f.SampleCount == 0
	f.SampleCount += total
	f.SuccessCount += successes
	f.BanditAlpha += float64(successes)
	f.BanditBeta += float64(total - successes)
	f.UpdateSuccessRate()

	if first {
		f.AvgScore = meanScore
	} else {
		f.AvgScore = f.AvgScore*(1-EMAAlpha) + meanScore*EMAAlpha
	}
	f.LastObservedAt = &observedAt
}

// UpdateSuccessRate recomputes the plain success ratio
func (f *LearningFeature) UpdateSuccessRate() {
	if f.SampleCount == 0 {
		f.SuccessRate = 0
		return
	}
	f.SuccessRate = float64(f.SuccessCount) / float64(f.SampleCount)
}

// ApplyDecay shrinks the posterior toward the prior so stale evidence
// loses weight. Both parameters stay at or above 1.0.
func (f *LearningFeature) ApplyDecay(rate float64) {
	f.BanditAlpha *= rate
	f.BanditBeta *= rate
	if f.BanditAlpha < 1.0 {
		f.BanditAlpha = 1.0
	}
	if f.BanditBeta < 1.0 {
		f.BanditBeta = 1.0
	}
}

// ThompsonSample draws from the Beta(alpha, beta) posterior
func (f *LearningFeature) ThompsonSample(rng *rand.Rand) float64 {
	x := sampleGamma(rng, f.BanditAlpha)
	y := sampleGamma(rng, f.BanditBeta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// TimingKey formats an hour-of-day feature key
func TimingKey(hour int) string {
	return fmt.Sprintf("%02d", hour)
}

// sampleGamma draws from Gamma(shape, 1) using Marsaglia and Tsang's
// squeeze method. Shapes below 1 are boosted and corrected afterwards.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
