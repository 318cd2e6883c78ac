package service

import "github.com/limbo/cadence/pkg/entity"

// Fallback when the caller supplies neither an exact value nor an estimate.
const defaultDurationMinutes = 60

// DurationInput is what one write operation says about duration. Exact comes
// from the user, Estimate from the upstream estimator.
type DurationInput struct {
	Exact              *int
	Estimate           *int
	EstimateConfidence float64
}

// DurationResolution is the resolved triple plus the preserved AI value when
// a user overrode an estimate.
type DurationResolution struct {
	Duration   int
	Source     entity.DurationSource
	Confidence float64
	AIOriginal *int
}

// resolveDuration merges a proposed duration with the existing provenance.
// An exact user value always wins over prior estimates; editing an
// AI-estimated duration keeps the original estimate around for later
// learning. Pure: the caller persists the result.
func resolveDuration(existing *entity.Event, in DurationInput) DurationResolution {
	if in.Exact != nil {
		res := DurationResolution{
			Duration:   *in.Exact,
			Source:     entity.DurationUserExact,
			Confidence: 1.0,
		}
		if existing != nil && existing.Duration != nil && existing.DurationSource == entity.DurationAIEstimate {
			res.Source = entity.DurationUserAdjusted
			prev := *existing.Duration
			res.AIOriginal = &prev
			if existing.AIOriginalEstimate != nil {
				orig := *existing.AIOriginalEstimate
				res.AIOriginal = &orig
			}
		} else if existing != nil && existing.AIOriginalEstimate != nil {
			orig := *existing.AIOriginalEstimate
			res.AIOriginal = &orig
			res.Source = entity.DurationUserAdjusted
		}
		return res
	}
	if in.Estimate != nil {
		return DurationResolution{
			Duration:   *in.Estimate,
			Source:     entity.DurationAIEstimate,
			Confidence: clamp01(in.EstimateConfidence),
		}
	}
	if existing != nil && existing.Duration != nil {
		res := DurationResolution{
			Duration:   *existing.Duration,
			Source:     existing.DurationSource,
			Confidence: clamp01(existing.DurationConfidence),
		}
		if existing.AIOriginalEstimate != nil {
			orig := *existing.AIOriginalEstimate
			res.AIOriginal = &orig
		}
		return res
	}
	return DurationResolution{
		Duration:   defaultDurationMinutes,
		Source:     entity.DurationDefault,
		Confidence: 0.5,
	}
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
