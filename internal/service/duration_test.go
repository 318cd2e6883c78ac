package service

import (
	"testing"

	"github.com/limbo/cadence/pkg/entity"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestResolveDurationDefault(t *testing.T) {
	res := resolveDuration(nil, DurationInput{})
	assert.Equal(t, defaultDurationMinutes, res.Duration)
	assert.Equal(t, entity.DurationDefault, res.Source)
	assert.Equal(t, 0.5, res.Confidence)
	assert.Nil(t, res.AIOriginal)
}

func TestResolveDurationExact(t *testing.T) {
	res := resolveDuration(nil, DurationInput{Exact: intPtr(90)})
	assert.Equal(t, 90, res.Duration)
	assert.Equal(t, entity.DurationUserExact, res.Source)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestResolveDurationEstimate(t *testing.T) {
	res := resolveDuration(nil, DurationInput{Estimate: intPtr(45), EstimateConfidence: 0.8})
	assert.Equal(t, 45, res.Duration)
	assert.Equal(t, entity.DurationAIEstimate, res.Source)
	assert.Equal(t, 0.8, res.Confidence)
}

func TestResolveDurationConfidenceClamped(t *testing.T) {
	res := resolveDuration(nil, DurationInput{Estimate: intPtr(30), EstimateConfidence: 1.7})
	assert.Equal(t, 1.0, res.Confidence)

	res = resolveDuration(nil, DurationInput{Estimate: intPtr(30), EstimateConfidence: -0.3})
	assert.Equal(t, 0.0, res.Confidence)
}

func TestResolveDurationUserAdjustsEstimate(t *testing.T) {
	existing := &entity.Event{
		Duration:           intPtr(45),
		DurationSource:     entity.DurationAIEstimate,
		DurationConfidence: 0.8,
	}
	res := resolveDuration(existing, DurationInput{Exact: intPtr(60)})
	assert.Equal(t, 60, res.Duration)
	assert.Equal(t, entity.DurationUserAdjusted, res.Source)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, 45, *res.AIOriginal)
}

func TestResolveDurationAdjustKeepsFirstEstimate(t *testing.T) {
	// A second adjustment still points back at the original estimate.
	existing := &entity.Event{
		Duration:           intPtr(60),
		DurationSource:     entity.DurationUserAdjusted,
		DurationConfidence: 1.0,
		AIOriginalEstimate: intPtr(45),
	}
	res := resolveDuration(existing, DurationInput{Exact: intPtr(75)})
	assert.Equal(t, 75, res.Duration)
	assert.Equal(t, entity.DurationUserAdjusted, res.Source)
	assert.Equal(t, 45, *res.AIOriginal)
}

func TestResolveDurationKeepsExisting(t *testing.T) {
	existing := &entity.Event{
		Duration:           intPtr(30),
		DurationSource:     entity.DurationUserExact,
		DurationConfidence: 1.0,
	}
	res := resolveDuration(existing, DurationInput{})
	assert.Equal(t, 30, res.Duration)
	assert.Equal(t, entity.DurationUserExact, res.Source)
	assert.Equal(t, 1.0, res.Confidence)
}
