package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday, 10:00 UTC.
var ref = time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

func TestParseRFC3339(t *testing.T) {
	p := New()
	iv, conf, err := p.Parse("2026-08-30T15:00:00Z", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1.0, conf)
	assert.Equal(t, time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC), iv.Start)
	assert.Equal(t, time.Hour, iv.End.Sub(iv.Start))
}

func TestParseClockWithDay(t *testing.T) {
	p := New()
	iv, conf, err := p.Parse("tomorrow 15:30", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0.9, conf)
	assert.Equal(t, time.Date(2026, 8, 25, 15, 30, 0, 0, time.UTC), iv.Start)
}

func TestParseMeridiem(t *testing.T) {
	p := New()
	iv, _, err := p.Parse("3pm", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC), iv.Start)

	iv, _, err = p.Parse("12am tomorrow", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), iv.Start)
}

func TestParseWeekday(t *testing.T) {
	p := New()

	iv, _, err := p.Parse("friday", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC), iv.Start)

	// A bare weekday naming today means the upcoming one.
	iv, _, err = p.Parse("monday", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), iv.Start)

	iv, _, err = p.Parse("next friday 09:00", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC), iv.Start)
}

func TestParseDaypart(t *testing.T) {
	p := New()
	iv, conf, err := p.Parse("tomorrow evening", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0.6, conf)
	assert.Equal(t, time.Date(2026, 8, 25, 18, 0, 0, 0, time.UTC), iv.Start)
	assert.Equal(t, time.Date(2026, 8, 25, 22, 0, 0, 0, time.UTC), iv.End)
}

func TestParseBareDateDefaultsMorning(t *testing.T) {
	p := New()
	iv, conf, err := p.Parse("day after tomorrow", ref, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0.5, conf)
	assert.Equal(t, time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC), iv.Start)
}

func TestParseZone(t *testing.T) {
	p := New()
	loc := time.FixedZone("UTC+2", 2*60*60)
	iv, _, err := p.Parse("tomorrow 08:00", ref, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 8, 0, 0, 0, loc).UTC(), iv.Start.UTC())
}

func TestParseUnrecognized(t *testing.T) {
	p := New()
	_, _, err := p.Parse("whenever works", ref, time.UTC)
	assert.ErrorIs(t, err, ErrUnrecognized)

	_, _, err = p.Parse("   ", ref, time.UTC)
	assert.ErrorIs(t, err, ErrUnrecognized)
}
