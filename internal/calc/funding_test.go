package calc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"Crowd_Conscious/internal/config"
)

var thresholds = config.DefaultPolicy().Urgency

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, Progress(0, 1000))
	assert.Equal(t, 100.0, Progress(1000, 1000))
	assert.Equal(t, 50.0, Progress(500, 1000))
	assert.Equal(t, 100.0, Progress(1500, 1000), "over-funded clamps to 100")
	assert.Equal(t, 0.0, Progress(-10, 1000))

	for _, cur := range []float64{0, 1, 250, 999.5, 1000} {
		p := Progress(cur, 1000)
		assert.InDelta(t, 100*cur/1000, p, 1e-9)
	}
}

func TestProgressZeroGoal(t *testing.T) {
	p := Progress(100, 0)
	assert.False(t, math.IsNaN(p))
	assert.False(t, math.IsInf(p, 0))
	assert.Equal(t, 0.0, p)
	assert.Equal(t, "N/A", ProgressLabel(100, 0))
	assert.Equal(t, UrgencyLow, UrgencyFor(100, 0, thresholds))
}

func TestUrgencyBuckets(t *testing.T) {
	cases := []struct {
		progress float64
		want     string
	}{
		{0, UrgencyUrgent},
		{24.99, UrgencyUrgent},
		{25, UrgencyHigh},
		{49.9, UrgencyHigh},
		{50, UrgencyMedium},
		{74.9, UrgencyMedium},
		{75, UrgencyLow},
		{100, UrgencyLow},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Urgency(c.progress, thresholds), "progress=%v", c.progress)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(30000, 100000, thresholds)
	assert.Equal(t, int64(70000), s.Remaining)
	assert.Equal(t, 30.0, s.Progress)
	assert.Equal(t, "30%", s.ProgressLabel)
	assert.Equal(t, UrgencyHigh, s.Urgency)

	s = Summarize(120, 100, thresholds)
	assert.Equal(t, int64(0), s.Remaining)
	assert.Equal(t, 100.0, s.Progress)
}
