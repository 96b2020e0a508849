package orb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pohanwww/auto-trade/core"
)

func mkBar(t time.Time, open, high, low, close float64) core.Bar {
	return core.Bar{Symbol: "TXF", Time: t, Open: open, High: high, Low: low, Close: close, Volume: 100}
}

func TestEvaluate_InsufficientData(t *testing.T) {
	s := New(DefaultConfig(), nil)
	sig := s.Evaluate(core.Bars{mkBar(time.Now(), 100, 101, 99, 100)}, 100, "TXF")
	assert.Equal(t, core.Hold, sig.Type)
}

func TestEvaluate_OutsideDaySession(t *testing.T) {
	s := New(DefaultConfig(), nil)
	t0 := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC) // before 08:45 OR start
	bars := core.Bars{mkBar(t0, 100, 101, 99, 100), mkBar(t0.Add(time.Minute), 100, 101, 99, 100)}
	sig := s.Evaluate(bars, 100, "TXF")
	assert.Equal(t, core.Hold, sig.Type)
}

func TestEvaluate_CalculatingOpeningRangeHoldsUntilORBarsSeen(t *testing.T) {
	s := New(DefaultConfig(), nil)
	t0 := time.Date(2026, 7, 29, 8, 45, 0, 0, time.UTC)
	bars := core.Bars{
		mkBar(t0, 100, 105, 98, 102),
		mkBar(t0.Add(time.Minute), 102, 104, 100, 101),
	}
	sig := s.Evaluate(bars, 101, "TXF")
	assert.Equal(t, core.Hold, sig.Type)
	assert.False(t, s.orCalculated, "opening range needs ORBars (3) bars before it locks in")
}

// A new calendar day resets the opening-range and per-direction state
// even mid-slice.
func TestEvaluate_NewDayResetsState(t *testing.T) {
	s := New(DefaultConfig(), nil)
	s.hasDate = true
	s.currentDate = time.Date(2026, 7, 28, 8, 45, 0, 0, time.UTC)
	s.orCalculated = true
	s.orHigh, s.orLow, s.orRange = 110, 90, 20
	s.longState = WaitingPullback

	t1 := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC) // new day, pre-session
	bars := core.Bars{mkBar(t1, 100, 101, 99, 100), mkBar(t1.Add(time.Minute), 100, 101, 99, 100)}
	s.Evaluate(bars, 100, "TXF")

	assert.False(t, s.orCalculated)
	assert.Equal(t, Idle, s.longState)
	assert.True(t, sameDate(s.currentDate, t1))
}
