package chess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeControl(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		initial int64
		inc     int64
		wantErr bool
	}{
		{name: "bullet", input: "1+0", initial: 60_000},
		{name: "blitz with increment", input: "3+2", initial: 180_000, inc: 2_000},
		{name: "fractional minutes", input: "0.5+0", initial: 30_000},
		{name: "missing plus", input: "5", wantErr: true},
		{name: "zero base", input: "0+1", wantErr: true},
		{name: "negative increment", input: "1+-1", wantErr: true},
		{name: "garbage", input: "x+y", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := ParseTimeControl(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTimeControl)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, tc.Name)
			assert.Equal(t, tt.initial, tc.InitialMs)
			assert.Equal(t, tt.inc, tc.IncrementMs)
		})
	}
}

func TestClockDebit(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewClock(TimeControl{InitialMs: 60_000, IncrementMs: 2_000})

	assert.Zero(t, c.Debit(White, start), "stopped clock charges nothing")

	c.Start(start)
	require.True(t, c.Running())

	elapsed := c.Debit(Black, start.Add(1500*time.Millisecond))
	assert.Equal(t, int64(1500), elapsed)
	assert.Equal(t, int64(60_000-1500+2000), c.BlackMs)
	assert.Equal(t, int64(60_000), c.WhiteMs)
	assert.Equal(t, start.Add(1500*time.Millisecond), c.Anchor)

	// overdrawn time floors at zero before the increment
	c.Debit(White, start.Add(90*time.Second))
	assert.Equal(t, int64(2000), c.WhiteMs)
}

func TestClockSnapshotAndExpiry(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewClock(TimeControl{InitialMs: 10_000})
	c.Start(start)

	w, b := c.Snapshot(White, start.Add(4*time.Second))
	assert.Equal(t, int64(6_000), w)
	assert.Equal(t, int64(10_000), b)

	w, _ = c.Snapshot(White, start.Add(20*time.Second))
	assert.Zero(t, w)

	assert.Equal(t, start.Add(10*time.Second), c.ExpiresAt(White))
	assert.Equal(t, int64(-1000), c.RemainingAt(White, start.Add(11*time.Second)))

	c.Stop()
	assert.False(t, c.Running())
	assert.Equal(t, int64(10_000), c.RemainingAt(White, start.Add(time.Hour)))
}

func TestFormatClockTime(t *testing.T) {
	assert.Equal(t, "1:30", FormatClockTime(90_000))
	assert.Equal(t, "9.5", FormatClockTime(9_500))
	assert.Equal(t, "0.0", FormatClockTime(-5))
}

func TestColor(t *testing.T) {
	assert.Equal(t, Black, White.Opp())
	assert.Equal(t, White, Black.Opp())
	assert.Equal(t, "white", White.Name())
	assert.Equal(t, "Black", Black.Title())
	assert.Equal(t, White, ToMove(0))
	assert.Equal(t, Black, ToMove(3))
}

func TestClockCharge(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewClock(TimeControl{InitialMs: 5_000, IncrementMs: 1_000})
	c.Start(start)

	assert.Equal(t, int64(2_000), c.Charge(White, start.Add(2*time.Second)))
	assert.Equal(t, int64(3_000), c.WhiteMs, "no increment on a charge")

	c.Charge(White, start.Add(10*time.Second))
	assert.Zero(t, c.WhiteMs)
}
