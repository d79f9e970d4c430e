// Package chess defines the game entities: colors, time controls, clocks,
// starting positions and the rules adapter.
package chess

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeControl is returned when a time control string cannot be parsed.
var ErrInvalidTimeControl = errors.New("invalid time control")

// TimeControl defines the time settings for a game
type TimeControl struct {
	Name        string // Canonical "minutes+increment" form, e.g. "3+2"
	InitialMs   int64  // Initial time per side in milliseconds
	IncrementMs int64  // Increment per move in milliseconds
}

// ParseTimeControl parses "minutes+seconds" notation ("1+0", "3+2", "0.5+0").
func ParseTimeControl(s string) (TimeControl, error) {
	s = strings.TrimSpace(s)
	base, inc, ok := strings.Cut(s, "+")
	if !ok {
		return TimeControl{}, fmt.Errorf("%w: %q", ErrInvalidTimeControl, s)
	}

	minutes, err := strconv.ParseFloat(base, 64)
	if err != nil || minutes <= 0 {
		return TimeControl{}, fmt.Errorf("%w: %q", ErrInvalidTimeControl, s)
	}
	seconds, err := strconv.Atoi(inc)
	if err != nil || seconds < 0 {
		return TimeControl{}, fmt.Errorf("%w: %q", ErrInvalidTimeControl, s)
	}

	return TimeControl{
		Name:        s,
		InitialMs:   int64(minutes * float64(time.Minute/time.Millisecond)),
		IncrementMs: int64(seconds) * 1000,
	}, nil
}

// Clock holds the remaining time of both players. It is plain data: the
// owner serializes access, so there is no locking here.
type Clock struct {
	WhiteMs     int64
	BlackMs     int64
	IncrementMs int64

	// Anchor is the instant the side to move started thinking. Zero while
	// the clock is not running.
	Anchor time.Time
}

// NewClock creates a new chess clock with the given time controls
func NewClock(tc TimeControl) *Clock {
	return &Clock{
		WhiteMs:     tc.InitialMs,
		BlackMs:     tc.InitialMs,
		IncrementMs: tc.IncrementMs,
	}
}

// Running reports whether the clock has been started and not stopped.
func (c *Clock) Running() bool {
	return !c.Anchor.IsZero()
}

// Start anchors the clock at now.
func (c *Clock) Start(now time.Time) {
	c.Anchor = now
}

// Stop halts the clock without debiting anyone.
func (c *Clock) Stop() {
	c.Anchor = time.Time{}
}

// Remaining returns the stored remaining time for color.
func (c *Clock) Remaining(color Color) int64 {
	if color == White {
		return c.WhiteMs
	}
	return c.BlackMs
}

// Set overwrites the remaining time for color.
func (c *Clock) Set(color Color, ms int64) {
	if color == White {
		c.WhiteMs = ms
	} else {
		c.BlackMs = ms
	}
}

// RemainingAt returns what color would have left at now if color is the
// side currently thinking. It may be negative.
func (c *Clock) RemainingAt(color Color, now time.Time) int64 {
	rem := c.Remaining(color)
	if c.Running() {
		rem -= now.Sub(c.Anchor).Milliseconds()
	}
	return rem
}

// Charge deducts the time since the anchor from color, floored at zero, and
// re-anchors at now. It returns the elapsed milliseconds.
func (c *Clock) Charge(color Color, now time.Time) int64 {
	if !c.Running() {
		return 0
	}

	elapsed := now.Sub(c.Anchor).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	rem := c.Remaining(color) - elapsed
	if rem < 0 {
		rem = 0
	}
	c.Set(color, rem)
	c.Anchor = now

	return elapsed
}

// Debit charges the mover like Charge and then adds the increment for the
// completed move.
func (c *Clock) Debit(mover Color, now time.Time) int64 {
	if !c.Running() {
		return 0
	}

	elapsed := c.Charge(mover, now)
	c.Set(mover, c.Remaining(mover)+c.IncrementMs)

	return elapsed
}

// ExpiresAt returns the instant at which toMove's time runs out. Only
// meaningful while running.
func (c *Clock) ExpiresAt(toMove Color) time.Time {
	return c.Anchor.Add(time.Duration(c.Remaining(toMove)) * time.Millisecond)
}

// Snapshot returns both remaining times as seen at now, floored at zero.
func (c *Clock) Snapshot(toMove Color, now time.Time) (white, black int64) {
	white, black = c.WhiteMs, c.BlackMs
	if c.Running() {
		elapsed := now.Sub(c.Anchor).Milliseconds()
		if toMove == White {
			white -= elapsed
		} else {
			black -= elapsed
		}
	}

	// Ensure times don't go negative
	if white < 0 {
		white = 0
	}
	if black < 0 {
		black = 0
	}
	return white, black
}

// FormatClockTime formats a duration in milliseconds to a user-friendly string (e.g., "1:30")
func FormatClockTime(timeMs int64) string {
	if timeMs < 0 {
		timeMs = 0
	}

	totalSeconds := timeMs / 1000
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60

	// For times less than 10 seconds, show decimal
	if timeMs < 10000 {
		tenths := (timeMs % 1000) / 100
		return fmt.Sprintf("%d.%d", totalSeconds, tenths)
	}

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
