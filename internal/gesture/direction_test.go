package gesture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwipeDirection_EightWay(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy float64
		want   Direction
	}{
		{"right", 120, 5, DirRight},
		{"left", -80, 3, DirLeft},
		{"up", 2, -60, DirUp},
		{"down", -4, 90, DirDown},
		{"up right", 50, -50, DirUpRight},
		{"up left", -40, -45, DirUpLeft},
		{"down right", 30, 28, DirDownRight},
		{"down left", -33, 30, DirDownLeft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SwipeDirection(tt.dx, tt.dy, 2, true))
		})
	}
}

func TestSwipeDirection_MagnitudeGate(t *testing.T) {
	gate := 10.0
	for _, v := range [][2]float64{{0, 0}, {9.9, 0}, {-3, 4}, {5, -8}, {7, 7}} {
		assert.Equal(t, DirNone, SwipeDirection(v[0], v[1], gate, true), "vector %v", v)
		assert.Equal(t, DirNone, SwipeDirection(v[0], v[1], gate, false), "vector %v", v)
	}
	assert.Equal(t, DirRight, SwipeDirection(10, 0, gate, true))
}

func TestSwipeDirection_TieBreak(t *testing.T) {
	t.Run("four-way diagonal ties resolve horizontally", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.Equal(t, DirRight, SwipeDirection(40, 40, 2, false))
			assert.Equal(t, DirRight, SwipeDirection(40, -40, 2, false))
			assert.Equal(t, DirLeft, SwipeDirection(-40, 40, 2, false))
			assert.Equal(t, DirLeft, SwipeDirection(-40, -40, 2, false))
		}
	})

	t.Run("eight-way 22.5 degree boundary resolves to the axis", func(t *testing.T) {
		slope := math.Sqrt2 - 1
		assert.Equal(t, DirRight, SwipeDirection(100, 100*slope, 2, true))
		assert.Equal(t, DirLeft, SwipeDirection(-100, -100*slope, 2, true))
	})

	t.Run("eight-way 67.5 degree boundary resolves to the diagonal", func(t *testing.T) {
		slope := math.Sqrt2 - 1
		assert.Equal(t, DirUpRight, SwipeDirection(100*slope, -100, 2, true))
		assert.Equal(t, DirDownLeft, SwipeDirection(-100*slope, 100, 2, true))
	})
}

func TestPinchAndRotateDirection(t *testing.T) {
	assert.Equal(t, DirOut, PinchDirection(0.3, 0.1))
	assert.Equal(t, DirIn, PinchDirection(-0.3, 0.1))
	assert.Equal(t, DirNone, PinchDirection(0.05, 0.1))

	assert.Equal(t, DirClockwise, RotateDirection(30, 10))
	assert.Equal(t, DirCounterClockwise, RotateDirection(-30, 10))
	assert.Equal(t, DirNone, RotateDirection(-9, 10))
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want Direction
	}{
		{"", DirAny},
		{"*", DirAny},
		{"any", DirAny},
		{"Right", DirRight},
		{"up-left", DirUpLeft},
		{"ne", DirUpRight},
		{"out", DirOut},
		{"ccw", DirCounterClockwise},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
	_, err = ParseDirection("none")
	assert.Error(t, err)
}

func TestDirectionValidFor(t *testing.T) {
	assert.True(t, DirRight.ValidFor(KindSwipe))
	assert.True(t, DirAny.ValidFor(KindHold))
	assert.False(t, DirIn.ValidFor(KindSwipe))
	assert.False(t, DirRight.ValidFor(KindPinch))
	assert.True(t, DirClockwise.ValidFor(KindRotate))
	assert.False(t, DirUp.ValidFor(KindHold))
}
