package effects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleBands(t *testing.T) {
	tests := []struct {
		name        string
		src         []int
		targetCount int
		min, max    int
		expected    []int
	}{
		{
			name:        "same length is identity",
			src:         []int{-300, 0, 150, 600, -100},
			targetCount: 5,
			min:         -1500, max: 1500,
			expected: []int{-300, 0, 150, 600, -100},
		},
		{
			name:        "single band broadcasts",
			src:         []int{250},
			targetCount: 5,
			min:         -1500, max: 1500,
			expected: []int{250, 250, 250, 250, 250},
		},
		{
			name:        "empty source yields zeros",
			src:         nil,
			targetCount: 4,
			min:         -1500, max: 1500,
			expected: []int{0, 0, 0, 0},
		},
		{
			name:        "upsample interpolates linearly",
			src:         []int{0, 1000},
			targetCount: 5,
			min:         -1500, max: 1500,
			expected: []int{0, 250, 500, 750, 1000},
		},
		{
			name:        "downsample keeps endpoints",
			src:         []int{0, 300, 600, 900},
			targetCount: 2,
			min:         -1500, max: 1500,
			expected: []int{0, 900},
		},
		{
			name:        "levels clamped to capability range",
			src:         []int{-4000, 4000},
			targetCount: 2,
			min:         -1500, max: 1500,
			expected: []int{-1500, 1500},
		},
		{
			name:        "zero target",
			src:         []int{100},
			targetCount: 0,
			min:         -1500, max: 1500,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResampleBands(tt.src, tt.targetCount, tt.min, tt.max)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResampleBands_OutputAlwaysInRange(t *testing.T) {
	src := []int{-9000, -100, 0, 2500, 7000, 120, -3600}
	for _, count := range []int{1, 2, 3, 5, 8, 13, 31} {
		got := ResampleBands(src, count, -1200, 1200)
		require.Len(t, got, count)
		for i, level := range got {
			assert.GreaterOrEqual(t, level, -1200, "band %d", i)
			assert.LessOrEqual(t, level, 1200, "band %d", i)
		}
	}
}
