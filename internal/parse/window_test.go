package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWindow(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  Window
		expectErr bool
	}{
		{
			name:     "Standard Case",
			raw:      "09:00-13:00",
			expected: Window{Start: 540, End: 780},
		},
		{
			name:     "Spaces and short hour",
			raw:      " 9:30 - 12:15 ",
			expected: Window{Start: 570, End: 735},
		},
		{
			name:     "Tilde separator",
			raw:      "14:00~18:00",
			expected: Window{Start: 840, End: 1080},
		},
		{
			name:      "Reversed",
			raw:       "13:00-09:00",
			expectErr: true,
		},
		{
			name:      "Empty range",
			raw:       "09:00-09:00",
			expectErr: true,
		},
		{
			name:      "Bad minute",
			raw:       "09:75-10:00",
			expectErr: true,
		},
		{
			name:      "Garbage",
			raw:       "mornings",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := ParseWindow(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, w)
		})
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{Start: 540, End: 780}
	assert.True(t, w.Contains(540))
	assert.True(t, w.Contains(779))
	assert.False(t, w.Contains(780))
	assert.False(t, w.Contains(539))
	assert.Equal(t, "09:00-13:00", w.String())
}

func TestParseWindows(t *testing.T) {
	ws, err := ParseWindows([]string{"09:00-12:00", "", "14:00-17:00"})
	assert.NoError(t, err)
	assert.Len(t, ws, 2)
	assert.True(t, AnyContains(ws, 15*60))
	assert.False(t, AnyContains(ws, 13*60))

	_, err = ParseWindows([]string{"09:00-12:00", "nope"})
	assert.Error(t, err)
}
