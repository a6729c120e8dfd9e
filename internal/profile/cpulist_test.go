package profile_test

import (
	"testing"

	"codeberg.org/mutker/powergov/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPUList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []int
		wantErr  bool
	}{
		{name: "empty string", input: "", expected: []int{}},
		{name: "single CPU", input: "0", expected: []int{0}},
		{name: "simple range", input: "0-3", expected: []int{0, 1, 2, 3}},
		{name: "mixed", input: "0,2-4,7", expected: []int{0, 2, 3, 4, 7}},
		{name: "unsorted with duplicates", input: "7,2-3,3", expected: []int{2, 3, 7}},
		{name: "whitespace", input: " 1 , 4-5 ", expected: []int{1, 4, 5}},
		{name: "reversed range", input: "5-2", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "garbage", input: "a-b", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := profile.ParseCPUList(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestFormatCPUList(t *testing.T) {
	assert.Equal(t, "", profile.FormatCPUList(nil))
	assert.Equal(t, "0-3", profile.FormatCPUList([]int{3, 1, 2, 0}))
	assert.Equal(t, "0,2-4,7", profile.FormatCPUList([]int{0, 2, 3, 4, 7}))
	assert.Equal(t, "5", profile.FormatCPUList([]int{5, 5}))
}
