package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	cases := []struct {
		page, size int
		from, lim  int
	}{
		{0, 0, 0, 20},
		{1, 20, 0, 20},
		{2, 20, 20, 20},
		{3, 10, 20, 10},
		{-5, -1, 0, 20},
		{1, 1000, 0, 20},
	}
	for _, tc := range cases {
		from, limit := Calculate(tc.page, tc.size)
		require.Equal(t, tc.from, from, "page=%d size=%d", tc.page, tc.size)
		require.Equal(t, tc.lim, limit, "page=%d size=%d", tc.page, tc.size)
	}
}
