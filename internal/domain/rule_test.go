package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortRules(t *testing.T) {
	rules := []Rule{
		{ID: 4, Priority: 2},
		{ID: 3, Priority: 1},
		{ID: 1, Priority: 2},
		{ID: 2, Priority: 0},
	}
	SortRules(rules)

	var ids []int64
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	require.Equal(t, []int64{2, 3, 1, 4}, ids)
}
