package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDifference(t *testing.T) {
	left := NewIdentitySet("a", "b", "c")
	right := NewIdentitySet("b", "c", "d", "e")

	diff := ComputeDifference(left, right)

	assert.Equal(t, []string{"a"}, diff.LeftOnly.Sorted())
	assert.Equal(t, []string{"d", "e"}, diff.RightOnly.Sorted())
	assert.Equal(t, []string{"b", "c"}, diff.Both.Sorted())
}

func TestComputeDifference_Empty(t *testing.T) {
	diff := ComputeDifference(NewIdentitySet(), NewIdentitySet("x"))
	assert.Empty(t, diff.LeftOnly)
	assert.Empty(t, diff.Both)
	assert.Equal(t, []string{"x"}, diff.RightOnly.Sorted())

	diff = ComputeDifference(nil, nil)
	assert.Empty(t, diff.LeftOnly)
	assert.Empty(t, diff.RightOnly)
	assert.Empty(t, diff.Both)
}

func TestComputeDifference_Partition(t *testing.T) {
	for n := 0; n < 20; n++ {
		left := make(IdentitySet)
		right := make(IdentitySet)
		for i := 0; i < 50; i++ {
			id := fmt.Sprintf("id-%d", i)
			if (i*7+n)%3 != 0 {
				left.Add(id)
			}
			if (i*5+n)%4 != 0 {
				right.Add(id)
			}
		}

		diff := ComputeDifference(left, right)

		// pairwise disjoint
		for id := range diff.LeftOnly {
			assert.False(t, diff.RightOnly.Has(id))
			assert.False(t, diff.Both.Has(id))
		}
		for id := range diff.RightOnly {
			assert.False(t, diff.Both.Has(id))
		}

		// union covers both sides exactly
		assert.Equal(t, len(left), len(diff.LeftOnly)+len(diff.Both))
		assert.Equal(t, len(right), len(diff.RightOnly)+len(diff.Both))
		for id := range left {
			assert.True(t, diff.LeftOnly.Has(id) || diff.Both.Has(id))
		}
		for id := range right {
			assert.True(t, diff.RightOnly.Has(id) || diff.Both.Has(id))
		}
	}
}

func TestNormalizer(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		in     string
		want   string
	}{
		{"Plain", "", "abc", "abc"},
		{"TrimAndLower", "", "  AbC \n", "abc"},
		{"StripPrefix", "t3_", "t3_abc", "abc"},
		{"StripPrefixCaseInsensitive", "t3_", " T3_AbC ", "abc"},
		{"PrefixAbsent", "t3_", "abc", "abc"},
		{"WhitespaceAfterPrefix", "t3_", "t3_ abc", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalizer{Prefix: tt.prefix}
			got := n.Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, n.Normalize(got), "normalization must be idempotent")
		})
	}
}
