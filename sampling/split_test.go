package sampling

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestStratifiedSplit_EveryCategoryOnBothSides(t *testing.T) {
	tests := []struct {
		name     string
		codes    []int
		fraction float64
	}{
		{name: "Balanced", codes: []int{0, 0, 0, 0, 1, 1, 1, 1}, fraction: 0.5},
		{name: "Tiny fraction", codes: []int{0, 0, 0, 1, 1, 1, 2, 2}, fraction: 0.01},
		{name: "Fraction close to one", codes: []int{0, 0, 1, 1, 1, 1, 1}, fraction: 0.99},
		{name: "Skewed", codes: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1}, fraction: 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			for seed := int64(0); seed < 20; seed++ {
				train, test := StratifiedSplit(tt.codes, tt.fraction, NewRand(&seed))
				for _, c := range lo.Uniq(tt.codes) {
					req.True(lo.SomeBy(train, func(i int) bool { return tt.codes[i] == c }))
					req.True(lo.SomeBy(test, func(i int) bool { return tt.codes[i] == c }))
				}
				req.Empty(lo.Intersect(train, test))
				req.Len(append(train, test...), len(tt.codes))
			}
		})
	}
}

func TestStratifiedSplit_SingletonOnBothSides(t *testing.T) {
	req := require.New(t)
	seed := int64(7)

	train, test := StratifiedSplit([]int{0, 0, 0, 1}, 0.5, NewRand(&seed))

	req.Contains(train, 3)
	req.Contains(test, 3)
}

func TestStratifiedSplit_Deterministic(t *testing.T) {
	req := require.New(t)
	codes := []int{0, 1, 0, 1, 0, 1, 2, 2, 2, 2}
	seed := int64(42)

	train1, test1 := StratifiedSplit(codes, 0.8, NewRand(&seed))
	train2, test2 := StratifiedSplit(codes, 0.8, NewRand(&seed))

	req.Equal(train1, train2)
	req.Equal(test1, test2)
	req.IsIncreasing(train1)
}
