// Package sampling draws stratified train/test splits over answer codes.
package sampling

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// NewRand returns a generator seeded with seed, or with the clock when seed is nil.
func NewRand(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// StratifiedSplit puts about fraction of each category's examples in train
// and the rest in test. A category with two or more examples always has at
// least one example on each side; a category with a single example is placed
// on both sides. Returned indices are sorted.
func StratifiedSplit(codes []int, fraction float64, rng *rand.Rand) (train, test []int) {
	byCode := make(map[int][]int)
	var order []int
	for i, c := range codes {
		if _, ok := byCode[c]; !ok {
			order = append(order, c)
		}
		byCode[c] = append(byCode[c], i)
	}
	sort.Ints(order)

	for _, c := range order {
		members := byCode[c]
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		n := len(members)
		if n == 1 {
			train = append(train, members[0])
			test = append(test, members[0])
			continue
		}
		k := int(math.Round(float64(n) * fraction))
		k = min(max(k, 1), n-1)
		train = append(train, members[:k]...)
		test = append(test, members[k:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}
