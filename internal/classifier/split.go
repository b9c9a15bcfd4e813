package classifier

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// StratifiedSplit partitions sample indices into train and test sets that
// keep each label's share. Every label needs at least two samples so it can
// appear on both sides; otherwise a *core.SingleClassLabelError is returned.
func StratifiedSplit(y []int, testSize float64, seed uint64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be between 0 and 1, got %g", testSize)
	}

	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	counts := make(map[int]int, len(byClass))
	for c, idx := range byClass {
		counts[c] = len(idx)
	}
	if len(byClass) < 2 {
		return nil, nil, &core.SingleClassLabelError{Counts: counts}
	}
	for _, n := range counts {
		if n < 2 {
			return nil, nil, &core.SingleClassLabelError{Counts: counts}
		}
	}

	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(testSize * float64(len(idx))))
		nTest = min(max(nTest, 1), len(idx)-1)
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// Rows selects rows of X and y by index.
func Rows(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for k, i := range idx {
		xs[k] = X[i]
		ys[k] = y[i]
	}
	return xs, ys
}
