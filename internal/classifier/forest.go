package classifier

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ForestConfig configures a random forest of CART trees.
type ForestConfig struct {
	Trees           int    `json:"trees"`
	MaxDepth        int    `json:"max_depth"`   // 0 grows until leaves are pure
	MaxFeatures     int    `json:"max_features"` // 0 uses sqrt(features)
	MinSamplesSplit int    `json:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf"`
	Balanced        bool   `json:"balanced"`
	Seed            uint64 `json:"seed"`
}

// DefaultForestConfig returns 100 fully grown trees with balanced class
// weights and seed 42.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Balanced:        true,
		Seed:            42,
	}
}

// Forest is a bootstrap-aggregated ensemble of gini decision trees.
type Forest struct {
	cfg ForestConfig
}

var _ Classifier = (*Forest)(nil)

// NewForest creates a Forest, filling unset fields from DefaultForestConfig.
func NewForest(cfg ForestConfig) *Forest {
	def := DefaultForestConfig()
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = def.MinSamplesSplit
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = def.MinSamplesLeaf
	}
	return &Forest{cfg: cfg}
}

// Fit grows cfg.Trees trees, each on a bootstrap sample drawn from a
// per-tree seeded generator, so equal inputs give equal models.
func (f *Forest) Fit(X [][]float64, y []int) (Model, error) {
	width, err := checkMatrix(X, y)
	if err != nil {
		return nil, err
	}

	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return nil, errors.New("training labels contain a single class")
	}
	classIdx := make(map[int]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}
	yi := make([]int, len(y))
	counts := make([]int, len(classes))
	for i, label := range y {
		yi[i] = classIdx[label]
		counts[yi[i]]++
	}

	classWeight := make([]float64, len(classes))
	for c := range classWeight {
		classWeight[c] = 1
		if f.cfg.Balanced {
			classWeight[c] = float64(len(y)) / (float64(len(classes)) * float64(counts[c]))
		}
	}

	maxFeatures := f.cfg.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > width {
		maxFeatures = max(1, int(math.Sqrt(float64(width))))
	}

	model := &ForestModel{
		classes:     classes,
		nFeatures:   width,
		trees:       make([]tree, f.cfg.Trees),
		importances: make([]float64, width),
	}
	for t := 0; t < f.cfg.Trees; t++ {
		rng := rand.New(rand.NewPCG(f.cfg.Seed, uint64(t)+1))

		draws := make([]int, len(y))
		for range len(y) {
			draws[rng.IntN(len(y))]++
		}
		weights := make([]float64, len(y))
		var idx []int
		for i, n := range draws {
			if n > 0 {
				weights[i] = float64(n) * classWeight[yi[i]]
				idx = append(idx, i)
			}
		}

		b := &treeBuilder{
			X:           X,
			y:           yi,
			w:           weights,
			k:           len(classes),
			cfg:         f.cfg,
			maxFeatures: maxFeatures,
			rng:         rng,
			importances: make([]float64, width),
		}
		b.grow(idx, 0)
		model.trees[t] = tree{nodes: b.nodes}

		if sum := floats.Sum(b.importances); sum > 0 {
			floats.AddScaled(model.importances, 1/sum, b.importances)
		}
	}
	if sum := floats.Sum(model.importances); sum > 0 {
		floats.Scale(1/sum, model.importances)
	}
	return model, nil
}

// ForestModel is a trained Forest.
type ForestModel struct {
	classes     []int
	nFeatures   int
	trees       []tree
	importances []float64
}

var _ Model = (*ForestModel)(nil)

// Classes returns the sorted training labels.
func (m *ForestModel) Classes() []int {
	return append([]int(nil), m.classes...)
}

// FeatureImportances returns the mean decrease in impurity per feature.
func (m *ForestModel) FeatureImportances() []float64 {
	return append([]float64(nil), m.importances...)
}

// PredictProba averages the leaf class distributions of every tree.
func (m *ForestModel) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		p := make([]float64, len(m.classes))
		for _, t := range m.trees {
			for c, v := range t.leaf(row).dist {
				p[c] += v
			}
		}
		for c := range p {
			p[c] /= float64(len(m.trees))
		}
		out[i] = p
	}
	return out
}

type tree struct {
	nodes []node
}

type node struct {
	feature     int // -1 for leaves
	threshold   float64
	left, right int
	dist        []float64
}

func (t tree) leaf(row []float64) node {
	n := t.nodes[0]
	for n.feature >= 0 {
		if row[n.feature] <= n.threshold {
			n = t.nodes[n.left]
		} else {
			n = t.nodes[n.right]
		}
	}
	return n
}

type treeBuilder struct {
	X           [][]float64
	y           []int
	w           []float64
	k           int
	cfg         ForestConfig
	maxFeatures int
	rng         *rand.Rand
	nodes       []node
	importances []float64
}

type split struct {
	feature   int
	threshold float64
	score     float64 // weighted child impurity, lower is better
	wl, wr    float64
	impL      float64
	impR      float64
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	dist, total := b.distribution(idx)
	imp := gini(dist, total)

	id := len(b.nodes)
	b.nodes = append(b.nodes, node{feature: -1, dist: normalize(dist, total)})

	if imp <= 0 || len(idx) < b.cfg.MinSamplesSplit || (b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) {
		return id
	}
	best, ok := b.bestSplit(idx, dist, total, imp)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importances[best.feature] += total*imp - best.wl*best.impL - best.wr*best.impR

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].feature = best.feature
	b.nodes[id].threshold = best.threshold
	b.nodes[id].left = l
	b.nodes[id].right = r
	return id
}

func (b *treeBuilder) bestSplit(idx []int, dist []float64, total, imp float64) (split, bool) {
	width := len(b.X[0])
	features := b.rng.Perm(width)[:b.maxFeatures]

	best := split{score: total * imp}
	found := false
	sorted := make([]int, len(idx))
	leftDist := make([]float64, b.k)
	rightDist := make([]float64, b.k)

	for _, f := range features {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })

		clear(leftDist)
		copy(rightDist, dist)
		wl := 0.0
		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			leftDist[b.y[i]] += b.w[i]
			rightDist[b.y[i]] -= b.w[i]
			wl += b.w[i]

			v, next := b.X[i][f], b.X[sorted[pos+1]][f]
			if v == next {
				continue
			}
			nl := pos + 1
			if nl < b.cfg.MinSamplesLeaf || len(sorted)-nl < b.cfg.MinSamplesLeaf {
				continue
			}
			wr := total - wl
			impL, impR := gini(leftDist, wl), gini(rightDist, wr)
			score := wl*impL + wr*impR
			if score < best.score-1e-12 {
				threshold := v + (next-v)/2
				if threshold >= next {
					threshold = v
				}
				best = split{feature: f, threshold: threshold, score: score, wl: wl, wr: wr, impL: impL, impR: impR}
				found = true
			}
		}
	}
	return best, found
}

func (b *treeBuilder) distribution(idx []int) ([]float64, float64) {
	dist := make([]float64, b.k)
	total := 0.0
	for _, i := range idx {
		dist[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	return dist, total
}

func gini(dist []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	g := 1.0
	for _, v := range dist {
		p := v / total
		g -= p * p
	}
	return math.Max(g, 0)
}

func normalize(dist []float64, total float64) []float64 {
	out := make([]float64, len(dist))
	if total <= 0 {
		return out
	}
	for i, v := range dist {
		out[i] = v / total
	}
	return out
}

func uniqueSorted(y []int) []int {
	seen := make(map[int]struct{})
	for _, v := range y {
		seen[v] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
