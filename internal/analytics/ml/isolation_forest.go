package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// Defaults follow the usual isolation forest settings.
const (
	DefaultNumTrees      = 100
	DefaultSampleSize    = 256
	DefaultContamination = 0.01
	DefaultSeed          = 42
)

// eulerGamma is the Euler-Mascheroni constant used by c(n).
const eulerGamma = 0.5772156649

// TrainingDataError reports a feature matrix that cannot be trained on.
type TrainingDataError struct {
	Reason string
}

func (e *TrainingDataError) Error() string {
	return "training data invalid: " + e.Reason
}

// IsolationTree represents a single tree in the Isolation Forest
type IsolationTree struct {
	SplitFeature int            `json:"feature,omitempty"`
	SplitValue   float64        `json:"value,omitempty"`
	Left         *IsolationTree `json:"left,omitempty"`
	Right        *IsolationTree `json:"right,omitempty"`
	Size         int            `json:"size"`
	IsLeaf       bool           `json:"leaf,omitempty"`
}

// Options configures forest construction.
type Options struct {
	NumTrees      int
	SampleSize    int
	Contamination float64
	Seed          int64
}

// DefaultOptions returns the standard forest shape.
func DefaultOptions() Options {
	return Options{
		NumTrees:      DefaultNumTrees,
		SampleSize:    DefaultSampleSize,
		Contamination: DefaultContamination,
		Seed:          DefaultSeed,
	}
}

// IsolationForest implements the Isolation Forest algorithm for anomaly detection.
// A forest is trained once per run and never updated incrementally.
type IsolationForest struct {
	trees      []*IsolationTree
	opts       Options
	sampleSize int // effective ψ = min(SampleSize, rows)
	maxDepth   int
	columns    []string
	offset     float64
	rows       int
	trainedAt  time.Time
	rng        *rand.Rand
}

// Verdict is the model's decision for one row.
type Verdict struct {
	Outlier    bool
	Score      float64 // 2^(-E[h]/c(ψ)), higher = more anomalous
	PathLength float64 // E[h] across trees
	Decision   float64 // -Score - Offset; negative means outlier
}

// NewIsolationForest creates a new Isolation Forest with the given options.
// Zero-valued options fall back to the defaults.
func NewIsolationForest(opts Options) *IsolationForest {
	def := DefaultOptions()
	if opts.NumTrees <= 0 {
		opts.NumTrees = def.NumTrees
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = def.SampleSize
	}
	if opts.Contamination <= 0 {
		opts.Contamination = def.Contamination
	}
	return &IsolationForest{opts: opts}
}

// Fit trains the forest on rows and fixes the outlier threshold from the
// contamination fraction. Any previous training is discarded.
func (f *IsolationForest) Fit(columns []string, rows [][]float64) error {
	if err := validateMatrix(columns, rows); err != nil {
		return err
	}

	n := len(rows)
	f.columns = append([]string(nil), columns...)
	f.rows = n
	f.rng = rand.New(rand.NewSource(f.opts.Seed))
	f.sampleSize = f.opts.SampleSize
	if f.sampleSize > n {
		f.sampleSize = n
	}
	f.maxDepth = heightLimit(f.sampleSize)
	f.trees = make([]*IsolationTree, 0, f.opts.NumTrees)

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	for i := 0; i < f.opts.NumTrees; i++ {
		sample := f.sampleData(indices)
		f.trees = append(f.trees, f.buildTree(rows, sample, 0))
	}

	// Offset is the contamination percentile of the negated training scores.
	neg := make([]float64, n)
	for i, row := range rows {
		neg[i] = -f.score(row)
	}
	f.offset = percentile(neg, f.opts.Contamination)
	f.trainedAt = time.Now().UTC()

	return nil
}

// Predict scores every row. Row width must match the training columns.
func (f *IsolationForest) Predict(rows [][]float64) ([]Verdict, error) {
	if len(f.trees) == 0 {
		return nil, fmt.Errorf("model not trained")
	}
	verdicts := make([]Verdict, len(rows))
	for i, row := range rows {
		if len(row) != len(f.columns) {
			return nil, &TrainingDataError{Reason: fmt.Sprintf("row %d has %d values, model expects %d", i+1, len(row), len(f.columns))}
		}
		avg := f.avgPathLength(row)
		score := f.scoreFromPath(avg)
		decision := -score - f.offset
		verdicts[i] = Verdict{
			Outlier:    decision < 0,
			Score:      score,
			PathLength: avg,
			Decision:   decision,
		}
	}
	return verdicts, nil
}

// Offset returns the fitted decision threshold on the negated score.
func (f *IsolationForest) Offset() float64 { return f.offset }

// Columns returns the feature columns the model was trained on.
func (f *IsolationForest) Columns() []string { return append([]string(nil), f.columns...) }

// NumTrees returns the number of trained trees.
func (f *IsolationForest) NumTrees() int { return len(f.trees) }

func (f *IsolationForest) score(row []float64) float64 {
	return f.scoreFromPath(f.avgPathLength(row))
}

// scoreFromPath maps E[h] to 2^(-E[h]/c(ψ)). A single-row sample has c(ψ)=0
// and nothing to compare against, so it scores neutral.
func (f *IsolationForest) scoreFromPath(avg float64) float64 {
	c := averagePathLength(f.sampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -avg/c)
}

func (f *IsolationForest) avgPathLength(row []float64) float64 {
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	return total / float64(len(f.trees))
}

// sampleData draws ψ row indices without replacement (partial Fisher-Yates).
func (f *IsolationForest) sampleData(indices []int) []int {
	shuffled := make([]int, len(indices))
	copy(shuffled, indices)

	for i := 0; i < f.sampleSize; i++ {
		j := i + f.rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:f.sampleSize]
}

// buildTree recursively builds an isolation tree over the sampled rows.
func (f *IsolationForest) buildTree(rows [][]float64, sample []int, depth int) *IsolationTree {
	if len(sample) <= 1 || depth >= f.maxDepth {
		return &IsolationTree{Size: len(sample), IsLeaf: true}
	}

	// Only features that still vary in this node can split it.
	candidates := make([]int, 0, len(f.columns))
	for feature := range f.columns {
		minVal, maxVal := featureRange(rows, sample, feature)
		if maxVal > minVal {
			candidates = append(candidates, feature)
		}
	}
	if len(candidates) == 0 {
		return &IsolationTree{Size: len(sample), IsLeaf: true}
	}

	splitFeature := candidates[f.rng.Intn(len(candidates))]
	minVal, maxVal := featureRange(rows, sample, splitFeature)
	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)
	for splitValue <= minVal {
		splitValue = minVal + f.rng.Float64()*(maxVal-minVal)
	}

	left, right := splitData(rows, sample, splitFeature, splitValue)

	return &IsolationTree{
		SplitFeature: splitFeature,
		SplitValue:   splitValue,
		Left:         f.buildTree(rows, left, depth+1),
		Right:        f.buildTree(rows, right, depth+1),
		Size:         len(sample),
	}
}

// pathLength calculates the path length for a row in a tree
func pathLength(tree *IsolationTree, row []float64, currentDepth int) float64 {
	if tree.IsLeaf {
		// Add average path length for remaining points in leaf
		return float64(currentDepth) + averagePathLength(tree.Size)
	}

	if row[tree.SplitFeature] < tree.SplitValue {
		return pathLength(tree.Left, row, currentDepth+1)
	}
	return pathLength(tree.Right, row, currentDepth+1)
}

// averagePathLength is c(n), the average path length of an unsuccessful
// search in a binary search tree of n points.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	// c(n) = 2H(n-1) - (2(n-1)/n), H(i) ≈ ln(i) + γ
	return 2*(math.Log(float64(n-1))+eulerGamma) - (2 * float64(n-1) / float64(n))
}

// heightLimit is ceil(log2 ψ), with a floor of 1.
func heightLimit(psi int) int {
	if psi <= 2 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(psi))))
}

func featureRange(rows [][]float64, sample []int, feature int) (float64, float64) {
	minVal := rows[sample[0]][feature]
	maxVal := minVal
	for _, idx := range sample[1:] {
		val := rows[idx][feature]
		if val < minVal {
			minVal = val
		}
		if val > maxVal {
			maxVal = val
		}
	}
	return minVal, maxVal
}

func splitData(rows [][]float64, sample []int, feature int, splitValue float64) ([]int, []int) {
	left := make([]int, 0, len(sample))
	right := make([]int, 0, len(sample))
	for _, idx := range sample {
		if rows[idx][feature] < splitValue {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}

// percentile returns the q-quantile (0..1) of values using linear
// interpolation between closest ranks.
func percentile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func validateMatrix(columns []string, rows [][]float64) error {
	if len(columns) == 0 {
		return &TrainingDataError{Reason: "no feature columns"}
	}
	if len(rows) == 0 {
		return &TrainingDataError{Reason: "no rows"}
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return &TrainingDataError{Reason: fmt.Sprintf("row %d has %d values, expected %d", i+1, len(row), len(columns))}
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &TrainingDataError{Reason: fmt.Sprintf("row %d column %s is not finite", i+1, columns[j])}
			}
		}
	}
	return nil
}
