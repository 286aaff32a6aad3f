package stats

import (
	"cmp"
	"math"
	"slices"

	"issuemetrics/internal/metrics"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// CorrelationMethod names a correlation coefficient.
type CorrelationMethod string

const (
	Pearson  CorrelationMethod = "pearson"
	Spearman CorrelationMethod = "spearman"
)

// CorrelationMethods lists the supported methods in output order.
func CorrelationMethods() []CorrelationMethod {
	return []CorrelationMethod{Pearson, Spearman}
}

// CorrelationOptions configures Correlate.
type CorrelationOptions struct {
	// OmitMissing restricts the analysis to records where all six metrics succeeded.
	OmitMissing bool `json:"omitMissing" yaml:"omit_missing"`
}

// DefaultCorrelationOptions enables complete-case extraction.
func DefaultCorrelationOptions() CorrelationOptions {
	return CorrelationOptions{OmitMissing: true}
}

// CorrelationCell is one pairwise coefficient. Coefficient and Covariance are nil when undefined.
type CorrelationCell struct {
	Metrics     [2]metrics.Key    `json:"metrics"`
	Method      CorrelationMethod `json:"method"`
	Coefficient *float64          `json:"coefficient"`
	SampleSize  int               `json:"sampleSize"`
	Covariance  *float64          `json:"covariance"`
}

// CorrelationMatrix is indexed as Matrix[a][b].
type CorrelationMatrix map[metrics.Key]map[metrics.Key]CorrelationCell

// CorrelationAnalysis holds both matrices plus a flat list of off-diagonal cells.
type CorrelationAnalysis struct {
	RecordCount int                                     `json:"recordCount"`
	SampleSize  int                                     `json:"sampleSize"`
	OmitMissing bool                                    `json:"omitMissing"`
	Matrices    map[CorrelationMethod]CorrelationMatrix `json:"matrices"`
	Summary     []CorrelationCell                       `json:"summary"`
}

// Correlate builds Pearson and Spearman matrices across all metric keys.
//
// With OmitMissing a record contributes to every vector only if all six metrics
// succeeded for it. This is stricter than pairwise-complete extraction and keeps all
// cells computed over the same rows. Without OmitMissing, failed metrics become NaN
// placeholders and are dropped pair by pair. Correlate never fails.
func Correlate(records []metrics.Record, opts CorrelationOptions) CorrelationAnalysis {
	keys := metrics.AllKeys()
	vectors, rows := extractVectors(records, keys, opts.OmitMissing)

	analysis := CorrelationAnalysis{
		RecordCount: len(records),
		SampleSize:  rows,
		OmitMissing: opts.OmitMissing,
		Matrices:    make(map[CorrelationMethod]CorrelationMatrix, 2),
	}

	for _, method := range CorrelationMethods() {
		matrix := make(CorrelationMatrix, len(keys))
		for i, a := range keys {
			matrix[a] = make(map[metrics.Key]CorrelationCell, len(keys))
			for j, b := range keys {
				var cell CorrelationCell
				if i == j {
					cell = selfCell(a, method, vectors[a])
				} else {
					cell = pairCell(a, b, method, vectors[a], vectors[b])
				}
				matrix[a][b] = cell
				if j > i {
					analysis.Summary = append(analysis.Summary, cell)
				}
			}
		}
		analysis.Matrices[method] = matrix
	}

	log.Debug().
		Int("records", len(records)).
		Int("rows", rows).
		Bool("omitMissing", opts.OmitMissing).
		Msg("Correlation matrices computed")

	return analysis
}

// TopFactors returns up to n summary cells involving target, ordered by descending
// absolute coefficient. Cells without a coefficient sort last.
func TopFactors(cells []CorrelationCell, target metrics.Key, method CorrelationMethod, n int) []CorrelationCell {
	var out []CorrelationCell
	for _, c := range cells {
		if c.Method == method && (c.Metrics[0] == target || c.Metrics[1] == target) {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b CorrelationCell) int {
		switch {
		case a.Coefficient == nil && b.Coefficient == nil:
			return 0
		case a.Coefficient == nil:
			return 1
		case b.Coefficient == nil:
			return -1
		}
		return cmp.Compare(math.Abs(*b.Coefficient), math.Abs(*a.Coefficient))
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func extractVectors(records []metrics.Record, keys []metrics.Key, omitMissing bool) (map[metrics.Key][]float64, int) {
	vectors := make(map[metrics.Key][]float64, len(keys))
	rows := 0
	for _, r := range records {
		if omitMissing && !r.Complete() {
			continue
		}
		rows++
		for _, k := range keys {
			v, ok := r.Value(k)
			if !ok {
				v = math.NaN()
			}
			vectors[k] = append(vectors[k], v)
		}
	}
	return vectors, rows
}

func selfCell(k metrics.Key, method CorrelationMethod, v []float64) CorrelationCell {
	x, _ := validPairs(v, v)
	cell := CorrelationCell{
		Metrics:    [2]metrics.Key{k, k},
		Method:     method,
		SampleSize: len(x),
	}
	if len(x) < 2 {
		return cell
	}
	variance := stat.Variance(x, nil)
	cell.Covariance = ptr(variance)
	if variance > 0 {
		cell.Coefficient = ptr(1.0)
	}
	return cell
}

func pairCell(a, b metrics.Key, method CorrelationMethod, va, vb []float64) CorrelationCell {
	x, y := validPairs(va, vb)
	cell := CorrelationCell{
		Metrics:    [2]metrics.Key{a, b},
		Method:     method,
		SampleSize: len(x),
	}
	if len(x) < 2 {
		return cell
	}

	cell.Covariance = ptr(stat.Covariance(x, y, nil))

	if method == Spearman {
		x, y = rank(x), rank(y)
	}
	if r, ok := pearson(x, y); ok {
		cell.Coefficient = ptr(r)
	}
	return cell
}

// validPairs zips two vectors index-wise, discarding pairs with a NaN placeholder.
func validPairs(a, b []float64) ([]float64, []float64) {
	n := min(len(a), len(b))
	x := make([]float64, 0, n)
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		x = append(x, a[i])
		y = append(y, b[i])
	}
	return x, y
}

// pearson is the product-moment coefficient. Undefined when either side has zero variance.
func pearson(x, y []float64) (float64, bool) {
	if len(x) < 2 || stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0, false
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, r)), true
}

// rank converts values to 1-based ranks, averaging ranks across ties.
func rank(data []float64) []float64 {
	n := len(data)
	type pair struct {
		value float64
		index int
	}

	pairs := make([]pair, n)
	for i, v := range data {
		pairs[i] = pair{value: v, index: i}
	}
	slices.SortStableFunc(pairs, func(a, b pair) int {
		return cmp.Compare(a.value, b.value)
	})

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		avg := float64(i+1) + float64(j-i-1)/2.0
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = avg
		}
		i = j
	}
	return ranks
}
