package stats

import (
	"fmt"
	"math"

	"issuemetrics/internal/metrics"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// InterceptName is the coefficient key of the intercept term.
const InterceptName = "intercept"

// RegressionConfig selects the target metric and its predictors.
type RegressionConfig struct {
	Target           metrics.Key   `json:"target"`
	Predictors       []metrics.Key `json:"predictors"`
	IncludeIntercept bool          `json:"includeIntercept"`
}

// NewRegressionConfig returns a config with an intercept term.
func NewRegressionConfig(target metrics.Key, predictors ...metrics.Key) RegressionConfig {
	return RegressionConfig{
		Target:           target,
		Predictors:       predictors,
		IncludeIntercept: true,
	}
}

// Validate checks the predictor set before any computation.
func (c RegressionConfig) Validate() error {
	if _, err := metrics.ParseKey(string(c.Target)); err != nil {
		return fmt.Errorf("%w: target: %v", ErrInvalidConfiguration, err)
	}
	if len(c.Predictors) == 0 {
		return fmt.Errorf("%w: at least one predictor is required", ErrInvalidConfiguration)
	}
	seen := make(map[metrics.Key]bool, len(c.Predictors))
	for _, p := range c.Predictors {
		if _, err := metrics.ParseKey(string(p)); err != nil {
			return fmt.Errorf("%w: predictor: %v", ErrInvalidConfiguration, err)
		}
		if p == c.Target {
			return fmt.Errorf("%w: target %s cannot also be a predictor", ErrInvalidConfiguration, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: predictor %s listed twice", ErrInvalidConfiguration, p)
		}
		seen[p] = true
	}
	return nil
}

// coefficientNames lists the fitted terms in design-matrix column order.
func (c RegressionConfig) coefficientNames() []string {
	var names []string
	if c.IncludeIntercept {
		names = append(names, InterceptName)
	}
	for _, p := range c.Predictors {
		names = append(names, string(p))
	}
	return names
}

// ResidualSummary describes the residual vector y - Xβ.
type ResidualSummary struct {
	Mean              float64 `json:"mean"`
	Variance          float64 `json:"variance"`
	StandardDeviation float64 `json:"standardDeviation"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
}

// RegressionDiagnostics holds the sums of squares behind the fit statistics.
type RegressionDiagnostics struct {
	SSResidual float64 `json:"ssResidual"`
	SSTotal    float64 `json:"ssTotal"`
	// ConditionNumber is reserved; it is not computed yet.
	ConditionNumber *float64 `json:"conditionNumber"`
}

// CoefficientInference holds the classical OLS test for one coefficient.
type CoefficientInference struct {
	StandardError float64 `json:"standardError"`
	TStatistic    float64 `json:"tStatistic"`
	PValue        float64 `json:"pValue"`
}

// RegressionInference holds t-tests per coefficient and the overall F-test.
type RegressionInference struct {
	DegreesOfFreedom int                             `json:"degreesOfFreedom"`
	Coefficients     map[string]CoefficientInference `json:"coefficients"`
	FStatistic       *float64                        `json:"fStatistic"`
	FPValue          *float64                        `json:"fPValue"`
}

// RegressionSummary is the result of an OLS fit.
type RegressionSummary struct {
	Config                RegressionConfig      `json:"config"`
	SampleSize            int                   `json:"sampleSize"`
	Coefficients          map[string]float64    `json:"coefficients"`
	RSquared              *float64              `json:"rSquared"`
	AdjustedRSquared      *float64              `json:"adjustedRSquared"`
	ResidualStandardError *float64              `json:"residualStandardError"`
	Residuals             ResidualSummary       `json:"residuals"`
	Diagnostics           RegressionDiagnostics `json:"diagnostics"`
	Inference             *RegressionInference  `json:"inference,omitempty"`
}

// FitRegression fits the target metric against the predictors by ordinary least squares,
// β = (XᵗX)⁻¹Xᵗy. Only records where the target and every predictor succeeded are used.
func FitRegression(records []metrics.Record, cfg RegressionConfig) (*RegressionSummary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 1. Row selection
	var rows [][]float64
	var ys []float64
	for _, r := range records {
		y, ok := r.Value(cfg.Target)
		if !ok {
			continue
		}
		row := make([]float64, 0, len(cfg.Predictors)+1)
		if cfg.IncludeIntercept {
			row = append(row, 1)
		}
		complete := true
		for _, p := range cfg.Predictors {
			v, ok := r.Value(p)
			if !ok {
				complete = false
				break
			}
			row = append(row, v)
		}
		if !complete {
			continue
		}
		rows = append(rows, row)
		ys = append(ys, y)
	}

	n := len(rows)
	if n <= len(cfg.Predictors) {
		return nil, fmt.Errorf("%w: %d complete rows for %d predictors", ErrInsufficientSamples, n, len(cfg.Predictors))
	}

	// 2. Normal equations
	p := len(rows[0])
	x := mat.NewDense(n, p, nil)
	for i, row := range rows {
		x.SetRow(i, row)
	}
	y := mat.NewVecDense(n, ys)

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	inv, err := invert(&xtx)
	if err != nil {
		return nil, fmt.Errorf("regression of %s: %w", cfg.Target, err)
	}

	var beta mat.VecDense
	beta.MulVec(inv, &xty)

	// 3. Residuals and goodness of fit
	var pred, resid mat.VecDense
	pred.MulVec(x, &beta)
	resid.SubVec(y, &pred)

	residuals := make([]float64, n)
	for i := range residuals {
		residuals[i] = resid.AtVec(i)
	}
	ssRes := floats.Dot(residuals, residuals)

	meanY := CalculateMean(ys)
	ssTot := 0.0
	for _, v := range ys {
		ssTot += (v - meanY) * (v - meanY)
	}

	names := cfg.coefficientNames()
	summary := &RegressionSummary{
		Config:       cfg,
		SampleSize:   n,
		Coefficients: make(map[string]float64, p),
		Diagnostics: RegressionDiagnostics{
			SSResidual: ssRes,
			SSTotal:    ssTot,
		},
	}
	for j, name := range names {
		summary.Coefficients[name] = beta.AtVec(j)
	}

	if ssTot != 0 {
		r2 := 1 - ssRes/ssTot
		summary.RSquared = ptr(r2)
		if dof := n - p - 1; dof > 0 {
			summary.AdjustedRSquared = ptr(1 - (1-r2)*float64(n-1)/float64(dof))
		}
	}
	if dof := n - p; dof > 0 {
		summary.ResidualStandardError = ptr(math.Sqrt(ssRes / float64(dof)))
	}

	residVar, _ := SampleVariance(residuals)
	summary.Residuals = ResidualSummary{
		Mean:              CalculateMean(residuals),
		Variance:          residVar,
		StandardDeviation: math.Sqrt(residVar),
		Min:               floats.Min(residuals),
		Max:               floats.Max(residuals),
	}

	summary.Inference = inferCoefficients(names, &beta, inv, ssRes, ssTot, n, p, cfg.IncludeIntercept)

	log.Debug().
		Str("target", string(cfg.Target)).
		Int("samples", n).
		Int("terms", p).
		Float64("ssResidual", ssRes).
		Msg("Regression fitted")

	return summary, nil
}

// inferCoefficients computes t-tests from σ²(XᵗX)⁻¹ and the overall F-test.
// Returns nil when there are no residual degrees of freedom or no residual variance.
func inferCoefficients(names []string, beta *mat.VecDense, inv *mat.Dense, ssRes, ssTot float64, n, p int, intercept bool) *RegressionInference {
	dof := n - p
	if dof <= 0 {
		return nil
	}
	sigma2 := ssRes / float64(dof)
	if sigma2 <= 0 || math.IsNaN(sigma2) {
		return nil
	}

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}
	inf := &RegressionInference{
		DegreesOfFreedom: dof,
		Coefficients:     make(map[string]CoefficientInference, len(names)),
	}
	for j, name := range names {
		se := math.Sqrt(sigma2 * math.Abs(inv.At(j, j)))
		ci := CoefficientInference{StandardError: se}
		if se > 0 {
			ci.TStatistic = beta.AtVec(j) / se
			ci.PValue = 2 * (1 - tDist.CDF(math.Abs(ci.TStatistic)))
		} else {
			ci.PValue = 1
		}
		inf.Coefficients[name] = ci
	}

	// F-test of all slopes against the intercept-only model
	if intercept && p > 1 && ssTot > 0 {
		df1 := float64(p - 1)
		f := ((ssTot - ssRes) / df1) / sigma2
		if f >= 0 {
			fDist := distuv.F{D1: df1, D2: float64(dof)}
			inf.FStatistic = ptr(f)
			inf.FPValue = ptr(1 - fDist.CDF(f))
		}
	}
	return inf
}
