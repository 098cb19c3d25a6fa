// Package association selects, among the candidate measurements observed at
// one instant, the measurement most likely to belong to the track.
//
// Two rules are provided. EqualWeight is the reference placeholder: every
// candidate gets weight 1/N and the first candidate wins. Mahalanobis weights
// candidates by their Gaussian likelihood under the predicted measurement and
// innovation covariance. Both break ties toward the lowest index.
package association

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/radartrack/internal/config"
	"github.com/banshee-data/radartrack/internal/monitoring"
	"github.com/banshee-data/radartrack/internal/track"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// ErrNoCandidates is returned when Associate is called with an empty set.
var ErrNoCandidates = errors.New("association: empty candidate set")

// Prediction is the track's expected measurement and its innovation
// covariance S at the candidates' timestamp.
type Prediction struct {
	Position   [3]float64
	Covariance *mat.SymDense
}

// Result is the outcome of one association.
type Result struct {
	Selected track.Measurement
	Index    int
	Weights  []float64 // normalized, sums to 1
}

// Engine assigns a weight to every candidate and selects the most likely one.
type Engine interface {
	Associate(pred Prediction, candidates []track.Measurement) (Result, error)
}

// New returns the engine registered under rule.
func New(rule string) (Engine, error) {
	switch rule {
	case "", config.RuleEqual:
		return EqualWeight{}, nil
	case config.RuleMahalanobis:
		return Mahalanobis{}, nil
	default:
		return nil, fmt.Errorf("association: unknown rule %q", rule)
	}
}

// EqualWeight gives every candidate the same weight regardless of geometry.
type EqualWeight struct{}

// Associate implements Engine.
func (EqualWeight) Associate(_ Prediction, candidates []track.Measurement) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}
	return selectMax(candidates, equalWeights(len(candidates))), nil
}

// Mahalanobis weights candidates by N(z; zhat, S).
type Mahalanobis struct{}

// Associate implements Engine. When S is not positive definite, or no
// candidate has a finite likelihood, it falls back to equal weights.
func (Mahalanobis) Associate(pred Prediction, candidates []track.Measurement) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}
	if pred.Covariance == nil {
		return selectMax(candidates, equalWeights(len(candidates))), nil
	}

	normal, ok := distmv.NewNormal(pred.Position[:], pred.Covariance, nil)
	if !ok {
		monitoring.Warnf("association: innovation covariance is not positive definite, using equal weights")
		return selectMax(candidates, equalWeights(len(candidates))), nil
	}

	logp := make([]float64, len(candidates))
	for i, c := range candidates {
		logp[i] = normal.LogProb([]float64{c.X, c.Y, c.Z})
	}

	// Normalize in log space so distant candidates do not underflow.
	lse := floats.LogSumExp(logp)
	if math.IsNaN(lse) || math.IsInf(lse, 0) {
		return selectMax(candidates, equalWeights(len(candidates))), nil
	}
	weights := make([]float64, len(logp))
	for i, lp := range logp {
		weights[i] = math.Exp(lp - lse)
	}
	return selectMax(candidates, weights), nil
}

// SquaredDistance returns the squared Mahalanobis distance of z from the
// prediction, or +Inf if S cannot be inverted.
func SquaredDistance(pred Prediction, z track.Measurement) float64 {
	var chol mat.Cholesky
	if pred.Covariance == nil || !chol.Factorize(pred.Covariance) {
		return math.Inf(1)
	}
	y := mat.NewVecDense(3, []float64{
		z.X - pred.Position[0],
		z.Y - pred.Position[1],
		z.Z - pred.Position[2],
	})
	var sy mat.VecDense
	if err := chol.SolveVecTo(&sy, y); err != nil {
		return math.Inf(1)
	}
	return mat.Dot(y, &sy)
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// selectMax picks the highest weight; floats.MaxIdx returns the first index
// among equal maxima.
func selectMax(candidates []track.Measurement, weights []float64) Result {
	idx := floats.MaxIdx(weights)
	return Result{Selected: candidates[idx], Index: idx, Weights: weights}
}
