package kalman

import (
	"fmt"
	"math"

	"github.com/banshee-data/radartrack/internal/config"
	"github.com/banshee-data/radartrack/internal/track"
	"gonum.org/v1/gonum/mat"
)

const (
	stateDim = 6
	measDim  = 3
)

// Config holds the fixed parameters of a constant-velocity filter.
type Config struct {
	// ProcessNoise is the plant-noise variance q; every predict step adds
	// Q = q*I(6) regardless of dt.
	ProcessNoise float64
	// MeasurementNoise is the 3x3 sensor covariance R.
	MeasurementNoise *mat.SymDense
	// MaxConditionNumber bounds the condition number of the innovation
	// covariance S accepted by Update.
	MaxConditionNumber float64
}

// DefaultConfig returns the reference parameters: q=20, R=I(3).
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	diag := cfg.GetMeasurementNoiseDiag()
	r := mat.NewSymDense(measDim, nil)
	for i, v := range diag {
		r.SetSym(i, i, v)
	}
	return Config{
		ProcessNoise:       cfg.GetProcessNoise(),
		MeasurementNoise:   r,
		MaxConditionNumber: cfg.GetMaxConditionNumber(),
	}
}

// Filter is a constant-velocity Kalman filter over the state
// [x y z vx vy vz] observed through its position components.
//
// A Filter is not safe for concurrent use; it is owned by a single
// estimation loop.
type Filter struct {
	q       float64
	r       *mat.SymDense
	h       *mat.Dense
	maxCond float64

	x          *mat.VecDense
	p          *mat.SymDense
	lastUpdate float64
}

// NewFilter creates a Filter with zero state and identity covariance.
func NewFilter(cfg Config) (*Filter, error) {
	if cfg.ProcessNoise < 0 || math.IsNaN(cfg.ProcessNoise) || math.IsInf(cfg.ProcessNoise, 0) {
		return nil, fmt.Errorf("kalman: process noise must be finite and non-negative, got %v", cfg.ProcessNoise)
	}
	if cfg.MeasurementNoise == nil {
		return nil, fmt.Errorf("kalman: measurement noise covariance is required")
	}
	if n := cfg.MeasurementNoise.SymmetricDim(); n != measDim {
		return nil, fmt.Errorf("kalman: measurement noise must be %dx%d, got %dx%d", measDim, measDim, n, n)
	}
	if !allFinite(cfg.MeasurementNoise) {
		return nil, fmt.Errorf("kalman: measurement noise contains non-finite values")
	}
	maxCond := cfg.MaxConditionNumber
	if maxCond <= 1 {
		maxCond = 1e12
	}

	h := mat.NewDense(measDim, stateDim, nil)
	for i := 0; i < measDim; i++ {
		h.Set(i, i, 1)
	}

	r := mat.NewSymDense(measDim, nil)
	r.CopySym(cfg.MeasurementNoise)

	f := &Filter{
		q:       cfg.ProcessNoise,
		r:       r,
		h:       h,
		maxCond: maxCond,
		x:       mat.NewVecDense(stateDim, nil),
		p:       identity(stateDim),
	}
	return f, nil
}

// Initialize overwrites the state and timestamp and resets the covariance to
// the identity. A second call discards everything set by the first.
func (f *Filter) Initialize(x, y, z, vx, vy, vz, t float64) {
	f.x = mat.NewVecDense(stateDim, []float64{x, y, z, vx, vy, vz})
	f.p = identity(stateDim)
	f.lastUpdate = t
}

// Predict propagates the state and covariance by dt seconds:
//
//	x = Phi*x
//	P = Phi*P*Phi' + q*I
//
// Any dt is applied, including zero and negative values. For dt <= 0 the
// propagated result is kept and an error wrapping ErrInvalidTimestampOrder is
// returned so the caller can decide whether out-of-order input is fatal.
func (f *Filter) Predict(dt float64) error {
	phi := transition(dt)

	var x mat.VecDense
	x.MulVec(phi, f.x)

	var fp, fpft mat.Dense
	fp.Mul(phi, f.p)
	fpft.Mul(&fp, phi.T())
	for i := 0; i < stateDim; i++ {
		fpft.Set(i, i, fpft.At(i, i)+f.q)
	}

	f.x = &x
	f.p = symmetrize(&fpft)

	if dt <= 0 {
		return fmt.Errorf("%w: dt=%g", ErrInvalidTimestampOrder, dt)
	}
	return nil
}

// PredictedMeasurement returns the expected measurement H*x and the
// innovation covariance S = H*P*H' + R for the current (predicted) state.
func (f *Filter) PredictedMeasurement() (zhat [3]float64, s *mat.SymDense) {
	var hx mat.VecDense
	hx.MulVec(f.h, f.x)
	for i := 0; i < measDim; i++ {
		zhat[i] = hx.AtVec(i)
	}
	s, _ = f.innovationCovariance()
	return zhat, s
}

func (f *Filter) innovationCovariance() (*mat.SymDense, *mat.Dense) {
	var hp, hpht mat.Dense
	hp.Mul(f.h, f.p)
	hpht.Mul(&hp, f.h.T())
	hpht.Add(&hpht, f.r)
	return symmetrize(&hpht), &hp
}

// Update fuses a position measurement into the state:
//
//	y = z - H*x
//	S = H*P*H' + R
//	K = P*H'*inv(S)
//	x = x + K*y
//	P = (I - K*H)*P
//
// If S is singular, not positive definite or its condition number exceeds the
// configured bound, Update returns a *NumericInstabilityError and leaves the
// filter unchanged. On success the measurement time becomes the last update
// time.
func (f *Filter) Update(z track.Measurement) error {
	s, hp := f.innovationCovariance()
	if !allFinite(s) {
		return &NumericInstabilityError{Time: z.Time, Cond: math.Inf(1)}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		return &NumericInstabilityError{Time: z.Time, Cond: math.Inf(1)}
	}
	cond := chol.Cond()
	if math.IsNaN(cond) || cond > f.maxCond {
		return &NumericInstabilityError{Time: z.Time, Cond: cond}
	}

	// K' = inv(S)*H*P since P and S are symmetric.
	var kt mat.Dense
	if err := chol.SolveTo(&kt, hp); err != nil {
		return &NumericInstabilityError{Time: z.Time, Cond: cond}
	}
	k := kt.T()

	var hx mat.VecDense
	hx.MulVec(f.h, f.x)
	y := mat.NewVecDense(measDim, []float64{z.X, z.Y, z.Z})
	y.SubVec(y, &hx)

	var dx, x mat.VecDense
	dx.MulVec(k, y)
	x.AddVec(f.x, &dx)

	var kh mat.Dense
	kh.Mul(k, f.h)
	imkh := mat.NewDense(stateDim, stateDim, nil)
	imkh.Sub(identity(stateDim), &kh)
	var p mat.Dense
	p.Mul(imkh, f.p)

	if !allFinite(&x) || !allFinite(&p) {
		return &NumericInstabilityError{Time: z.Time, Cond: cond}
	}

	f.x = &x
	f.p = symmetrize(&p)
	f.lastUpdate = z.Time
	return nil
}

// SetMeasurementMatrix replaces the 3x6 measurement matrix H. The default H
// selects the position components.
func (f *Filter) SetMeasurementMatrix(h mat.Matrix) error {
	r, c := h.Dims()
	if r != measDim || c != stateDim {
		return fmt.Errorf("kalman: measurement matrix must be %dx%d, got %dx%d", measDim, stateDim, r, c)
	}
	f.h = mat.DenseCopyOf(h)
	return nil
}

// State returns a copy of the state vector.
func (f *Filter) State() track.State {
	var s track.State
	for i := range s {
		s[i] = f.x.AtVec(i)
	}
	return s
}

// Covariance returns a copy of the state covariance.
func (f *Filter) Covariance() *mat.SymDense {
	p := mat.NewSymDense(stateDim, nil)
	p.CopySym(f.p)
	return p
}

// LastUpdate returns the time of the last successful update, or of the last
// Initialize when no update has happened since.
func (f *Filter) LastUpdate() float64 {
	return f.lastUpdate
}

// transition returns the constant-velocity state transition matrix for dt.
//
//	Phi = [I  dt*I]
//	      [0    I ]
func transition(dt float64) *mat.Dense {
	phi := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		phi.Set(i, i, 1)
	}
	for i := 0; i < measDim; i++ {
		phi.Set(i, i+measDim, dt)
	}
	return phi
}

func identity(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
	}
	return m
}

// symmetrize returns (A + A')/2.
func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

func allFinite(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
