// Package kalman implements the constant-velocity Kalman filter that owns a
// single track's state vector [x y z vx vy vz] and its 6x6 covariance.
//
// The filter exposes Initialize, Predict and Update. Process noise is a fixed
// q*I(6) added once per predict step, independent of dt. The covariance is
// re-symmetrized after every step.
package kalman
