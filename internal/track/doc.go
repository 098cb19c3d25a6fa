// Package track holds the data model shared by the estimation layers:
// time-stamped Cartesian measurements, the 6-component constant-velocity
// state, and the filtered output records.
//
// Dependency rule: track depends on nothing inside the module except coords.
package track
