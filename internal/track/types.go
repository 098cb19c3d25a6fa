package track

import "github.com/banshee-data/radartrack/internal/coords"

// Measurement is a Cartesian position observation. Time is in seconds on the
// sensor clock. Several measurements may share a Time; together they form
// the candidate set for that instant.
type Measurement struct {
	Time float64 `json:"t"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// Position returns the measurement as a 3-vector.
func (m Measurement) Position() [3]float64 {
	return [3]float64{m.X, m.Y, m.Z}
}

// Spherical returns the measurement in the sensor frame.
func (m Measurement) Spherical() coords.Spherical {
	return coords.Cartesian{X: m.X, Y: m.Y, Z: m.Z}.ToSpherical()
}

// FromSpherical builds a Measurement from a sensor-frame observation.
func FromSpherical(t float64, s coords.Spherical) Measurement {
	c := s.ToCartesian()
	return Measurement{Time: t, X: c.X, Y: c.Y, Z: c.Z}
}

// State is the constant-velocity state vector [x y z vx vy vz].
type State [6]float64

// Position returns the position part of the state.
func (s State) Position() [3]float64 {
	return [3]float64{s[0], s[1], s[2]}
}

// Velocity returns the velocity part of the state.
func (s State) Velocity() [3]float64 {
	return [3]float64{s[3], s[4], s[5]}
}

// Output is one filtered record, produced once per processed timestamp after
// the two-measurement bootstrap.
type Output struct {
	Time         float64   `json:"t"`
	Range        float64   `json:"range"`
	AzimuthDeg   float64   `json:"azimuth_deg"`
	ElevationDeg float64   `json:"elevation_deg"`
	State        State     `json:"state"`
	Selected     int       `json:"selected"` // index into the candidate set
	Weights      []float64 `json:"weights,omitempty"`
}

// NewOutput converts a filtered state into an output record.
func NewOutput(t float64, s State, selected int, weights []float64) Output {
	r, az, el := coords.ToSpherical(s[0], s[1], s[2])
	return Output{
		Time:         t,
		Range:        r,
		AzimuthDeg:   az,
		ElevationDeg: el,
		State:        s,
		Selected:     selected,
		Weights:      weights,
	}
}

// GroupByTime splits an ordered measurement sequence into runs of equal
// Time, preserving input order inside each group.
func GroupByTime(ms []Measurement) [][]Measurement {
	var groups [][]Measurement
	for i := 0; i < len(ms); {
		j := i + 1
		for j < len(ms) && ms[j].Time == ms[i].Time {
			j++
		}
		groups = append(groups, ms[i:j:j])
		i = j
	}
	return groups
}
