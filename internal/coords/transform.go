// Package coords converts between the sensor's spherical measurement frame
// (range, azimuth, elevation) and the Cartesian frame the tracker works in.
//
// Coordinate convention: X=east, Y=north, Z=up. Azimuth is a compass bearing
// in degrees measured clockwise from +Y; elevation is measured up from the
// horizontal plane.
package coords

import "math"

const degToRad = math.Pi / 180.0

// ToCartesian converts azimuth (degrees), elevation (degrees) and range into
// Cartesian coordinates. NaN and Inf inputs propagate unchanged.
func ToCartesian(azimuthDeg, elevationDeg, rng float64) (x, y, z float64) {
	azimuthRad := azimuthDeg * degToRad
	elevationRad := elevationDeg * degToRad

	cosElevation := math.Cos(elevationRad)

	x = rng * cosElevation * math.Sin(azimuthRad)
	y = rng * cosElevation * math.Cos(azimuthRad)
	z = rng * math.Sin(elevationRad)
	return
}

// ToSpherical converts Cartesian coordinates into range, azimuth (degrees) and
// elevation (degrees).
//
// The azimuth is derived from atan2(y, x) and remapped to the compass
// convention: 90-a when x > 0, otherwise 270-a. The result therefore lies in
// (0, 180) for x > 0 and in [90, 450) otherwise; it is not wrapped to [0, 360).
// For x <= 0 the remap points 180 degrees away from the true bearing, so
// ToCartesian(ToSpherical(p)) returns (-x, -y, z) there. Downstream plots and
// stored runs depend on this exact convention.
//
// On the vertical axis (x = y = 0) atan2(0, 0) is 0, so the azimuth is 270 and
// the elevation is +90 or -90 following the sign of z (0 at the origin).
func ToSpherical(x, y, z float64) (rng, azimuthDeg, elevationDeg float64) {
	horizontal := math.Hypot(x, y)
	rng = math.Sqrt(horizontal*horizontal + z*z)
	elevationDeg = math.Atan2(z, horizontal) / degToRad

	a := math.Atan2(y, x) / degToRad
	if x > 0 {
		azimuthDeg = 90 - a
	} else {
		azimuthDeg = 270 - a
	}
	return
}

// Spherical is a sensor-frame position.
type Spherical struct {
	Range        float64
	AzimuthDeg   float64
	ElevationDeg float64
}

// Cartesian is a tracker-frame position.
type Cartesian struct {
	X, Y, Z float64
}

// ToCartesian converts s into the tracker frame.
func (s Spherical) ToCartesian() Cartesian {
	x, y, z := ToCartesian(s.AzimuthDeg, s.ElevationDeg, s.Range)
	return Cartesian{X: x, Y: y, Z: z}
}

// ToSpherical converts c into the sensor frame.
func (c Cartesian) ToSpherical() Spherical {
	r, az, el := ToSpherical(c.X, c.Y, c.Z)
	return Spherical{Range: r, AzimuthDeg: az, ElevationDeg: el}
}
