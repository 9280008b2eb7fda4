package geo

import (
	"errors"
	"math"

	"github.com/OCAP2/telemetry-synth/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Arena positions are stored twice: as raw arena coordinates and as web
// mercator (EPSG:3857) coordinates around a configured anchor, so that
// heartbeats can be put on a map. Both are stored as WKB.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// mercatorMaxLatitude is the latitude limit of EPSG:3857.
const mercatorMaxLatitude = 85.06

// PointFromPosition converts an arena position to an XYZ point.
func PointFromPosition(p core.Position3D) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Y},
		Z:    p.Z,
		Type: geom.DimXYZ,
	})
}

// PositionFromPoint is the inverse of PointFromPosition. Empty points map
// to the origin.
func PositionFromPoint(pt geom.Point) core.Position3D {
	c, ok := pt.Coordinates()
	if !ok {
		return core.Position3D{}
	}
	return core.Position3D{X: c.X, Y: c.Y, Z: c.Z}
}

// Anchor places the arena origin on the earth.
type Anchor struct {
	Longitude     float64
	Latitude      float64
	MetersPerUnit float64

	originX float64
	originY float64
}

// NewAnchor projects the anchor once so per-heartbeat projection is a
// scale and offset.
func NewAnchor(longitude, latitude, metersPerUnit float64) (*Anchor, error) {
	if math.Abs(longitude) > 180 || math.Abs(latitude) > mercatorMaxLatitude || metersPerUnit <= 0 {
		return nil, ErrInvalidCoordinates
	}
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	return &Anchor{
		Longitude:     longitude,
		Latitude:      latitude,
		MetersPerUnit: metersPerUnit,
		originX:       x,
		originY:       y,
	}, nil
}

// Project returns p as an EPSG:3857 point. Z is scaled to meters.
func (a *Anchor) Project(p core.Position3D) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY: geom.XY{
			X: a.originX + p.X*a.MetersPerUnit,
			Y: a.originY + p.Y*a.MetersPerUnit,
		},
		Z:    p.Z * a.MetersPerUnit,
		Type: geom.DimXYZ,
	})
}

// LonLat returns the WGS84 longitude and latitude of p.
func (a *Anchor) LonLat(p core.Position3D) (float64, float64) {
	f := wgs84.EPSG().Transform(3857, 4326)
	lon, lat, _ := f(a.originX+p.X*a.MetersPerUnit, a.originY+p.Y*a.MetersPerUnit, 0)
	return lon, lat
}
