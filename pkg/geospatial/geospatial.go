package geospatial

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// ErrNoGeometry is returned for a GeoJSON document without a geometry.
var ErrNoGeometry = errors.New("invalid GeoJSON: no geometry")

// ErrNotArea is returned when a project boundary is not a polygon.
var ErrNotArea = errors.New("invalid GeoJSON: boundary must be a Polygon or MultiPolygon")

// ValidateGeoJSON validates a GeoJSON Feature or bare geometry
func ValidateGeoJSON(geojsonStr string) (orb.Geometry, error) {
	feature, err := geojson.UnmarshalFeature([]byte(geojsonStr))
	if err == nil && feature.Geometry != nil {
		return feature.Geometry, nil
	}

	g, gerr := geojson.UnmarshalGeometry([]byte(geojsonStr))
	if gerr != nil {
		if err != nil {
			return nil, err
		}
		return nil, gerr
	}
	if g.Coordinates == nil {
		return nil, ErrNoGeometry
	}
	return g.Coordinates, nil
}

// ValidateBoundary validates a project boundary and returns its geometry.
func ValidateBoundary(geojsonStr string) (orb.Geometry, error) {
	g, err := ValidateGeoJSON(geojsonStr)
	if err != nil {
		return nil, err
	}
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return g, nil
	default:
		return nil, ErrNotArea
	}
}

// CalculateArea calculates the geodesic area in square meters for a geometry
func CalculateArea(geometry orb.Geometry) float64 {
	return geo.Area(geometry)
}

// ConvertToHectares converts square meters to hectares
func ConvertToHectares(sqMeters float64) float64 {
	return sqMeters / 10000
}
