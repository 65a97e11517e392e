package geospatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squareFeature = `{
	"type": "Feature",
	"properties": {},
	"geometry": {
		"type": "Polygon",
		"coordinates": [[[36.80, -1.30], [36.81, -1.30], [36.81, -1.29], [36.80, -1.29], [36.80, -1.30]]]
	}
}`

func TestValidateBoundary(t *testing.T) {
	g, err := ValidateBoundary(squareFeature)
	require.NoError(t, err)

	hectares := ConvertToHectares(CalculateArea(g))
	// roughly 1.11km x 1.11km near the equator
	assert.InDelta(t, 123, hectares, 5)
}

func TestValidateBoundaryBareGeometry(t *testing.T) {
	_, err := ValidateBoundary(`{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[0,0]]]}`)
	assert.NoError(t, err)
}

func TestValidateBoundaryRejectsPoint(t *testing.T) {
	_, err := ValidateBoundary(`{"type":"Point","coordinates":[36.8,-1.3]}`)
	assert.ErrorIs(t, err, ErrNotArea)
}

func TestValidateGeoJSONInvalid(t *testing.T) {
	_, err := ValidateGeoJSON(`not json`)
	assert.Error(t, err)
}
