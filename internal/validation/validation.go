// Package validation parses and bounds-checks request coordinates.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

// ErrCoordinateMissing is returned when lat or lng is absent or blank.
var ErrCoordinateMissing = errors.New("coordinate is required")

// ErrCoordinateInvalid is returned when lat or lng is not a finite decimal number.
var ErrCoordinateInvalid = errors.New("coordinate is not a number")

// ErrCoordinateOutOfRange is returned when lat is outside [-90, 90] or lng outside [-180, 180].
var ErrCoordinateOutOfRange = errors.New("coordinate out of range")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseCoordinate parses raw query values into a Coordinate.
// Returned errors wrap one of the sentinels above and are suitable for
// 400 INVALID_COORDINATE responses.
func ParseCoordinate(latStr, lngStr string) (models.Coordinate, error) {
	lat, err := parseComponent("lat", latStr)
	if err != nil {
		return models.Coordinate{}, err
	}
	lng, err := parseComponent("lng", lngStr)
	if err != nil {
		return models.Coordinate{}, err
	}
	c := models.Coordinate{Lat: lat, Lng: lng}
	if err := ValidateCoordinate(c); err != nil {
		return models.Coordinate{}, err
	}
	return c, nil
}

// ValidateCoordinate checks the Coordinate struct tags.
func ValidateCoordinate(c models.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return fmt.Errorf("%w: NaN", ErrCoordinateInvalid)
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s=%v", ErrCoordinateOutOfRange, strings.ToLower(fe.Field()), fe.Value())
	}
	return fmt.Errorf("%w: %v", ErrCoordinateInvalid, err)
}

func parseComponent(name, raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: %s", ErrCoordinateMissing, name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s=%q", ErrCoordinateInvalid, name, s)
	}
	return v, nil
}
