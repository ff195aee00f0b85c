package viewport

import (
	"errors"
	"fmt"

	"github.com/1F47E/touchmap/pkg/models"
)

// ErrInvalidExtent is returned when an extent with no area is installed
var ErrInvalidExtent = errors.New("extent is empty or not finite")

// ConfigurationError indicates a viewport that cannot be constructed
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid viewport configuration: %s %s", e.Field, e.Reason)
}

// InvalidScaleError indicates a scale that would collapse or invert the extent.
// The controller keeps its previous extent when this is returned.
type InvalidScaleError struct {
	ScaleX, ScaleY float64
	Result         models.Extent
}

func (e *InvalidScaleError) Error() string {
	return fmt.Sprintf("invalid scale (%g, %g): resulting extent %s has width %g and height %g",
		e.ScaleX, e.ScaleY, e.Result, e.Result.Width(), e.Result.Height())
}
