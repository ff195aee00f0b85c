// Package viewport keeps the geographic extent shown by a map session and
// converts between screen pixels and world coordinates.
//
// The rendered raster is larger than the screen by BufferFactor on each axis,
// so a drag can be shown immediately by shifting the image before the next
// render arrives. The extent always describes the whole buffered raster; the
// visible screen is its centred sub-rectangle.
package viewport

import (
	"fmt"
	"math"
	"sync"

	"github.com/1F47E/touchmap/pkg/models"
)

// Config describes the display surface
type Config struct {
	ScreenWidth  int
	ScreenHeight int
	// BufferFactor is the ratio between the rendered raster and the screen, >= 1
	BufferFactor float64
}

// Validate checks the screen size and buffer factor
func (c Config) Validate() error {
	if c.ScreenWidth <= 0 {
		return &ConfigurationError{Field: "screen width", Reason: "must be positive"}
	}
	if c.ScreenHeight <= 0 {
		return &ConfigurationError{Field: "screen height", Reason: "must be positive"}
	}
	if math.IsNaN(c.BufferFactor) || math.IsInf(c.BufferFactor, 0) || c.BufferFactor < 1 {
		return &ConfigurationError{Field: "buffer factor", Reason: "must be a finite number >= 1"}
	}
	return nil
}

// ImageSize returns the pixel size of the buffered raster
func (c Config) ImageSize() (width, height int) {
	return int(float64(c.ScreenWidth) * c.BufferFactor), int(float64(c.ScreenHeight) * c.BufferFactor)
}

// imageWidth and imageHeight are kept fractional so that pan and
// ScreenToWorld use exactly the same denominator.
func (c Config) imageWidth() float64 {
	return float64(c.ScreenWidth) * c.BufferFactor
}

func (c Config) imageHeight() float64 {
	return float64(c.ScreenHeight) * c.BufferFactor
}

// margin returns the number of buffered pixels on each side of the screen
func (c Config) margin() (x, y float64) {
	half := (c.BufferFactor - 1) / 2
	return float64(c.ScreenWidth) * half, float64(c.ScreenHeight) * half
}

// Initialize expands base symmetrically so that it covers the buffered raster
func Initialize(cfg Config, base models.Extent) (models.Extent, error) {
	if err := cfg.Validate(); err != nil {
		return models.Extent{}, err
	}
	if !base.Valid() {
		return models.Extent{}, &ConfigurationError{Field: "base extent", Reason: base.String() + " is empty or not finite"}
	}

	factor := (cfg.BufferFactor - 1) / 2
	w, h := base.Width(), base.Height()
	return models.Extent{
		MinX: base.MinX - factor*w,
		MaxX: base.MaxX + factor*w,
		MinY: base.MinY - factor*h,
		MaxY: base.MaxY + factor*h,
	}, nil
}

// Controller owns the current extent of a session.
// All methods are safe for concurrent use; writers replace the extent atomically.
type Controller struct {
	cfg Config

	mu     sync.RWMutex
	extent models.Extent
}

// New validates the configuration and initializes the extent from base
func New(cfg Config, base models.Extent) (*Controller, error) {
	extent, err := Initialize(cfg, base)
	if err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, extent: extent}, nil
}

// Config returns the display configuration
func (c *Controller) Config() Config {
	return c.cfg
}

// ImageSize returns the pixel size of the buffered raster
func (c *Controller) ImageSize() (width, height int) {
	return c.cfg.ImageSize()
}

// Extent returns the current extent
func (c *Controller) Extent() models.Extent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.extent
}

// SetExtent replaces the current extent, rejecting empty ones
func (c *Controller) SetExtent(e models.Extent) error {
	if !e.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidExtent, e)
	}
	c.mu.Lock()
	c.extent = e
	c.mu.Unlock()
	return nil
}

// Pan translates the extent by a drag of dx, dy pixels.
// Dragging right moves the view left; dragging down moves it up since world y grows upward.
// Panning is not clamped to any data bounds.
// Pixels are converted against the buffered image size, not the screen size;
// the two agree when BufferFactor is 1.
func (c *Controller) Pan(dxPixels, dyPixels float64) models.Extent {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.extent
	dx := dxPixels * e.Width() / c.cfg.imageWidth()
	dy := dyPixels * e.Height() / c.cfg.imageHeight()
	c.extent = models.Extent{
		MinX: e.MinX - dx,
		MaxX: e.MaxX - dx,
		MinY: e.MinY + dy,
		MaxY: e.MaxY + dy,
	}
	return c.extent
}

// Scale shrinks (factor > 1) or grows (factor < 1) the extent around its centre.
// Each side moves by (factor-1) times the current size, so the new width is
// width*(3-2*factor). A result with a non-positive size is rejected.
func (c *Controller) Scale(scaleX, scaleY float64) (models.Extent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.extent
	w, h := e.Width(), e.Height()
	next := models.Extent{
		MinX: e.MinX + (scaleX-1)*w,
		MaxX: e.MaxX - (scaleX-1)*w,
		MinY: e.MinY + (scaleY-1)*h,
		MaxY: e.MaxY - (scaleY-1)*h,
	}
	if !next.Valid() {
		return e, &InvalidScaleError{ScaleX: scaleX, ScaleY: scaleY, Result: next}
	}
	c.extent = next
	return next, nil
}

// ScreenToWorld converts a screen pixel to world coordinates
func (c *Controller) ScreenToWorld(p models.ScreenPoint) models.WorldPoint {
	e := c.Extent()
	mx, my := c.cfg.margin()
	h := float64(c.cfg.ScreenHeight)

	return models.WorldPoint{
		X: e.MinX + (p.X+mx)*e.Width()/c.cfg.imageWidth(),
		Y: e.MinY + (h-p.Y+my)*e.Height()/c.cfg.imageHeight(),
	}
}

// WorldToScreen converts world coordinates to a screen pixel.
// It is the inverse of ScreenToWorld.
func (c *Controller) WorldToScreen(p models.WorldPoint) models.ScreenPoint {
	e := c.Extent()
	mx, my := c.cfg.margin()
	h := float64(c.cfg.ScreenHeight)

	return models.ScreenPoint{
		X: (p.X-e.MinX)*c.cfg.imageWidth()/e.Width() - mx,
		Y: h + my - (p.Y-e.MinY)*c.cfg.imageHeight()/e.Height(),
	}
}
