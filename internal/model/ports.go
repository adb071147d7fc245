package model

// ── Rendering Surface Ports ──
// These interfaces decouple the chart session from a concrete rendering engine
// (a browser chart fed over websocket, an in-memory recorder in tests).

// SeriesKind selects the drawable type created on a surface.
type SeriesKind string

const (
	KindCandlestick SeriesKind = "candlestick"
	KindLine        SeriesKind = "line"
)

// SeriesStyle is the visual configuration of one drawable series.
// Candlestick fields are ignored for line series and vice versa.
type SeriesStyle struct {
	// Candlestick
	UpColor       string `json:"upColor,omitempty"`
	DownColor     string `json:"downColor,omitempty"`
	WickUpColor   string `json:"wickUpColor,omitempty"`
	WickDownColor string `json:"wickDownColor,omitempty"`
	BorderVisible bool   `json:"borderVisible"`

	// Line
	Color                  string `json:"color,omitempty"`
	LineWidth              int    `json:"lineWidth,omitempty"`
	PriceLineVisible       bool   `json:"priceLineVisible"`
	AxisLabelVisible       bool   `json:"axisLabelVisible"`
	CrosshairMarkerVisible bool   `json:"crosshairMarkerVisible"`
}

// CandlestickStyle is the default style of the base price series.
func CandlestickStyle() SeriesStyle {
	return SeriesStyle{
		UpColor:       "#26a69a",
		DownColor:     "#ef5350",
		WickUpColor:   "#26a69a",
		WickDownColor: "#ef5350",
		BorderVisible: false,
	}
}

// SurfaceOptions is the chart layout a surface is created with.
type SurfaceOptions struct {
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Background     string `json:"background"`
	TextColor      string `json:"textColor"`
	GridColor      string `json:"gridColor"`
	BorderColor    string `json:"borderColor"`
	CrosshairColor string `json:"crosshairColor"`
	LabelColor     string `json:"labelBackgroundColor"`
	TimeVisible    bool   `json:"timeVisible"`
	SecondsVisible bool   `json:"secondsVisible"`
}

// DefaultSurfaceOptions returns the dark layout used by the chart page.
func DefaultSurfaceOptions(width, height int) SurfaceOptions {
	return SurfaceOptions{
		Width:          width,
		Height:         height,
		Background:     "#1E1E1E",
		TextColor:      "#D9D9D9",
		GridColor:      "#2B2B2B",
		BorderColor:    "#4E5B85",
		CrosshairColor: "#FFFFFF",
		LabelColor:     "#2B2B2B",
		TimeVisible:    true,
		SecondsVisible: true,
	}
}

// Series is a handle to one drawable owned by a Surface.
type Series interface {
	// ID returns the surface-unique identifier of this drawable.
	ID() string

	// Kind returns the drawable type.
	Kind() SeriesKind

	// SetData replaces the drawable's points. Accepts []OHLCPoint for
	// candlestick series and []IndicatorPoint for line series.
	SetData(points any) error
}

// Surface is the minimal capability set of a rendering engine.
type Surface interface {
	// CreateSeries adds a drawable and returns its handle.
	CreateSeries(kind SeriesKind, style SeriesStyle) (Series, error)

	// RemoveSeries destroys a drawable. Removing an unknown handle is an error.
	RemoveSeries(s Series) error

	// Resize changes the chart dimensions.
	Resize(width, height int) error

	// Destroy releases the surface and every drawable still attached.
	Destroy() error
}

// Container is where a chart is mounted. It creates the surface and
// delivers viewport changes through an explicit subscription.
type Container interface {
	// ID names the mount point.
	ID() string

	// Dimensions returns the current width and height.
	Dimensions() (width, height int)

	// CreateSurface builds a rendering surface inside the container.
	CreateSurface(opts SurfaceOptions) (Surface, error)

	// OnResize registers fn for dimension changes and returns the function
	// that unregisters it.
	OnResize(fn func(width, height int)) (unsubscribe func())
}
