package spi

import "time"

// MediaType classifies a logo candidate.
type MediaType int

const (
	MediaUnrestricted MediaType = iota
	MediaSquareLogo
	MediaRectangleLogo
)

func (t MediaType) String() string {
	switch t {
	case MediaSquareLogo:
		return "logo_colour_square"
	case MediaRectangleLogo:
		return "logo_colour_rectangle"
	default:
		return "logo_unrestricted"
	}
}

// MediaItem is one logo candidate attached to a service.
type MediaItem struct {
	Type   MediaType
	MIME   string
	Width  int
	Height int
	// URL initially points at the source; after normalization it holds
	// the derived object name inside the carousel.
	URL string
}

// Service is one broadcast station record from an SI document.
type Service struct {
	Name        string
	ShortName   string
	Description string
	Genres      []string
	Media       []MediaItem
	Bearers     []Bearer
	Link        string
}

// ServiceInformation is the decoded SI document.
type ServiceInformation struct {
	Created  time.Time
	Services []Service
}

// DescriptionKind distinguishes short-form from long-form programme text.
type DescriptionKind int

const (
	ShortDescription DescriptionKind = iota
	LongDescription
)

// Description is one textual programme description.
type Description struct {
	Kind DescriptionKind
	Text string
}

// ShowTime is one transmission slot of a programme at a location. The
// billed fields are always present; the actual fields are zero when the
// source did not declare them.
type ShowTime struct {
	BilledStart    time.Time
	BilledDuration time.Duration
	ActualStart    time.Time
	ActualDuration time.Duration
}

// Start returns the actual start when declared, else the billed start.
func (t ShowTime) Start() time.Time {
	if !t.ActualStart.IsZero() {
		return t.ActualStart
	}
	return t.BilledStart
}

// Duration returns the actual duration when declared, else the billed one.
func (t ShowTime) Duration() time.Duration {
	if t.ActualDuration > 0 {
		return t.ActualDuration
	}
	return t.BilledDuration
}

// Location binds a programme to bearers and transmission times.
type Location struct {
	Bearers []Bearer
	Times   []ShowTime
}

// Programme is one schedule entry.
type Programme struct {
	ID           string
	Title        string
	ShortTitle   string
	Descriptions []Description
	Locations    []Location
	Genres       []string
}

// Scope is the validity window of a schedule. Nil bounds are undeclared.
type Scope struct {
	Start *time.Time
	End   *time.Time
}

// Schedule is one schedule block of a PI document.
type Schedule struct {
	Scope      Scope
	Programmes []Programme
}

// ScheduleDocument is the decoded PI document, scoped to one bearer by
// the pipeline before serialization.
type ScheduleDocument struct {
	Created   time.Time
	Bearer    Bearer
	Schedules []Schedule
}
