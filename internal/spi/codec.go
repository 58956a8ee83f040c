package spi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// maxDocumentSize bounds decoded SI/PI payloads the same way the rest of
// the pipeline bounds fetched bodies.
const maxDocumentSize = 16 * 1024 * 1024

// EnsembleContext carries the target multiplex identity into SI
// serialization.
type EnsembleContext struct {
	ECC        uint8
	EID        uint16
	Label      string
	ShortLabel string
}

// wire structs, TS 102 818 shape

type xmlMultimedia struct {
	Type   string `xml:"type,attr,omitempty"`
	MIME   string `xml:"mimeValue,attr,omitempty"`
	Width  int    `xml:"width,attr,omitempty"`
	Height int    `xml:"height,attr,omitempty"`
	URL    string `xml:"url,attr"`
}

type xmlMediaDescription struct {
	Short      string         `xml:"shortDescription,omitempty"`
	Long       string         `xml:"longDescription,omitempty"`
	Multimedia *xmlMultimedia `xml:"multimedia"`
}

type xmlGenre struct {
	Href string `xml:"href,attr,omitempty"`
	Name string `xml:",chardata"`
}

type xmlBearer struct {
	ID string `xml:"id,attr"`
}

type xmlLink struct {
	URI string `xml:"uri,attr"`
}

type xmlService struct {
	ShortName  string                `xml:"shortName"`
	MediumName string                `xml:"mediumName"`
	Media      []xmlMediaDescription `xml:"mediaDescription"`
	Genres     []xmlGenre            `xml:"genre"`
	Bearers    []xmlBearer           `xml:"bearer"`
	Link       *xmlLink              `xml:"link"`
}

type xmlEnsemble struct {
	ID         string       `xml:"id,attr"`
	ShortName  string       `xml:"shortName"`
	MediumName string       `xml:"mediumName"`
	Services   []xmlService `xml:"service"`
}

type xmlSI struct {
	XMLName  xml.Name     `xml:"serviceInformation"`
	Created  string       `xml:"creationTime,attr,omitempty"`
	Ensemble *xmlEnsemble `xml:"ensemble"`
	Services []xmlService `xml:"services>service"`
}

type xmlTime struct {
	Time           string `xml:"time,attr"`
	Duration       string `xml:"duration,attr"`
	ActualTime     string `xml:"actualTime,attr,omitempty"`
	ActualDuration string `xml:"actualDuration,attr,omitempty"`
}

type xmlLocation struct {
	Bearers []xmlBearer `xml:"bearer"`
	Times   []xmlTime   `xml:"time"`
}

type xmlProgramme struct {
	ID         string                `xml:"id,attr,omitempty"`
	ShortID    string                `xml:"shortId,attr,omitempty"`
	MediumName string                `xml:"mediumName"`
	ShortName  string                `xml:"shortName,omitempty"`
	Media      []xmlMediaDescription `xml:"mediaDescription"`
	Genres     []xmlGenre            `xml:"genre"`
	Locations  []xmlLocation         `xml:"location"`
}

type xmlServiceScope struct {
	ID string `xml:"id,attr"`
}

type xmlScope struct {
	Start    string            `xml:"startTime,attr,omitempty"`
	Stop     string            `xml:"stopTime,attr,omitempty"`
	Services []xmlServiceScope `xml:"serviceScope"`
}

type xmlSchedule struct {
	Created    string         `xml:"creationTime,attr,omitempty"`
	Scope      *xmlScope      `xml:"scope"`
	Programmes []xmlProgramme `xml:"programme"`
}

type xmlPI struct {
	XMLName   xml.Name      `xml:"epg"`
	Schedules []xmlSchedule `xml:"schedule"`
}

func decoder(data []byte) *xml.Decoder {
	if len(data) > maxDocumentSize {
		data = data[:maxDocumentSize]
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	// Disable entity expansion to prevent XXE-style payloads.
	dec.Entity = make(map[string]string)
	return dec
}

// UnmarshalSI decodes an SI document.
func UnmarshalSI(data []byte) (*ServiceInformation, error) {
	var doc xmlSI
	if err := decoder(data).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode SI: %w", err)
	}
	si := &ServiceInformation{Created: parseTimeAttr(doc.Created)}
	wire := doc.Services
	if doc.Ensemble != nil {
		wire = append(wire, doc.Ensemble.Services...)
	}
	for _, ws := range wire {
		si.Services = append(si.Services, serviceFromWire(ws))
	}
	return si, nil
}

func serviceFromWire(ws xmlService) Service {
	svc := Service{
		Name:      strings.TrimSpace(ws.MediumName),
		ShortName: strings.TrimSpace(ws.ShortName),
	}
	if svc.ShortName == "" {
		svc.ShortName = svc.Name
	}
	for _, g := range ws.Genres {
		// Upstream documents carry empty genre entries; discard them.
		name := strings.TrimSpace(g.Name)
		if name == "" {
			continue
		}
		svc.Genres = append(svc.Genres, name)
	}
	for _, md := range ws.Media {
		if md.Short != "" && svc.Description == "" {
			svc.Description = md.Short
		}
		if md.Long != "" {
			svc.Description = md.Long
		}
		if md.Multimedia != nil {
			svc.Media = append(svc.Media, MediaItem{
				Type:   mediaTypeFromWire(md.Multimedia.Type),
				MIME:   md.Multimedia.MIME,
				Width:  md.Multimedia.Width,
				Height: md.Multimedia.Height,
				URL:    md.Multimedia.URL,
			})
		}
	}
	for _, wb := range ws.Bearers {
		b, err := ParseBearerURI(wb.ID)
		if err != nil {
			// Non-DAB bearers (fm:, http:) are legitimate in SI; only
			// DAB carriage matters here.
			continue
		}
		svc.Bearers = append(svc.Bearers, b)
	}
	if ws.Link != nil {
		svc.Link = ws.Link.URI
	}
	return svc
}

func mediaTypeFromWire(s string) MediaType {
	switch s {
	case "logo_colour_square", "logo_mono_square":
		return MediaSquareLogo
	case "logo_colour_rectangle", "logo_mono_rectangle":
		return MediaRectangleLogo
	default:
		return MediaUnrestricted
	}
}

// UnmarshalPI decodes a PI document.
func UnmarshalPI(data []byte) (*ScheduleDocument, error) {
	var doc xmlPI
	if err := decoder(data).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode PI: %w", err)
	}
	if len(doc.Schedules) == 0 {
		return nil, fmt.Errorf("decode PI: document has no schedule")
	}
	pi := &ScheduleDocument{}
	for _, ws := range doc.Schedules {
		if pi.Created.IsZero() {
			pi.Created = parseTimeAttr(ws.Created)
		}
		sched := Schedule{}
		if ws.Scope != nil {
			sched.Scope.Start = parseTimePtr(ws.Scope.Start)
			sched.Scope.End = parseTimePtr(ws.Scope.Stop)
		}
		for _, wp := range ws.Programmes {
			sched.Programmes = append(sched.Programmes, programmeFromWire(wp))
		}
		pi.Schedules = append(pi.Schedules, sched)
	}
	return pi, nil
}

func programmeFromWire(wp xmlProgramme) Programme {
	p := Programme{
		ID:         wp.ID,
		Title:      strings.TrimSpace(wp.MediumName),
		ShortTitle: strings.TrimSpace(wp.ShortName),
	}
	if p.ID == "" {
		p.ID = wp.ShortID
	}
	for _, g := range wp.Genres {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			continue
		}
		p.Genres = append(p.Genres, name)
	}
	for _, md := range wp.Media {
		if md.Short != "" {
			p.Descriptions = append(p.Descriptions, Description{Kind: ShortDescription, Text: md.Short})
		}
		if md.Long != "" {
			p.Descriptions = append(p.Descriptions, Description{Kind: LongDescription, Text: md.Long})
		}
	}
	for _, wl := range wp.Locations {
		loc := Location{}
		for _, wb := range wl.Bearers {
			if b, err := ParseBearerURI(wb.ID); err == nil {
				loc.Bearers = append(loc.Bearers, b)
			}
		}
		for _, wt := range wl.Times {
			st := ShowTime{}
			st.BilledStart = parseTimeAttr(wt.Time)
			if d, err := ParseXSDuration(wt.Duration); err == nil {
				st.BilledDuration = d
			}
			st.ActualStart = parseTimeAttr(wt.ActualTime)
			if wt.ActualDuration != "" {
				if d, err := ParseXSDuration(wt.ActualDuration); err == nil {
					st.ActualDuration = d
				}
			}
			loc.Times = append(loc.Times, st)
		}
		p.Locations = append(p.Locations, loc)
	}
	return p
}

// MarshalSI serializes the consolidated SI document annotated with the
// ensemble identity.
func MarshalSI(si *ServiceInformation, ens EnsembleContext) ([]byte, error) {
	doc := xmlSI{
		Created: formatTimeAttr(si.Created),
		Ensemble: &xmlEnsemble{
			ID:         fmt.Sprintf("%02x.%04x", ens.ECC, ens.EID),
			ShortName:  ens.ShortLabel,
			MediumName: ens.Label,
		},
	}
	for _, svc := range si.Services {
		doc.Ensemble.Services = append(doc.Ensemble.Services, serviceToWire(svc))
	}
	return marshalDoc(doc)
}

func serviceToWire(svc Service) xmlService {
	ws := xmlService{
		ShortName:  svc.ShortName,
		MediumName: svc.Name,
	}
	if svc.Description != "" {
		ws.Media = append(ws.Media, xmlMediaDescription{Short: svc.Description})
	}
	for _, m := range svc.Media {
		ws.Media = append(ws.Media, xmlMediaDescription{Multimedia: &xmlMultimedia{
			Type:   m.Type.String(),
			MIME:   m.MIME,
			Width:  m.Width,
			Height: m.Height,
			URL:    m.URL,
		}})
	}
	for _, g := range svc.Genres {
		ws.Genres = append(ws.Genres, xmlGenre{Name: g})
	}
	for _, b := range svc.Bearers {
		ws.Bearers = append(ws.Bearers, xmlBearer{ID: b.String()})
	}
	if svc.Link != "" {
		ws.Link = &xmlLink{URI: svc.Link}
	}
	return ws
}

// MarshalPI serializes a bearer-scoped PI document.
func MarshalPI(pi *ScheduleDocument) ([]byte, error) {
	doc := xmlPI{}
	for _, s := range pi.Schedules {
		ws := xmlSchedule{Created: formatTimeAttr(pi.Created)}
		scope := &xmlScope{
			Services: []xmlServiceScope{{ID: pi.Bearer.String()}},
		}
		if s.Scope.Start != nil {
			scope.Start = formatTimeAttr(*s.Scope.Start)
		}
		if s.Scope.End != nil {
			scope.Stop = formatTimeAttr(*s.Scope.End)
		}
		ws.Scope = scope
		for _, p := range s.Programmes {
			ws.Programmes = append(ws.Programmes, programmeToWire(p, pi.Bearer))
		}
		doc.Schedules = append(doc.Schedules, ws)
	}
	return marshalDoc(doc)
}

func programmeToWire(p Programme, bearer Bearer) xmlProgramme {
	wp := xmlProgramme{
		ID:         p.ID,
		MediumName: p.Title,
		ShortName:  p.ShortTitle,
	}
	for _, d := range p.Descriptions {
		md := xmlMediaDescription{}
		if d.Kind == ShortDescription {
			md.Short = d.Text
		} else {
			md.Long = d.Text
		}
		wp.Media = append(wp.Media, md)
	}
	for _, g := range p.Genres {
		wp.Genres = append(wp.Genres, xmlGenre{Name: g})
	}
	for _, l := range p.Locations {
		wl := xmlLocation{Bearers: []xmlBearer{{ID: bearer.String()}}}
		for _, t := range l.Times {
			wt := xmlTime{
				Time:     formatTimeAttr(t.BilledStart),
				Duration: FormatXSDuration(t.BilledDuration),
			}
			if !t.ActualStart.IsZero() {
				wt.ActualTime = formatTimeAttr(t.ActualStart)
			}
			if t.ActualDuration > 0 {
				wt.ActualDuration = FormatXSDuration(t.ActualDuration)
			}
			wl.Times = append(wl.Times, wt)
		}
		wp.Locations = append(wp.Locations, wl)
	}
	return wp
}

func marshalDoc(doc any) ([]byte, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func parseTimeAttr(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// Some providers omit the timezone suffix.
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func parseTimePtr(s string) *time.Time {
	t := parseTimeAttr(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func formatTimeAttr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ScopeIDEnsemble renders the SI scope identity for a multiplex.
func ScopeIDEnsemble(ecc uint8, eid uint16) string {
	return fmt.Sprintf("%02x.%04x", ecc, eid)
}
