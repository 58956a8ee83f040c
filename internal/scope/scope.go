// Package scope derives and overrides the validity windows of schedule
// documents.
package scope

import (
	"time"

	"github.com/dabtools/epgdc/internal/spi"
)

// ShortDescriptionLimit is the longest long-form text that may stand in
// for a missing short description.
const ShortDescriptionLimit = 180

// Compute determines the validity window of one schedule. Declared bounds
// are used verbatim; undeclared bounds are derived from the timed entries
// of every programme location. A bound not covered by any timed entry
// stays nil: callers must treat that as a data-quality defect, never as
// zero.
func Compute(s spi.Schedule) spi.Scope {
	out := spi.Scope{Start: s.Scope.Start, End: s.Scope.End}
	if out.Start != nil && out.End != nil {
		return out
	}

	var minStart, maxEnd *time.Time
	for _, p := range s.Programmes {
		for _, loc := range p.Locations {
			for _, t := range loc.Times {
				start := t.Start()
				if start.IsZero() {
					continue
				}
				if minStart == nil || start.Before(*minStart) {
					st := start
					minStart = &st
				}
				end := start.Add(t.Duration())
				if maxEnd == nil || end.After(*maxEnd) {
					en := end
					maxEnd = &en
				}
			}
		}
	}
	if out.Start == nil {
		out.Start = minStart
	}
	if out.End == nil {
		out.End = maxEnd
	}
	return out
}

// Merge aggregates per-schedule scopes into one window: minimum start,
// maximum end. Nil bounds do not contribute.
func Merge(scopes []spi.Scope) spi.Scope {
	var out spi.Scope
	for _, s := range scopes {
		if s.Start != nil && (out.Start == nil || s.Start.Before(*out.Start)) {
			st := *s.Start
			out.Start = &st
		}
		if s.End != nil && (out.End == nil || s.End.After(*out.End)) {
			en := *s.End
			out.End = &en
		}
	}
	return out
}

// ForDocument computes and merges the scope across every schedule in a
// PI document.
func ForDocument(doc *spi.ScheduleDocument) spi.Scope {
	scopes := make([]spi.Scope, 0, len(doc.Schedules))
	for _, s := range doc.Schedules {
		scopes = append(scopes, Compute(s))
	}
	return Merge(scopes)
}

// ApplyToDocument overwrites the document's scope and bearer references
// so the emitted PI object describes exactly one bearer with the merged
// window. Multi-bearer scope information from the source is deliberately
// discarded.
func ApplyToDocument(doc *spi.ScheduleDocument, bearer spi.Bearer, merged spi.Scope) {
	doc.Bearer = bearer
	for i := range doc.Schedules {
		doc.Schedules[i].Scope = merged
	}
}

// BackfillShortDescriptions appends a short-form description to every
// programme lacking one, synthesized from a long-form description whose
// text fits within limit characters. Existing short descriptions are
// never replaced.
func BackfillShortDescriptions(doc *spi.ScheduleDocument, limit int) {
	if limit <= 0 {
		limit = ShortDescriptionLimit
	}
	for si := range doc.Schedules {
		for pi := range doc.Schedules[si].Programmes {
			prog := &doc.Schedules[si].Programmes[pi]
			if hasShort(prog.Descriptions) {
				continue
			}
			for _, d := range prog.Descriptions {
				if d.Kind == spi.LongDescription && len(d.Text) <= limit {
					prog.Descriptions = append(prog.Descriptions, spi.Description{
						Kind: spi.ShortDescription,
						Text: d.Text,
					})
					break
				}
			}
		}
	}
}

func hasShort(descs []spi.Description) bool {
	for _, d := range descs {
		if d.Kind == spi.ShortDescription {
			return true
		}
	}
	return false
}
