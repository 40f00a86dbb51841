// Package export writes an event's schedule as an iCalendar feed or an XLSX
// workbook.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/event-board/internal/persistence"
)

const productID = "-//event-board//schedule export//EN"

// WriteCalendar writes one VEVENT per line of event. Callers decide which
// lines are visible before calling.
func WriteCalendar(w io.Writer, event persistence.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetName(event.Header.Title)

	for _, line := range event.Lines {
		ve := cal.AddEvent(fmt.Sprintf("%s@event-board", line.ID))
		ve.SetDtStampTime(now.UTC())
		ve.SetCreatedTime(line.CreatedAt.UTC())
		ve.SetModifiedAt(line.UpdatedAt.UTC())
		ve.SetStartAt(line.Start.UTC())
		ve.SetEndAt(line.End.UTC())
		ve.SetSummary(event.Header.Title)
		if event.Header.Description != "" {
			ve.SetDescription(event.Header.Description)
		}
		if event.Header.Address != "" {
			ve.SetLocation(event.Header.Address)
		}
		if event.Header.Category != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, event.Header.Category)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}
	return nil
}

// CalendarFilename returns a download name for the header's feed.
func CalendarFilename(header persistence.EventHeader) string {
	return slug(header.Title, header.ID) + ".ics"
}

func slug(title, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}
