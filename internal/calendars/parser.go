package calendars

import (
	"fmt"
	"io"
	"strings"
	"time"

	"readerhub/pkg/interval"

	ics "github.com/arran4/golang-ical"
)

const (
	icalDateTimeUTC = "20060102T150405Z"
	icalDateTime    = "20060102T150405"
	icalDate        = "20060102"
)

// ParseBusy reads an iCalendar document and returns the busy intervals of
// its events in UTC. loc resolves floating and all-day values. Cancelled
// and transparent events are not busy time. Events whose times cannot be
// interpreted are skipped rather than failing the feed.
func ParseBusy(r io.Reader, loc *time.Location) ([]interval.Interval, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	busy := []interval.Interval{}
	for _, event := range cal.Events() {
		if propertyIs(event.GetProperty(ics.ComponentPropertyStatus), "CANCELLED") ||
			propertyIs(event.GetProperty(ics.ComponentPropertyTransp), "TRANSPARENT") {
			continue
		}

		iv, ok := eventInterval(event, loc)
		if !ok {
			continue
		}
		busy = append(busy, iv)
	}
	return busy, nil
}

func eventInterval(event *ics.VEvent, loc *time.Location) (interval.Interval, bool) {
	startProp := event.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil {
		return interval.Interval{}, false
	}
	start, allDay, err := parseTime(startProp, loc)
	if err != nil {
		return interval.Interval{}, false
	}

	var end time.Time
	if endProp := event.GetProperty(ics.ComponentPropertyDtEnd); endProp != nil {
		if end, _, err = parseTime(endProp, loc); err != nil {
			return interval.Interval{}, false
		}
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	} else {
		return interval.Interval{}, false
	}

	iv, err := interval.New(start, end)
	if err != nil {
		return interval.Interval{}, false
	}
	return iv.UTC(), true
}

// parseTime interprets a DTSTART or DTEND value. UTC values carry a Z
// suffix, TZID-qualified values are local to that zone, and floating values
// and dates are local to loc.
func parseTime(prop *ics.IANAProperty, loc *time.Location) (t time.Time, allDay bool, err error) {
	value := strings.TrimSpace(prop.Value)

	if isDate(prop) {
		t, err = time.ParseInLocation(icalDate, value, loc)
		return t, true, err
	}

	if strings.HasSuffix(value, "Z") {
		t, err = time.Parse(icalDateTimeUTC, value)
		return t, false, err
	}

	zone := loc
	if tzids := prop.ICalParameters[string(ics.ParameterTzid)]; len(tzids) > 0 {
		if z, zerr := time.LoadLocation(strings.Trim(tzids[0], `"`)); zerr == nil {
			zone = z
		}
	}
	t, err = time.ParseInLocation(icalDateTime, value, zone)
	return t, false, err
}

func isDate(prop *ics.IANAProperty) bool {
	if values := prop.ICalParameters[string(ics.ParameterValue)]; len(values) > 0 {
		return strings.EqualFold(values[0], "DATE")
	}
	return len(strings.TrimSpace(prop.Value)) == len(icalDate)
}

func propertyIs(prop *ics.IANAProperty, value string) bool {
	return prop != nil && strings.EqualFold(strings.TrimSpace(prop.Value), value)
}
