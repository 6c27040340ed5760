package calendars

import (
	"strings"
	"testing"
	"time"

	"readerhub/pkg/interval"
)

func calendar(events ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	for _, e := range events {
		b.WriteString("BEGIN:VEVENT\r\n")
		b.WriteString(e)
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load %s: %v", name, err)
	}
	return loc
}

func TestParseBusy_TimeForms(t *testing.T) {
	newYork := mustLoad(t, "America/New_York")
	berlin := mustLoad(t, "Europe/Berlin")

	tests := []struct {
		name  string
		event string
		want  interval.Interval
	}{
		{
			name:  "utc",
			event: "UID:1\r\nDTSTART:20300507T130000Z\r\nDTEND:20300507T140000Z\r\n",
			want: interval.Interval{
				Start: time.Date(2030, 5, 7, 13, 0, 0, 0, time.UTC),
				End:   time.Date(2030, 5, 7, 14, 0, 0, 0, time.UTC),
			},
		},
		{
			name:  "tzid",
			event: "UID:2\r\nDTSTART;TZID=Europe/Berlin:20300507T090000\r\nDTEND;TZID=Europe/Berlin:20300507T100000\r\n",
			want: interval.Interval{
				Start: time.Date(2030, 5, 7, 9, 0, 0, 0, berlin).UTC(),
				End:   time.Date(2030, 5, 7, 10, 0, 0, 0, berlin).UTC(),
			},
		},
		{
			name:  "floating uses provider zone",
			event: "UID:3\r\nDTSTART:20300507T090000\r\nDTEND:20300507T093000\r\n",
			want: interval.Interval{
				Start: time.Date(2030, 5, 7, 9, 0, 0, 0, newYork).UTC(),
				End:   time.Date(2030, 5, 7, 9, 30, 0, 0, newYork).UTC(),
			},
		},
		{
			name:  "all day without end",
			event: "UID:4\r\nDTSTART;VALUE=DATE:20300507\r\n",
			want: interval.Interval{
				Start: time.Date(2030, 5, 7, 0, 0, 0, 0, newYork).UTC(),
				End:   time.Date(2030, 5, 8, 0, 0, 0, 0, newYork).UTC(),
			},
		},
		{
			name:  "unknown tzid falls back to provider zone",
			event: "UID:5\r\nDTSTART;TZID=Mars/Olympus:20300507T090000\r\nDTEND;TZID=Mars/Olympus:20300507T100000\r\n",
			want: interval.Interval{
				Start: time.Date(2030, 5, 7, 9, 0, 0, 0, newYork).UTC(),
				End:   time.Date(2030, 5, 7, 10, 0, 0, 0, newYork).UTC(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			busy, err := ParseBusy(strings.NewReader(calendar(tt.event)), newYork)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(busy) != 1 {
				t.Fatalf("expected 1 interval, got %d", len(busy))
			}
			if !busy[0].Start.Equal(tt.want.Start) || !busy[0].End.Equal(tt.want.End) {
				t.Errorf("expected %s, got %s", tt.want, busy[0])
			}
			if busy[0].Start.Location() != time.UTC {
				t.Errorf("expected UTC result, got %s", busy[0].Start.Location())
			}
		})
	}
}

func TestParseBusy_SkipsNonBusyEvents(t *testing.T) {
	body := calendar(
		"UID:cancelled\r\nSTATUS:CANCELLED\r\nDTSTART:20300507T130000Z\r\nDTEND:20300507T140000Z\r\n",
		"UID:free\r\nTRANSP:TRANSPARENT\r\nDTSTART:20300507T130000Z\r\nDTEND:20300507T140000Z\r\n",
		"UID:no-end\r\nDTSTART:20300507T130000Z\r\n",
		"UID:backwards\r\nDTSTART:20300507T140000Z\r\nDTEND:20300507T130000Z\r\n",
		"UID:garbage\r\nDTSTART:tomorrow\r\nDTEND:20300507T130000Z\r\n",
		"UID:busy\r\nTRANSP:OPAQUE\r\nSTATUS:CONFIRMED\r\nDTSTART:20300507T150000Z\r\nDTEND:20300507T160000Z\r\n",
	)

	busy, err := ParseBusy(strings.NewReader(body), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(busy) != 1 {
		t.Fatalf("expected only the busy event, got %d: %v", len(busy), busy)
	}
	if busy[0].Start.Hour() != 15 {
		t.Errorf("kept the wrong event: %s", busy[0])
	}
}

func TestParseBusy_Malformed(t *testing.T) {
	if _, err := ParseBusy(strings.NewReader("<html>not a calendar</html>\n"), time.UTC); err == nil {
		t.Fatal("expected parse error")
	}
}
