package repository

import (
	"testing"
	"time"

	"readerhub/pkg/interval"
	"readerhub/pkg/model"
)

func slot(start, end string) *model.Slot {
	day := "2026-05-04T"
	s, _ := time.Parse(time.RFC3339, day+start+":00Z")
	e, _ := time.Parse(time.RFC3339, day+end+":00Z")
	return &model.Slot{StartTime: s, EndTime: e}
}

func iv(start, end string) interval.Interval {
	s := slot(start, end)
	return s.Interval()
}

func TestCovers(t *testing.T) {
	tests := []struct {
		name  string
		slots []*model.Slot
		iv    interval.Interval
		want  bool
	}{
		{
			name:  "single exact slot",
			slots: []*model.Slot{slot("09:00", "09:15")},
			iv:    iv("09:00", "09:15"),
			want:  true,
		},
		{
			name:  "contiguous run out of order",
			slots: []*model.Slot{slot("09:15", "09:30"), slot("09:00", "09:15")},
			iv:    iv("09:00", "09:30"),
			want:  true,
		},
		{
			name:  "gap in the middle",
			slots: []*model.Slot{slot("09:00", "09:15"), slot("09:30", "09:45")},
			iv:    iv("09:00", "09:45"),
			want:  false,
		},
		{
			name:  "does not reach the end",
			slots: []*model.Slot{slot("09:00", "09:15")},
			iv:    iv("09:00", "09:30"),
			want:  false,
		},
		{
			name:  "starts late",
			slots: []*model.Slot{slot("09:15", "09:30")},
			iv:    iv("09:00", "09:30"),
			want:  false,
		},
		{
			name:  "overlapping extra slot",
			slots: []*model.Slot{slot("09:00", "09:30"), slot("09:15", "09:30")},
			iv:    iv("09:00", "09:30"),
			want:  false,
		},
		{
			name: "no slots",
			iv:   iv("09:00", "09:30"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Covers(tt.slots, tt.iv); got != tt.want {
				t.Errorf("Covers() = %v, want %v", got, tt.want)
			}
		})
	}
}
