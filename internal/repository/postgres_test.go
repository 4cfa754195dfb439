package repository

import (
	"testing"
	"time"
)

func TestOrderDate(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name       string
		now        time.Time
		wantDay    string
		wantYYMMDD string
	}{
		{
			name:       "midday utc",
			now:        time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
			wantDay:    "2026-08-29",
			wantYYMMDD: "260829",
		},
		{
			name:       "just after midnight local",
			now:        time.Date(2026, 8, 30, 0, 0, 1, 0, kolkata),
			wantDay:    "2026-08-30",
			wantYYMMDD: "260830",
		},
		{
			name:       "just before midnight local",
			now:        time.Date(2026, 8, 29, 23, 59, 59, 0, kolkata),
			wantDay:    "2026-08-29",
			wantYYMMDD: "260829",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day, yymmdd := orderDate(tt.now)
			if day != tt.wantDay {
				t.Fatalf("day = %q, want %q", day, tt.wantDay)
			}
			if yymmdd != tt.wantYYMMDD {
				t.Fatalf("yymmdd = %q, want %q", yymmdd, tt.wantYYMMDD)
			}
			// the counter key and the printed date must name the same day
			if got := day[2:4] + day[5:7] + day[8:10]; got != yymmdd {
				t.Fatalf("counter day %q and number date %q disagree", day, yymmdd)
			}
		})
	}
}
