package config

import (
	"testing"
	"time"
)

func TestParseFreezeWindows(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "blank", input: "   ", want: 0},
		{
			name:  "single window",
			input: "2026-06-01T00:00:00Z..2026-08-31T23:59:59Z",
			want:  1,
		},
		{
			name:  "two windows with spaces",
			input: "2026-06-01T00:00:00Z..2026-08-31T23:59:59Z, 2026-12-20T00:00:00Z..2027-01-06T23:59:59Z",
			want:  2,
		},
		{name: "missing end", input: "2026-06-01T00:00:00Z", wantErr: true},
		{name: "bad timestamp", input: "june..august", wantErr: true},
		{name: "end before start", input: "2026-08-31T00:00:00Z..2026-06-01T00:00:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows, err := ParseFreezeWindows(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(windows) != tt.want {
				t.Fatalf("expected %d windows, got %d", tt.want, len(windows))
			}
		})
	}
}

func TestParseFreezeWindowsBounds(t *testing.T) {
	windows, err := ParseFreezeWindows("2026-06-01T00:00:00Z..2026-08-31T23:59:59Z")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	wantStart := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)
	if !windows[0].Start.Equal(wantStart) || !windows[0].End.Equal(wantEnd) {
		t.Errorf("expected %v..%v, got %v..%v", wantStart, wantEnd, windows[0].Start, windows[0].End)
	}
}
