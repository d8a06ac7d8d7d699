package services

import (
	"context"
	"testing"
	"time"

	"eventsignup/internal/domain"
)

var clockBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPenaltyClockDelay(t *testing.T) {
	clock := NewPenaltyClock(&memPenalties{}, 30*24*time.Hour, nil)

	tests := []struct {
		name    string
		weight  int
		delay   time.Duration
		blocked bool
	}{
		{name: "no weight", weight: 0, delay: 0, blocked: false},
		{name: "weight one", weight: 1, delay: 3 * time.Hour, blocked: false},
		{name: "weight two", weight: 2, delay: 12 * time.Hour, blocked: false},
		{name: "weight three blocks", weight: 3, delay: 0, blocked: true},
		{name: "weight beyond threshold blocks", weight: 7, delay: 0, blocked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, blocked := clock.Delay(tt.weight)
			if delay != tt.delay {
				t.Errorf("expected delay %v, got %v", tt.delay, delay)
			}
			if blocked != tt.blocked {
				t.Errorf("expected blocked %v, got %v", tt.blocked, blocked)
			}
		})
	}
}

func TestPenaltyClockEarliestRegistration(t *testing.T) {
	clock := NewPenaltyClock(&memPenalties{}, 30*24*time.Hour, nil)
	activation := clockBase

	tests := []struct {
		name   string
		weight int
		ref    time.Time
		want   time.Time
	}{
		{
			name:   "no penalty stays at activation",
			weight: 0,
			ref:    clockBase.Add(-time.Hour),
			want:   activation,
		},
		{
			name:   "delay shorter than activation gap",
			weight: 1,
			ref:    clockBase.Add(-24 * time.Hour),
			want:   activation,
		},
		{
			name:   "delay pushes past activation",
			weight: 2,
			ref:    clockBase,
			want:   activation.Add(12 * time.Hour),
		},
		{
			name:   "blocked weight falls back to activation",
			weight: 3,
			ref:    clockBase,
			want:   activation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clock.EarliestRegistration(activation, tt.weight, tt.ref)
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPenaltyClockExpiresAt(t *testing.T) {
	expiry := 10 * 24 * time.Hour
	createdAt := clockBase

	tests := []struct {
		name    string
		freezes []domain.FreezeWindow
		want    time.Time
	}{
		{
			name: "no freeze windows",
			want: createdAt.Add(expiry),
		},
		{
			name: "window before creation is ignored",
			freezes: []domain.FreezeWindow{
				{Start: createdAt.Add(-48 * time.Hour), End: createdAt.Add(-24 * time.Hour)},
			},
			want: createdAt.Add(expiry),
		},
		{
			name: "window inside the countdown pushes expiry by its length",
			freezes: []domain.FreezeWindow{
				{Start: createdAt.Add(24 * time.Hour), End: createdAt.Add(72 * time.Hour)},
			},
			want: createdAt.Add(expiry).Add(48 * time.Hour),
		},
		{
			name: "window straddling the naive expiry pauses the countdown",
			freezes: []domain.FreezeWindow{
				{Start: createdAt.Add(9 * 24 * time.Hour), End: createdAt.Add(14 * 24 * time.Hour)},
			},
			// Nine days run before the window, the last day completes after it.
			want: createdAt.Add(15 * 24 * time.Hour),
		},
		{
			name: "window containing the creation instant defers the whole countdown",
			freezes: []domain.FreezeWindow{
				{Start: createdAt.Add(-24 * time.Hour), End: createdAt.Add(48 * time.Hour)},
			},
			want: createdAt.Add(48 * time.Hour).Add(expiry),
		},
		{
			name: "overlapping windows are merged",
			freezes: []domain.FreezeWindow{
				{Start: createdAt.Add(24 * time.Hour), End: createdAt.Add(72 * time.Hour)},
				{Start: createdAt.Add(48 * time.Hour), End: createdAt.Add(96 * time.Hour)},
			},
			want: createdAt.Add(expiry).Add(72 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewPenaltyClock(&memPenalties{}, expiry, tt.freezes)
			got := clock.ExpiresAt(createdAt)
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPenaltyClockActiveWeight(t *testing.T) {
	expiry := 30 * 24 * time.Hour
	penalties := &memPenalties{byUser: map[string][]*domain.Penalty{
		"user-1": {
			{UserID: "user-1", Weight: 1, CreatedAt: clockBase.Add(-60 * 24 * time.Hour)},
			{UserID: "user-1", Weight: 1, CreatedAt: clockBase.Add(-10 * 24 * time.Hour)},
			{UserID: "user-1", Weight: 2, CreatedAt: clockBase.Add(-24 * time.Hour)},
		},
	}}
	clock := NewPenaltyClock(penalties, expiry, nil)

	weight, err := clock.ActiveWeight(context.Background(), "user-1", clockBase)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if weight != 3 {
		t.Errorf("expected active weight 3, got %d", weight)
	}

	weight, err = clock.ActiveWeight(context.Background(), "user-2", clockBase)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if weight != 0 {
		t.Errorf("expected active weight 0 for unknown user, got %d", weight)
	}
}

func TestPenaltyClockFreezeExtendsActiveWeight(t *testing.T) {
	expiry := 10 * 24 * time.Hour
	createdAt := clockBase.Add(-12 * 24 * time.Hour)
	penalties := &memPenalties{byUser: map[string][]*domain.Penalty{
		"user-1": {{UserID: "user-1", Weight: 2, CreatedAt: createdAt}},
	}}

	// Without the freeze the penalty expired two days ago.
	plain := NewPenaltyClock(penalties, expiry, nil)
	weight, err := plain.ActiveWeight(context.Background(), "user-1", clockBase)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if weight != 0 {
		t.Errorf("expected expired penalty to carry no weight, got %d", weight)
	}

	frozen := NewPenaltyClock(penalties, expiry, []domain.FreezeWindow{
		{Start: createdAt.Add(24 * time.Hour), End: createdAt.Add(5 * 24 * time.Hour)},
	})
	weight, err = frozen.ActiveWeight(context.Background(), "user-1", clockBase)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if weight != 2 {
		t.Errorf("expected frozen countdown to keep the penalty active, got weight %d", weight)
	}
}
