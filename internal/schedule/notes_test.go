package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"claimbot/internal/hoyolab"
)

func intp(v int) *int { return &v }

func gaugeNotes(res hoyolab.Resource, g hoyolab.Gauge) hoyolab.Notes {
	return hoyolab.Notes{
		Game:     hoyolab.GameGenshin,
		Gauges:   map[hoyolab.Resource]hoyolab.Gauge{res: g},
		Counters: map[hoyolab.Resource]hoyolab.Counter{},
	}
}

func TestEvaluateGaugeThreshold(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		hoursBefore int
		gauge       hoyolab.Gauge
		wantFire    bool
		wantNext    time.Duration
	}{
		{
			name:        "zero lead fires only when full",
			hoursBefore: 0,
			gauge:       hoyolab.Gauge{Current: 200, Max: 200, TimeToFull: 0},
			wantFire:    true,
			wantNext:    recheckFired,
		},
		{
			name:        "zero lead one hour out stays quiet but tightens",
			hoursBefore: 0,
			gauge:       hoyolab.Gauge{Current: 190, Max: 200, TimeToFull: time.Hour},
			wantFire:    false,
			wantNext:    recheckNear,
		},
		{
			name:        "zero lead far out",
			hoursBefore: 0,
			gauge:       hoyolab.Gauge{Current: 40, Max: 200, TimeToFull: 20 * time.Hour},
			wantFire:    false,
			wantNext:    recheckFar,
		},
		{
			name:        "lead two hours fires inside window",
			hoursBefore: 2,
			gauge:       hoyolab.Gauge{Current: 180, Max: 200, TimeToFull: 90 * time.Minute},
			wantFire:    true,
			wantNext:    recheckFired,
		},
		{
			name:        "lead two hours just outside window",
			hoursBefore: 2,
			gauge:       hoyolab.Gauge{Current: 150, Max: 200, TimeToFull: 150 * time.Minute},
			wantFire:    false,
			wantNext:    recheckNear,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeClient{notesFn: func(hoyolab.Game) (hoyolab.Notes, error) {
				return gaugeNotes(hoyolab.ResourceResin, tc.gauge), nil
			}}
			ev := NewNotesEvaluator(fc, testLogger())

			watch := ThresholdWatch{
				Owner: 1, Game: hoyolab.GameGenshin,
				Thresholds: map[hoyolab.Resource]ThresholdSpec{
					hoyolab.ResourceResin: {HoursBefore: intp(tc.hoursBefore)},
				},
			}
			fired, next, err := ev.Evaluate(context.Background(), hoyolab.Credential{}, &watch, now)
			if err != nil {
				t.Fatal(err)
			}
			if (len(fired) > 0) != tc.wantFire {
				t.Fatalf("fired = %q, wantFire = %v", fired, tc.wantFire)
			}
			if want := now.Add(tc.wantNext); !next.Equal(want) {
				t.Fatalf("next = %v, want %v", next, want)
			}
		})
	}
}

func TestEvaluateFixedDailyAdvancesCheckAt(t *testing.T) {
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	fc := &fakeClient{notesFn: func(hoyolab.Game) (hoyolab.Notes, error) {
		return hoyolab.Notes{
			Game:   hoyolab.GameGenshin,
			Gauges: map[hoyolab.Resource]hoyolab.Gauge{},
			Counters: map[hoyolab.Resource]hoyolab.Counter{
				hoyolab.ResourceCommission: {Current: 3, Max: 4},
			},
		}, nil
	}}
	ev := NewNotesEvaluator(fc, testLogger())

	watch := ThresholdWatch{
		Owner: 1, Game: hoyolab.GameGenshin,
		Thresholds: map[hoyolab.Resource]ThresholdSpec{
			hoyolab.ResourceCommission: {Fixed: &FixedTime{
				Hour: 20, Minute: 0,
				CheckAt: now.Add(-time.Minute),
			}},
		},
	}
	fired, next, err := ev.Evaluate(context.Background(), hoyolab.Credential{}, &watch, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 1 || !strings.Contains(fired[0], "3/4 today") {
		t.Fatalf("fired = %q", fired)
	}

	wantNext := time.Date(2025, 3, 11, 20, 0, 0, 0, time.UTC)
	if !next.Equal(wantNext) {
		t.Fatalf("next = %v, want %v", next, wantNext)
	}
	got := watch.Thresholds[hoyolab.ResourceCommission].Fixed.CheckAt
	if !got.Equal(wantNext) {
		t.Fatalf("CheckAt = %v, want advanced to %v", got, wantNext)
	}
}

func TestEvaluateFixedWeeklyLandsOnSunday(t *testing.T) {
	// Monday.
	now := time.Date(2025, 3, 10, 21, 0, 0, 0, time.UTC)
	fc := &fakeClient{notesFn: func(hoyolab.Game) (hoyolab.Notes, error) {
		return hoyolab.Notes{
			Game:   hoyolab.GameStarrail,
			Gauges: map[hoyolab.Resource]hoyolab.Gauge{},
			Counters: map[hoyolab.Resource]hoyolab.Counter{
				hoyolab.ResourceEchoOfWar: {Current: 1, Max: 3},
			},
		}, nil
	}}
	ev := NewNotesEvaluator(fc, testLogger())

	watch := ThresholdWatch{
		Owner: 1, Game: hoyolab.GameStarrail,
		Thresholds: map[hoyolab.Resource]ThresholdSpec{
			hoyolab.ResourceEchoOfWar: {Fixed: &FixedTime{
				Hour: 21, Minute: 0, Weekly: true,
				CheckAt: now,
			}},
		},
	}
	fired, next, err := ev.Evaluate(context.Background(), hoyolab.Credential{}, &watch, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 1 || !strings.Contains(fired[0], "this week") {
		t.Fatalf("fired = %q", fired)
	}
	if next.Weekday() != time.Sunday {
		t.Fatalf("next lands on %v, want Sunday", next.Weekday())
	}
	if !next.After(now) || next.Sub(now) > 7*24*time.Hour {
		t.Fatalf("next = %v outside (0, 7d] of now", next)
	}
}

func TestEvaluateNextIsMinAcrossThresholds(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	futureCheck := now.Add(5 * time.Minute)

	fc := &fakeClient{notesFn: func(hoyolab.Game) (hoyolab.Notes, error) {
		return hoyolab.Notes{
			Game: hoyolab.GameGenshin,
			Gauges: map[hoyolab.Resource]hoyolab.Gauge{
				hoyolab.ResourceResin: {Current: 40, Max: 200, TimeToFull: 20 * time.Hour},
			},
			Counters: map[hoyolab.Resource]hoyolab.Counter{},
		}, nil
	}}
	ev := NewNotesEvaluator(fc, testLogger())

	watch := ThresholdWatch{
		Owner: 1, Game: hoyolab.GameGenshin,
		Thresholds: map[hoyolab.Resource]ThresholdSpec{
			hoyolab.ResourceResin: {HoursBefore: intp(0)}, // would re-check in 30m
			hoyolab.ResourceCommission: {Fixed: &FixedTime{
				Hour: 12, Minute: 5, CheckAt: futureCheck,
			}},
		},
	}
	_, next, err := ev.Evaluate(context.Background(), hoyolab.Credential{}, &watch, now)
	if err != nil {
		t.Fatal(err)
	}
	if !next.Equal(futureCheck) {
		t.Fatalf("next = %v, want the earlier fixed check %v", next, futureCheck)
	}
}

func TestEvaluateMissingGaugeStaysDormant(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	fc := &fakeClient{notesFn: func(hoyolab.Game) (hoyolab.Notes, error) {
		// Realm currency locked on this account: no gauge in the snapshot.
		return gaugeNotes(hoyolab.ResourceResin, hoyolab.Gauge{Current: 10, Max: 200, TimeToFull: 23 * time.Hour}), nil
	}}
	ev := NewNotesEvaluator(fc, testLogger())

	watch := ThresholdWatch{
		Owner: 1, Game: hoyolab.GameGenshin,
		Thresholds: map[hoyolab.Resource]ThresholdSpec{
			hoyolab.ResourceRealmCurrency: {HoursBefore: intp(0)},
		},
	}
	fired, next, err := ev.Evaluate(context.Background(), hoyolab.Credential{}, &watch, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 0 {
		t.Fatalf("fired = %q, want none", fired)
	}
	if want := now.Add(recheckFar); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestEvaluateFetchErrorPropagates(t *testing.T) {
	boom := errors.New("upstream down")
	fc := &fakeClient{notesFn: func(hoyolab.Game) (hoyolab.Notes, error) {
		return hoyolab.Notes{}, boom
	}}
	ev := NewNotesEvaluator(fc, testLogger())

	watch := ThresholdWatch{Owner: 1, Game: hoyolab.GameGenshin}
	_, _, err := ev.Evaluate(context.Background(), hoyolab.Credential{}, &watch, time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped fetch error", err)
	}
}
