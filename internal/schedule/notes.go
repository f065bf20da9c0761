package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"claimbot/internal/hoyolab"
)

// Re-check cadence for gauge thresholds. After a threshold fires it is
// silenced for an hour; when the gauge is within an hour of firing the
// watch tightens to ten minutes.
const (
	recheckFired = time.Hour
	recheckNear  = 10 * time.Minute
	recheckFar   = 30 * time.Minute
)

// NotesEvaluator runs one ThresholdWatch against a live notes snapshot.
type NotesEvaluator struct {
	client GameClient
	log    *slog.Logger
}

func NewNotesEvaluator(client GameClient, log *slog.Logger) *NotesEvaluator {
	return &NotesEvaluator{client: client, log: log.With(slog.String("comp", "notes"))}
}

// Evaluate fetches a single snapshot for the watch's game and runs every
// configured threshold in one pass. It returns the fired message lines
// and the entry's next due time, the minimum of all per-threshold next
// checks. Fired FixedTime thresholds have their CheckAt advanced in
// place; the caller persists the mutated watch.
func (ev *NotesEvaluator) Evaluate(ctx context.Context, cred hoyolab.Credential, watch *ThresholdWatch, now time.Time) ([]string, time.Time, error) {
	notes, err := ev.client.GetNotes(ctx, cred, watch.Game)
	if err != nil {
		return nil, time.Time{}, err
	}

	var fired []string
	var next time.Time
	consider := func(t time.Time) {
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}

	for res, spec := range watch.Thresholds {
		switch {
		case spec.HoursBefore != nil:
			line, at := ev.evalGauge(notes, res, *spec.HoursBefore, now)
			if line != "" {
				fired = append(fired, line)
			}
			consider(at)
		case spec.Fixed != nil:
			line, at := ev.evalFixed(notes, res, spec.Fixed, now)
			if line != "" {
				fired = append(fired, line)
			}
			consider(at)
		default:
			ev.log.Warn("threshold with no form, skipping",
				slog.Int64("owner", watch.Owner),
				slog.String("resource", string(res)))
		}
	}
	if next.IsZero() {
		next = now.Add(recheckFar)
	}
	return fired, next, nil
}

// evalGauge handles the hours-before-completion form. lead 0 means fire
// only once the gauge is full.
func (ev *NotesEvaluator) evalGauge(notes hoyolab.Notes, res hoyolab.Resource, hoursBefore int, now time.Time) (string, time.Time) {
	g, ok := notes.Gauges[res]
	if !ok {
		// Resource not present in the snapshot (feature locked on the
		// account). Keep the threshold dormant.
		return "", now.Add(recheckFar)
	}

	lead := time.Duration(hoursBefore) * time.Hour
	if g.TimeToFull <= lead {
		return renderGaugeLine(res, g), now.Add(recheckFired)
	}
	if g.TimeToFull-lead <= time.Hour {
		return "", now.Add(recheckNear)
	}
	return "", now.Add(recheckFar)
}

// evalFixed handles the wall-clock form: read the counter at CheckAt,
// then advance CheckAt to the next daily or weekly occurrence.
func (ev *NotesEvaluator) evalFixed(notes hoyolab.Notes, res hoyolab.Resource, f *FixedTime, now time.Time) (string, time.Time) {
	if now.Before(f.CheckAt) {
		return "", f.CheckAt
	}

	if f.Weekly {
		f.CheckAt = NextWeekly(now, time.Sunday, f.Hour, f.Minute)
	} else {
		f.CheckAt = NextDaily(now, f.Hour, f.Minute)
	}

	c, ok := notes.Counters[res]
	if !ok {
		return "", f.CheckAt
	}
	return renderCounterLine(res, c, f.Weekly), f.CheckAt
}

func renderGaugeLine(res hoyolab.Resource, g hoyolab.Gauge) string {
	if g.Full() {
		return fmt.Sprintf("🔔 %s is full (%d/%d)", res.Label(), g.Current, g.Max)
	}
	return fmt.Sprintf("🔔 %s: %d/%d, full in %s", res.Label(), g.Current, g.Max, fmtDuration(g.TimeToFull))
}

func renderCounterLine(res hoyolab.Resource, c hoyolab.Counter, weekly bool) string {
	period := "today"
	if weekly {
		period = "this week"
	}
	return fmt.Sprintf("📋 %s: %d/%d %s", res.Label(), c.Current, c.Max, period)
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
