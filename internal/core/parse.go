package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"claimbot/internal/hoyolab"
	"claimbot/internal/schedule"
)

// parseHourMinute accepts "HH:MM" and the compact "HHMM" form.
func parseHourMinute(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	var hh, mm string
	switch {
	case strings.Contains(s, ":"):
		parts := strings.SplitN(s, ":", 2)
		hh, mm = parts[0], parts[1]
	case len(s) == 4:
		hh, mm = s[:2], s[2:]
	case len(s) == 3:
		hh, mm = s[:1], s[1:]
	default:
		return 0, 0, fmt.Errorf("invalid time %q, use HH:MM", s)
	}

	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

func parseGame(s string) (hoyolab.Game, error) {
	g := hoyolab.Game(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range hoyolab.ClaimGames() {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown game %q", s)
}

func parseGames(args []string) ([]hoyolab.Game, bool, error) {
	var games []hoyolab.Game
	mention := false
	seen := map[hoyolab.Game]bool{}
	for _, a := range args {
		if strings.EqualFold(a, "mention") {
			mention = true
			continue
		}
		g, err := parseGame(a)
		if err != nil {
			return nil, false, err
		}
		if !seen[g] {
			seen[g] = true
			games = append(games, g)
		}
	}
	if len(games) == 0 {
		return nil, false, fmt.Errorf("at least one game is required")
	}
	return games, mention, nil
}

// maxLeadHours caps the hours-before value per gauge resource, matching
// how long each resource takes to regenerate.
var maxLeadHours = map[hoyolab.Resource]int{
	hoyolab.ResourceResin:         8,
	hoyolab.ResourceRealmCurrency: 24,
	hoyolab.ResourceTransformer:   5,
	hoyolab.ResourceExpedition:    5,
	hoyolab.ResourcePower:         8,
	hoyolab.ResourceBattery:       8,
}

// weeklyResources fire on Sundays; other fixed resources fire daily.
var weeklyResources = map[hoyolab.Resource]bool{
	hoyolab.ResourceUniverse:  true,
	hoyolab.ResourceEchoOfWar: true,
}

// gameResources lists which resources each notes-capable game exposes.
var gameResources = map[hoyolab.Game][]hoyolab.Resource{
	hoyolab.GameGenshin: {
		hoyolab.ResourceResin, hoyolab.ResourceRealmCurrency,
		hoyolab.ResourceTransformer, hoyolab.ResourceExpedition,
		hoyolab.ResourceCommission,
	},
	hoyolab.GameStarrail: {
		hoyolab.ResourcePower, hoyolab.ResourceExpedition,
		hoyolab.ResourceDailyTraining, hoyolab.ResourceUniverse,
		hoyolab.ResourceEchoOfWar,
	},
	hoyolab.GameZZZ: {
		hoyolab.ResourceBattery, hoyolab.ResourceEngagement,
	},
}

func resourceForGame(game hoyolab.Game, name string) (hoyolab.Resource, error) {
	want := hoyolab.Resource(strings.ToLower(strings.TrimSpace(name)))
	for _, r := range gameResources[game] {
		if r == want {
			return r, nil
		}
	}
	return "", fmt.Errorf("%s has no resource %q", game.DisplayName(), name)
}

// parseThresholds turns "resource=value" arguments into threshold specs.
// Gauge resources take an hours-before-full number; fixed resources take
// a wall-clock time (HH:MM or HHMM). A bare "mention" token tags the
// owner on every reminder.
func parseThresholds(game hoyolab.Game, args []string, now time.Time) (map[hoyolab.Resource]schedule.ThresholdSpec, bool, error) {
	specs := map[hoyolab.Resource]schedule.ThresholdSpec{}
	mention := false

	for _, a := range args {
		if strings.EqualFold(a, "mention") {
			mention = true
			continue
		}
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return nil, false, fmt.Errorf("expected resource=value, got %q", a)
		}
		res, err := resourceForGame(game, k)
		if err != nil {
			return nil, false, err
		}

		if maxHours, gauge := maxLeadHours[res]; gauge {
			hours, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, false, fmt.Errorf("%s: hours must be a number, got %q", res, v)
			}
			if hours < 0 || hours > maxHours {
				return nil, false, fmt.Errorf("%s: hours must be within 0-%d", res, maxHours)
			}
			h := hours
			specs[res] = schedule.ThresholdSpec{HoursBefore: &h}
			continue
		}

		h, m, err := parseHourMinute(v)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %v", res, err)
		}
		weekly := weeklyResources[res]
		var checkAt time.Time
		if weekly {
			checkAt = schedule.NextWeekly(now, time.Sunday, h, m)
		} else {
			checkAt = schedule.NextDaily(now, h, m)
		}
		specs[res] = schedule.ThresholdSpec{Fixed: &schedule.FixedTime{
			Hour: h, Minute: m, Weekly: weekly, CheckAt: checkAt,
		}}
	}

	if len(specs) == 0 {
		return nil, false, fmt.Errorf("at least one resource=value threshold is required")
	}
	return specs, mention, nil
}
