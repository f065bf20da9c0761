package hoyolab

import "time"

// Game identifies a HoYoLAB game account scope.
type Game string

const (
	GameGenshin   Game = "genshin"
	GameHonkai3rd Game = "honkai3rd"
	GameStarrail  Game = "starrail"
	GameZZZ       Game = "zzz"
	GameThemis    Game = "themis"
	GameThemisTW  Game = "themis_tw"
)

// DisplayName returns the English title used in user-facing messages.
func (g Game) DisplayName() string {
	switch g {
	case GameGenshin:
		return "Genshin Impact"
	case GameHonkai3rd:
		return "Honkai Impact 3rd"
	case GameStarrail:
		return "Honkai: Star Rail"
	case GameZZZ:
		return "Zenless Zone Zero"
	case GameThemis:
		return "Tears of Themis"
	case GameThemisTW:
		return "Tears of Themis (TW)"
	}
	return string(g)
}

// ClaimGames lists every game with a daily check-in event.
func ClaimGames() []Game {
	return []Game{GameGenshin, GameHonkai3rd, GameStarrail, GameZZZ, GameThemis, GameThemisTW}
}

// NotesCapable reports whether the game exposes a real-time notes endpoint.
func (g Game) NotesCapable() bool {
	return g == GameGenshin || g == GameStarrail || g == GameZZZ
}

// Credential is one owner's API access material for a given game.
type Credential struct {
	Cookie string
	UID    int64
}

// DailyReward is the item granted by a successful check-in.
type DailyReward struct {
	Name   string
	Amount int
}

// GeetestChallenge carries an unsolved captcha challenge raised by the
// check-in endpoint.
type GeetestChallenge struct {
	GT        string
	Challenge string
}

// Resource names a monitored real-time notes counter.
type Resource string

const (
	// Genshin Impact
	ResourceResin         Resource = "resin"
	ResourceRealmCurrency Resource = "realm_currency"
	ResourceTransformer   Resource = "transformer"
	ResourceExpedition    Resource = "expedition"
	ResourceCommission    Resource = "commission"
	// Honkai: Star Rail
	ResourcePower         Resource = "power"
	ResourceDailyTraining Resource = "daily_training"
	ResourceUniverse      Resource = "simulated_universe"
	ResourceEchoOfWar     Resource = "echo_of_war"
	// Zenless Zone Zero
	ResourceBattery    Resource = "battery"
	ResourceEngagement Resource = "engagement"
)

// Label returns the English name shown in reminder messages.
func (r Resource) Label() string {
	switch r {
	case ResourceResin:
		return "Resin"
	case ResourceRealmCurrency:
		return "Realm Currency"
	case ResourceTransformer:
		return "Parametric Transformer"
	case ResourceExpedition:
		return "Expeditions"
	case ResourceCommission:
		return "Daily Commissions"
	case ResourcePower:
		return "Trailblaze Power"
	case ResourceDailyTraining:
		return "Daily Training"
	case ResourceUniverse:
		return "Simulated Universe"
	case ResourceEchoOfWar:
		return "Echo of War"
	case ResourceBattery:
		return "Battery Charge"
	case ResourceEngagement:
		return "Daily Engagement"
	}
	return string(r)
}

// Gauge is a regenerating capacity counter (resin-like). TimeToFull is zero
// when the gauge is full.
type Gauge struct {
	Current    int
	Max        int
	TimeToFull time.Duration
}

func (g Gauge) Full() bool { return g.TimeToFull <= 0 }

// Counter is a periodically-reset progress counter (commissions-like).
type Counter struct {
	Current int
	Max     int
}

// Notes is a normalized point-in-time snapshot of one game's real-time
// notes. Gauges hold regenerating resources keyed by Resource; Counters
// hold daily/weekly progress counters.
type Notes struct {
	Game     Game
	Gauges   map[Resource]Gauge
	Counters map[Resource]Counter
}
