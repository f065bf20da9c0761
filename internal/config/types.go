package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Hoyolab   HoyolabConfig   `json:"hoyolab"`
	Storage   StorageConfig   `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// OwnerUserIDs may run administrative commands (removing other
	// users' schedule entries).
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the task clock.
//
// All durations are Go duration strings (e.g. "30s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "1m"
//   - workers: 4
//   - tick_timeout: "5m"
//   - claim_retry_max: 5
//   - claim_retry_delay: "1s"
type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	TickInterval string `json:"tick_interval,omitempty"`
	Workers      int    `json:"workers,omitempty"`

	// TickTimeout bounds one full scan+dispatch+settle cycle. Workers that
	// do not finish within it are abandoned and retried on the next scan.
	TickTimeout string `json:"tick_timeout,omitempty"`

	// Timezone is the IANA location used for all clock-time rules,
	// e.g. "Asia/Taipei". Empty means the system local time.
	Timezone string `json:"timezone,omitempty"`

	ClaimRetryMax   int    `json:"claim_retry_max,omitempty"`
	ClaimRetryDelay string `json:"claim_retry_delay,omitempty"`
}

// HoyolabConfig controls the remote API client.
type HoyolabConfig struct {
	// SolverBaseURL, when set, is used to build captcha hand-off links.
	// Empty disables captcha-assisted claiming.
	SolverBaseURL string `json:"solver_base_url,omitempty"`

	// RequestTimeout is a Go duration string. Default "15s".
	RequestTimeout string `json:"request_timeout,omitempty"`

	// RatePerSec caps outbound API calls. Default 5.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./claimbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
