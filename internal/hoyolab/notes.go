package hoyolab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultRecordBase = "https://bbs-api-os.hoyolab.com/game_record"
	defaultBBSBase    = "https://bbs-api-os.hoyolab.com"
)

// GetNotes fetches and normalizes one game's real-time notes snapshot.
// Only notes-capable games (genshin, starrail, zzz) are valid.
func (c *Client) GetNotes(ctx context.Context, cred Credential, game Game) (Notes, error) {
	switch game {
	case GameGenshin:
		return c.genshinNotes(ctx, cred)
	case GameStarrail:
		return c.starrailNotes(ctx, cred)
	case GameZZZ:
		return c.zzzNotes(ctx, cred)
	default:
		return Notes{}, fmt.Errorf("game %q has no real-time notes", game)
	}
}

func (c *Client) genshinNotes(ctx context.Context, cred Credential) (Notes, error) {
	url := fmt.Sprintf("%s/genshin/api/dailyNote?role_id=%d&server=%s",
		c.recordBase, cred.UID, genshinServer(cred.UID))
	data, err := c.call(ctx, http.MethodGet, url, cred, nil, nil)
	if err != nil {
		return Notes{}, err
	}

	var raw struct {
		CurrentResin         int       `json:"current_resin"`
		MaxResin             int       `json:"max_resin"`
		ResinRecoveryTime    secString `json:"resin_recovery_time"`
		CurrentHomeCoin      int       `json:"current_home_coin"`
		MaxHomeCoin          int       `json:"max_home_coin"`
		HomeCoinRecoveryTime secString `json:"home_coin_recovery_time"`
		FinishedTaskNum      int       `json:"finished_task_num"`
		TotalTaskNum         int       `json:"total_task_num"`
		MaxExpeditionNum     int       `json:"max_expedition_num"`
		Expeditions          []struct {
			Status       string    `json:"status"`
			RemainedTime secString `json:"remained_time"`
		} `json:"expeditions"`
		Transformer struct {
			Obtained     bool `json:"obtained"`
			RecoveryTime struct {
				Day     int  `json:"Day"`
				Hour    int  `json:"Hour"`
				Minute  int  `json:"Minute"`
				Second  int  `json:"Second"`
				Reached bool `json:"reached"`
			} `json:"recovery_time"`
		} `json:"transformer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Notes{}, fmt.Errorf("parse genshin notes: %w", err)
	}

	n := Notes{
		Game:     GameGenshin,
		Gauges:   map[Resource]Gauge{},
		Counters: map[Resource]Counter{},
	}
	n.Gauges[ResourceResin] = Gauge{
		Current:    raw.CurrentResin,
		Max:        raw.MaxResin,
		TimeToFull: raw.ResinRecoveryTime.Duration(),
	}
	if raw.MaxHomeCoin > 0 {
		n.Gauges[ResourceRealmCurrency] = Gauge{
			Current:    raw.CurrentHomeCoin,
			Max:        raw.MaxHomeCoin,
			TimeToFull: raw.HomeCoinRecoveryTime.Duration(),
		}
	}
	if raw.Transformer.Obtained {
		t := raw.Transformer.RecoveryTime
		var left time.Duration
		if !t.Reached {
			left = time.Duration(t.Day)*24*time.Hour +
				time.Duration(t.Hour)*time.Hour +
				time.Duration(t.Minute)*time.Minute +
				time.Duration(t.Second)*time.Second
		}
		ready := 0
		if t.Reached {
			ready = 1
		}
		n.Gauges[ResourceTransformer] = Gauge{Current: ready, Max: 1, TimeToFull: left}
	}
	if raw.MaxExpeditionNum > 0 {
		done := 0
		var longest time.Duration
		for _, e := range raw.Expeditions {
			if e.Status == "Finished" {
				done++
				continue
			}
			if d := e.RemainedTime.Duration(); d > longest {
				longest = d
			}
		}
		n.Gauges[ResourceExpedition] = Gauge{Current: done, Max: len(raw.Expeditions), TimeToFull: longest}
	}
	n.Counters[ResourceCommission] = Counter{Current: raw.FinishedTaskNum, Max: raw.TotalTaskNum}
	return n, nil
}

func (c *Client) starrailNotes(ctx context.Context, cred Credential) (Notes, error) {
	url := fmt.Sprintf("%s/hkrpg/api/note?role_id=%d&server=%s",
		c.recordBase, cred.UID, starrailServer(cred.UID))
	data, err := c.call(ctx, http.MethodGet, url, cred, nil, nil)
	if err != nil {
		return Notes{}, err
	}

	var raw struct {
		CurrentStamina     int `json:"current_stamina"`
		MaxStamina         int `json:"max_stamina"`
		StaminaRecoverTime int `json:"stamina_recover_time"`
		TotalExpeditionNum int `json:"total_expedition_num"`
		Expeditions        []struct {
			Status        string `json:"status"`
			RemainingTime int    `json:"remaining_time"`
		} `json:"expeditions"`
		CurrentTrainScore int `json:"current_train_score"`
		MaxTrainScore     int `json:"max_train_score"`
		CurrentRogueScore int `json:"current_rogue_score"`
		MaxRogueScore     int `json:"max_rogue_score"`
		WeeklyCocoonCnt   int `json:"weekly_cocoon_cnt"`
		WeeklyCocoonLimit int `json:"weekly_cocoon_limit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Notes{}, fmt.Errorf("parse starrail notes: %w", err)
	}

	n := Notes{
		Game:     GameStarrail,
		Gauges:   map[Resource]Gauge{},
		Counters: map[Resource]Counter{},
	}
	n.Gauges[ResourcePower] = Gauge{
		Current:    raw.CurrentStamina,
		Max:        raw.MaxStamina,
		TimeToFull: time.Duration(raw.StaminaRecoverTime) * time.Second,
	}
	if raw.TotalExpeditionNum > 0 {
		done := 0
		var longest time.Duration
		for _, e := range raw.Expeditions {
			if e.Status == "Finished" {
				done++
				continue
			}
			if d := time.Duration(e.RemainingTime) * time.Second; d > longest {
				longest = d
			}
		}
		n.Gauges[ResourceExpedition] = Gauge{Current: done, Max: len(raw.Expeditions), TimeToFull: longest}
	}
	n.Counters[ResourceDailyTraining] = Counter{Current: raw.CurrentTrainScore, Max: raw.MaxTrainScore}
	n.Counters[ResourceUniverse] = Counter{Current: raw.CurrentRogueScore, Max: raw.MaxRogueScore}
	n.Counters[ResourceEchoOfWar] = Counter{Current: raw.WeeklyCocoonCnt, Max: raw.WeeklyCocoonLimit}
	return n, nil
}

func (c *Client) zzzNotes(ctx context.Context, cred Credential) (Notes, error) {
	url := fmt.Sprintf("%s/zzz/api/note?role_id=%d&server=%s",
		c.recordBase, cred.UID, zzzServer(cred.UID))
	data, err := c.call(ctx, http.MethodGet, url, cred, nil, nil)
	if err != nil {
		return Notes{}, err
	}

	var raw struct {
		Energy struct {
			Progress struct {
				Current int `json:"current"`
				Max     int `json:"max"`
			} `json:"progress"`
			Restore int `json:"restore"`
		} `json:"energy"`
		Vitality struct {
			Current int `json:"current"`
			Max     int `json:"max"`
		} `json:"vitality"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Notes{}, fmt.Errorf("parse zzz notes: %w", err)
	}

	n := Notes{
		Game:     GameZZZ,
		Gauges:   map[Resource]Gauge{},
		Counters: map[Resource]Counter{},
	}
	n.Gauges[ResourceBattery] = Gauge{
		Current:    raw.Energy.Progress.Current,
		Max:        raw.Energy.Progress.Max,
		TimeToFull: time.Duration(raw.Energy.Restore) * time.Second,
	}
	n.Counters[ResourceEngagement] = Counter{Current: raw.Vitality.Current, Max: raw.Vitality.Max}
	return n, nil
}

// secString is a seconds count that the API serializes as a JSON string.
type secString string

func (s secString) Duration() time.Duration {
	v, err := strconv.Atoi(string(s))
	if err != nil || v < 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}

// Server routing follows UID prefixes, same scheme the official client uses.
func genshinServer(uid int64) string {
	switch firstDigit(uid) {
	case 6:
		return "os_usa"
	case 7:
		return "os_euro"
	case 9:
		return "os_cht"
	default:
		return "os_asia"
	}
}

func starrailServer(uid int64) string {
	switch firstDigit(uid) {
	case 6:
		return "prod_official_usa"
	case 7:
		return "prod_official_eur"
	case 9:
		return "prod_official_cht"
	default:
		return "prod_official_asia"
	}
}

func zzzServer(uid int64) string {
	// International ZZZ uses one production gateway.
	return "prod_gf_jp"
}

func firstDigit(uid int64) int {
	for uid >= 10 {
		uid /= 10
	}
	return int(uid)
}
