package hoyolab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// signEvent describes one game's daily check-in event.
type signEvent struct {
	base  string
	actID string
}

var defaultSignEvents = map[Game]signEvent{
	GameGenshin:   {base: "https://sg-hk4e-api.hoyolab.com/event/sol", actID: "e202102251931481"},
	GameHonkai3rd: {base: "https://sg-public-api.hoyolab.com/event/mani", actID: "e202110291205111"},
	GameStarrail:  {base: "https://sg-public-api.hoyolab.com/event/luna/os", actID: "e202303301540311"},
	GameZZZ:       {base: "https://sg-public-api.hoyolab.com/event/luna/zzz/os", actID: "e202406031448091"},
	GameThemis:    {base: "https://sg-public-api.hoyolab.com/event/luna/nxx/os", actID: "e202202281857121"},
	GameThemisTW:  {base: "https://sg-public-api.hoyolab.com/event/luna/nxx/tw", actID: "e202281857121"},
}

// SolvedChallenge is the header material of a solver-completed captcha,
// replayed on the check-in request.
type SolvedChallenge struct {
	Challenge string
	Validate  string
}

// gtResult rides inside the sign response when the endpoint wants a captcha.
type gtResult struct {
	RiskCode  int    `json:"risk_code"`
	GT        string `json:"gt"`
	Challenge string `json:"challenge"`
	Success   int    `json:"success"`
}

// ClaimDailyReward redeems today's check-in reward for one game.
//
// Error surface: ErrAlreadyClaimed, ErrInvalidCookies, *GeetestError,
// *APIError (business rejections) or a transport error.
func (c *Client) ClaimDailyReward(ctx context.Context, cred Credential, game Game, solved *SolvedChallenge) (DailyReward, error) {
	ev, ok := c.signEvents[game]
	if !ok {
		return DailyReward{}, fmt.Errorf("no check-in event for game %q", game)
	}

	headers := map[string]string{}
	if solved != nil {
		headers["x-rpc-challenge"] = solved.Challenge
		headers["x-rpc-validate"] = solved.Validate
		headers["x-rpc-seccode"] = solved.Validate + "|jordan"
	}

	url := fmt.Sprintf("%s/sign?act_id=%s", ev.base, ev.actID)
	data, err := c.call(ctx, http.MethodPost, url, cred, map[string]string{"act_id": ev.actID}, headers)
	if err != nil {
		return DailyReward{}, err
	}

	// A retcode-0 response can still demand a captcha; it arrives as a
	// gt_result payload instead of an error code.
	var signData struct {
		GTResult *gtResult `json:"gt_result"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &signData)
	}
	if gr := signData.GTResult; gr != nil && gr.RiskCode != 0 && gr.GT != "" && gr.Success != 1 {
		return DailyReward{}, &GeetestError{Challenge: GeetestChallenge{GT: gr.GT, Challenge: gr.Challenge}}
	}

	reward, err := c.todaysReward(ctx, cred, ev)
	if err != nil {
		// The claim itself succeeded; reward lookup is best-effort.
		c.log.Debug("reward lookup failed", slog.String("game", string(game)), slog.Any("err", err))
		return DailyReward{Name: "Daily Reward", Amount: 1}, nil
	}
	return reward, nil
}

// todaysReward resolves the granted item from the event's reward calendar:
// /info reports how many days were signed, /home lists the month's awards.
func (c *Client) todaysReward(ctx context.Context, cred Credential, ev signEvent) (DailyReward, error) {
	infoURL := fmt.Sprintf("%s/info?act_id=%s", ev.base, ev.actID)
	data, err := c.call(ctx, http.MethodGet, infoURL, cred, nil, nil)
	if err != nil {
		return DailyReward{}, err
	}
	var info struct {
		TotalSignDay int `json:"total_sign_day"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return DailyReward{}, err
	}

	homeURL := fmt.Sprintf("%s/home?act_id=%s", ev.base, ev.actID)
	data, err = c.call(ctx, http.MethodGet, homeURL, cred, nil, nil)
	if err != nil {
		return DailyReward{}, err
	}
	var home struct {
		Awards []struct {
			Name string `json:"name"`
			Cnt  int    `json:"cnt"`
		} `json:"awards"`
	}
	if err := json.Unmarshal(data, &home); err != nil {
		return DailyReward{}, err
	}

	idx := info.TotalSignDay - 1
	if idx < 0 || idx >= len(home.Awards) {
		return DailyReward{}, fmt.Errorf("award index %d out of range", idx)
	}
	return DailyReward{Name: home.Awards[idx].Name, Amount: home.Awards[idx].Cnt}, nil
}

// ClaimCommunity performs the HoYoLAB community check-in. Retcode 2001
// (already signed) is benign and mapped to ErrAlreadyClaimed.
func (c *Client) ClaimCommunity(ctx context.Context, cred Credential) error {
	url := c.bbsBase + "/community/apihub/api/signIn"
	_, err := c.call(ctx, http.MethodPost, url, cred, map[string]any{"gids": 2}, nil)
	if err != nil {
		var ae *APIError
		if errors.As(err, &ae) && ae.Retcode == retcodeCommunitySigned {
			return ErrAlreadyClaimed
		}
	}
	return err
}
