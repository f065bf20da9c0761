package hoyolab

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{RatePerSec: 100}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.recordBase = srv.URL
	c.bbsBase = srv.URL
	events := make(map[Game]signEvent, len(defaultSignEvents))
	for g, ev := range defaultSignEvents {
		events[g] = signEvent{base: srv.URL, actID: ev.actID}
	}
	c.signEvents = events
	return c, srv
}

func writeEnvelope(w http.ResponseWriter, retcode int, msg string, data any) {
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"retcode": retcode,
		"message": msg,
		"data":    json.RawMessage(raw),
	})
}

func TestClaimDailyRewardSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sign", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "ltoken=abc", r.Header.Get("Cookie"))
		writeEnvelope(w, 0, "OK", map[string]any{})
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "OK", map[string]any{"total_sign_day": 2})
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "OK", map[string]any{
			"awards": []map[string]any{
				{"name": "Mora", "cnt": 10000},
				{"name": "Primogem", "cnt": 20},
			},
		})
	})

	c, _ := testClient(t, mux)
	reward, err := c.ClaimDailyReward(context.Background(), Credential{Cookie: "ltoken=abc"}, GameGenshin, nil)
	require.NoError(t, err)
	assert.Equal(t, DailyReward{Name: "Primogem", Amount: 20}, reward)
}

func TestClaimDailyRewardAlreadyClaimed(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, -5003, "Traveler, you've already checked in today", nil)
	}))

	_, err := c.ClaimDailyReward(context.Background(), Credential{}, GameStarrail, nil)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimDailyRewardInvalidCookies(t *testing.T) {
	for _, retcode := range []int{-100, 10001, 10103} {
		c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, retcode, "Please log in", nil)
		}))
		_, err := c.ClaimDailyReward(context.Background(), Credential{}, GameGenshin, nil)
		assert.ErrorIs(t, err, ErrInvalidCookies, "retcode %d", retcode)
	}
}

func TestClaimDailyRewardGeetest(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "OK", map[string]any{
			"gt_result": map[string]any{
				"risk_code": 5001,
				"gt":        "gtkey",
				"challenge": "ch123",
				"success":   0,
			},
		})
	}))

	_, err := c.ClaimDailyReward(context.Background(), Credential{}, GameGenshin, nil)
	var ge *GeetestError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "gtkey", ge.Challenge.GT)
	assert.Equal(t, "ch123", ge.Challenge.Challenge)
}

func TestClaimDailyRewardSolvedChallengeHeaders(t *testing.T) {
	var gotChallenge, gotValidate, gotSeccode string
	mux := http.NewServeMux()
	mux.HandleFunc("/sign", func(w http.ResponseWriter, r *http.Request) {
		gotChallenge = r.Header.Get("x-rpc-challenge")
		gotValidate = r.Header.Get("x-rpc-validate")
		gotSeccode = r.Header.Get("x-rpc-seccode")
		writeEnvelope(w, 0, "OK", map[string]any{})
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "OK", map[string]any{"total_sign_day": 1})
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "OK", map[string]any{
			"awards": []map[string]any{{"name": "Mora", "cnt": 5000}},
		})
	})

	c, _ := testClient(t, mux)
	_, err := c.ClaimDailyReward(context.Background(), Credential{}, GameGenshin,
		&SolvedChallenge{Challenge: "ch", Validate: "val"})
	require.NoError(t, err)
	assert.Equal(t, "ch", gotChallenge)
	assert.Equal(t, "val", gotValidate)
	assert.Equal(t, "val|jordan", gotSeccode)
}

func TestClaimCommunityAlreadySigned(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 2001, "Already signed in", nil)
	}))
	err := c.ClaimCommunity(context.Background(), Credential{})
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestGetNotesGenshin(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/genshin/api/dailyNote")
		assert.Equal(t, "os_euro", r.URL.Query().Get("server"))
		writeEnvelope(w, 0, "OK", map[string]any{
			"current_resin":           140,
			"max_resin":               200,
			"resin_recovery_time":     "28800",
			"current_home_coin":       1200,
			"max_home_coin":           2400,
			"home_coin_recovery_time": "3600",
			"finished_task_num":       3,
			"total_task_num":          4,
			"max_expedition_num":      5,
			"expeditions": []map[string]any{
				{"status": "Finished", "remained_time": "0"},
				{"status": "Ongoing", "remained_time": "7200"},
			},
			"transformer": map[string]any{
				"obtained": true,
				"recovery_time": map[string]any{
					"Day": 0, "Hour": 2, "Minute": 30, "Second": 0, "reached": false,
				},
			},
		})
	}))

	notes, err := c.GetNotes(context.Background(), Credential{UID: 700000001}, GameGenshin)
	require.NoError(t, err)
	assert.Equal(t, GameGenshin, notes.Game)

	resin := notes.Gauges[ResourceResin]
	assert.Equal(t, 140, resin.Current)
	assert.Equal(t, 200, resin.Max)
	assert.Equal(t, 8*60*60, int(resin.TimeToFull.Seconds()))
	assert.False(t, resin.Full())

	exp := notes.Gauges[ResourceExpedition]
	assert.Equal(t, 1, exp.Current)
	assert.Equal(t, 2, exp.Max)
	assert.Equal(t, 2*60*60, int(exp.TimeToFull.Seconds()))

	tf := notes.Gauges[ResourceTransformer]
	assert.Equal(t, 0, tf.Current)
	assert.Equal(t, 2*60*60+30*60, int(tf.TimeToFull.Seconds()))

	comm := notes.Counters[ResourceCommission]
	assert.Equal(t, Counter{Current: 3, Max: 4}, comm)
}

func TestGetNotesStarrail(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/hkrpg/api/note")
		writeEnvelope(w, 0, "OK", map[string]any{
			"current_stamina":      240,
			"max_stamina":          240,
			"stamina_recover_time": 0,
			"total_expedition_num": 4,
			"expeditions": []map[string]any{
				{"status": "Finished", "remaining_time": 0},
			},
			"current_train_score": 300,
			"max_train_score":     500,
			"current_rogue_score": 0,
			"max_rogue_score":     14000,
			"weekly_cocoon_cnt":   1,
			"weekly_cocoon_limit": 3,
		})
	}))

	notes, err := c.GetNotes(context.Background(), Credential{UID: 800000001}, GameStarrail)
	require.NoError(t, err)
	assert.True(t, notes.Gauges[ResourcePower].Full())
	assert.Equal(t, Counter{Current: 300, Max: 500}, notes.Counters[ResourceDailyTraining])
	assert.Equal(t, Counter{Current: 0, Max: 14000}, notes.Counters[ResourceUniverse])
	assert.Equal(t, Counter{Current: 1, Max: 3}, notes.Counters[ResourceEchoOfWar])
}

func TestGetNotesUnsupportedGame(t *testing.T) {
	c := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.GetNotes(context.Background(), Credential{}, GameHonkai3rd)
	assert.Error(t, err)
}

func TestServerRouting(t *testing.T) {
	cases := []struct {
		uid  int64
		want string
	}{
		{600000001, "os_usa"},
		{700000001, "os_euro"},
		{900000001, "os_cht"},
		{800000001, "os_asia"},
		{123456789, "os_asia"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, genshinServer(tc.uid), "uid %d", tc.uid)
	}
}
