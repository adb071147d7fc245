package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{}

func (failing) Send(context.Context, Alert) error { return errors.New("boom") }

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	m := Multi{rec, nil, failing{}, NewLogNotifier()}

	err := m.Send(context.Background(), Alert{Level: AlertWarning, Condition: CondFetchFailure, Title: "load"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []Condition{CondFetchFailure}, rec.Conditions())
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	err := n.Send(context.Background(), Alert{
		Level: AlertWarning, Condition: CondInvalidParameter, Session: "s1",
		Title: "overlay rejected", Message: "width=11",
	})
	require.NoError(t, err)
	assert.Equal(t, "invalid_parameter", got["condition"])
	assert.Equal(t, "s1", got["session"])
	assert.Equal(t, "candleview", got["service"])
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, nil).Send(context.Background(), Alert{})
	assert.Error(t, err)
}

func TestTelegramNotifier_Send(t *testing.T) {
	var path, text, mode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		text, _ = body["text"].(string)
		mode, _ = body["parse_mode"].(string)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42").WithBaseURL(srv.URL + "/")
	require.NoError(t, n.Send(context.Background(), Alert{
		Level: AlertCritical, Condition: CondFetchFailure, Session: "01J",
		Title: "load stock_data.csv", Message: "404",
	}))
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "MarkdownV2", mode)
	assert.Equal(t, "🚨 *Chart source unreachable*\n"+
		"`CRITICAL · fetch_failure · session 01J`\n\n"+
		"*load stock\\_data\\.csv*\n404", text)
}

func TestTelegramNotifier_CooldownPerCondition(t *testing.T) {
	var sent, status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sent.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	n := NewTelegramNotifier("T", "1").WithBaseURL(srv.URL).WithCooldown(time.Minute)
	n.now = func() time.Time { return now }
	ctx := context.Background()
	skip := Alert{Level: AlertWarning, Condition: CondParseSkip, Title: "reload"}

	require.NoError(t, n.Send(ctx, skip))
	require.NoError(t, n.Send(ctx, skip))
	assert.EqualValues(t, 1, sent.Load(), "repeat inside the cooldown is dropped")

	require.NoError(t, n.Send(ctx, Alert{Level: AlertCritical, Condition: CondFetchFailure}))
	assert.EqualValues(t, 2, sent.Load(), "other conditions are not held back")

	now = now.Add(time.Minute)
	require.NoError(t, n.Send(ctx, skip))
	assert.EqualValues(t, 3, sent.Load())

	status.Store(http.StatusBadGateway)
	now = now.Add(time.Minute)
	assert.Error(t, n.Send(ctx, skip))
	status.Store(http.StatusOK)
	require.NoError(t, n.Send(ctx, skip))
	assert.EqualValues(t, 5, sent.Load(), "a failed delivery does not start the cooldown")
}

func TestFormatChartAlert_UnknownConditionAndLevel(t *testing.T) {
	text := formatChartAlert(Alert{Level: "DEBUG", Condition: "disk_full", Message: "a-b"})
	assert.Equal(t, "ℹ️ *disk\\_full*\n`DEBUG · disk_full`\na\\-b", text)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\.c\!`, escapeMarkdown("a_b.c!"))
	assert.Equal(t, `\\ \(x\)`, escapeMarkdown(`\ (x)`))
	assert.Equal(t, "a\\`b", escapeCode("a`b"))
}
