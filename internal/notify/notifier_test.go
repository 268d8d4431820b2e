package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventSyncFailed, " "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventSyncRecovered, "recovered", ""))
	require.NoError(t, n.Notify(context.Background(), EventSyncFailed, "failed", ""))
	assert.Equal(t, []string{"failed"}, s.titles)
}

func TestNotifyContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventInconsistency, "x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1)
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), EventSyncFailed, "t", "m"))
}

func TestTelegramSenderEscapesHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var msg telegramMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "42", msg.ChatID)
		assert.Equal(t, "HTML", msg.ParseMode)
		assert.Equal(t, "<b>title</b>\nfetch &lt;tokens&gt; failed", msg.Text)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	assert.NoError(t, s.Send(context.Background(), "title", "fetch <tokens> failed"))
}

func TestDiscordSenderEmbeds(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = discordPayload{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if strings.Contains(got.Embeds[0].Title, "fail") {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "bad embed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), TitleSyncRecovered, strings.Repeat("a", 5000)))
	require.Len(t, got.Embeds, 1)
	assert.Len(t, got.Embeds[0].Description, discordMaxDescription)
	assert.True(t, strings.HasSuffix(got.Embeds[0].Description, "..."))
	assert.Equal(t, discordColorOK, got.Embeds[0].Color)

	err := s.Send(context.Background(), "fail", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400: bad embed")
	assert.Equal(t, discordColorAlert, got.Embeds[0].Color)
}
