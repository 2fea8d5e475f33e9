package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestAlertFansOutDespiteFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, quiet())

	err := n.AlertOpportunities(context.Background(), "run-7", 1, []Opportunity{
		{Strategy: "alpha", Source: "ask", Percentage: 2.5, Description: "desc"},
		{Strategy: "beta", Source: "ask", Percentage: 1},
	})
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("err = %v, want failure naming bad sender", err)
	}
	if len(good.bodies) != 1 {
		t.Fatalf("good sender calls = %d, want 1", len(good.bodies))
	}
	if !strings.Contains(good.titles[0], "2 arbitrage opportunities") {
		t.Fatalf("title = %q", good.titles[0])
	}
	body := good.bodies[0]
	for _, want := range []string{"alpha [ask]: 2.50%", "beta [ask]: 1.00%", "desc", "run run-7"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestAlertNoOpportunities(t *testing.T) {
	s := &recordingSender{name: "s"}
	if err := NewNotifier([]Sender{s}, quiet()).AlertOpportunities(context.Background(), "r", 1, nil); err != nil {
		t.Fatal(err)
	}
	if len(s.bodies) != 0 {
		t.Fatal("nothing should be sent without opportunities")
	}
	var nilNotifier *Notifier
	if nilNotifier.Enabled() {
		t.Fatal("nil notifier should be disabled")
	}
}

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	if err := s.Send(context.Background(), "title", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "42" || got["text"] != "title\nbody" {
		t.Fatalf("payload = %v", got)
	}
}

func TestDiscordSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want 429", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
