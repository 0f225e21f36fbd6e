package chat

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPresence_IsOnline(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name string
		user User
		want bool
	}{
		{name: "NeverActive", user: User{ID: "alice"}, want: false},
		{name: "Recent", user: User{ID: "alice", LastActiveAt: at(30 * time.Second)}, want: true},
		{name: "JustInside", user: User{ID: "alice", LastActiveAt: at(2*time.Minute - time.Nanosecond)}, want: true},
		{name: "AtWindow", user: User{ID: "alice", LastActiveAt: at(2 * time.Minute)}, want: false},
		{name: "Stale", user: User{ID: "alice", LastActiveAt: at(time.Hour)}, want: false},
		{name: "Bot", user: User{ID: DefaultBotID}, want: true},
		{name: "BotStale", user: User{ID: DefaultBotID, LastActiveAt: at(time.Hour)}, want: true},
	}

	p := &Presence{BotID: DefaultBotID, Now: func() time.Time { return now }}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsOnline(tt.user); got != tt.want {
				t.Errorf("IsOnline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBot_Turns(t *testing.T) {
	b := &Bot{ID: DefaultBotID}
	got := b.Turns([]Message{
		{SenderID: "alice", Content: "hi"},
		{SenderID: DefaultBotID, Content: "hello"},
		{SenderID: "alice", Content: MediaPlaceholder, Type: TypeImage},
	})
	want := []Turn{
		{Role: TurnUser, Content: "hi"},
		{Role: TurnAssistant, Content: "hello"},
		{Role: TurnUser, Content: MediaPlaceholder},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Turns() mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectKey(t *testing.T) {
	if DirectKey("b", "a") != DirectKey("a", "b") {
		t.Error("DirectKey depends on argument order")
	}
	if got := DirectKey("b", "a"); got != "a:b" {
		t.Errorf("DirectKey() = %q, want a:b", got)
	}
}

func TestSortMessages(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", Seq: 3, CreatedAt: t0},
		{ID: "d", Seq: 4, CreatedAt: t0.Add(-time.Second)},
		{ID: "a", Seq: 1, CreatedAt: t0},
		{ID: "b", Seq: 2, CreatedAt: t0},
	}
	SortMessages(msgs)
	var got []string
	for _, m := range msgs {
		got = append(got, m.ID)
	}
	if diff := cmp.Diff([]string{"d", "a", "b", "c"}, got); diff != "" {
		t.Errorf("SortMessages() mismatch (-want +got):\n%s", diff)
	}
}
