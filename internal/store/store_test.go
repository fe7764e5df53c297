package store

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestColorDefaultMaterialization(t *testing.T) {
	s := newTestStore(t)

	color, err := s.Color("100")
	if err != nil {
		t.Fatalf("Color failed: %v", err)
	}
	if color != DefaultColor {
		t.Errorf("Expected default color %q, got %q", DefaultColor, color)
	}

	// The default must have been persisted as the sentinel, not left absent.
	var stored string
	err = s.db.QueryRow(`SELECT color FROM threads WHERE thread_id = ?`, "100").Scan(&stored)
	if err != nil {
		t.Fatalf("Expected a persisted row after miss: %v", err)
	}
	if stored != "" {
		t.Errorf("Expected empty sentinel for default color, got %q", stored)
	}

	// Repeated lookups stay stable.
	again, err := s.Color("100")
	if err != nil {
		t.Fatalf("Second Color failed: %v", err)
	}
	if again != DefaultColor {
		t.Errorf("Expected default color on second read, got %q", again)
	}
}

func TestEmojiDefaultMaterialization(t *testing.T) {
	s := newTestStore(t)

	emoji, err := s.Emoji("200")
	if err != nil {
		t.Fatalf("Emoji failed: %v", err)
	}
	if emoji != "" {
		t.Errorf("Expected empty default emoji, got %q", emoji)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM threads WHERE thread_id = ?`, "200").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected default emoji row to be persisted, got %d rows", count)
	}
}

func TestNicknameDefaultMaterialization(t *testing.T) {
	s := newTestStore(t)

	nick, err := s.Nickname("300", "user9")
	if err != nil {
		t.Fatalf("Nickname failed: %v", err)
	}
	if nick != "" {
		t.Errorf("Expected empty default nickname, got %q", nick)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM nicknames WHERE thread_id = ? AND user_id = ?`, "300", "user9").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected default nickname row to be persisted, got %d rows", count)
	}
}

func TestAttributeIsolation(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetColor("100", "red"); err != nil {
		t.Fatalf("SetColor failed: %v", err)
	}
	if err := s.SetEmoji("100", ":fire:"); err != nil {
		t.Fatalf("SetEmoji failed: %v", err)
	}

	color, err := s.Color("100")
	if err != nil {
		t.Fatalf("Color failed: %v", err)
	}
	if color != "red" {
		t.Errorf("Emoji write clobbered color: got %q", color)
	}

	if err := s.SetColor("100", "blue"); err != nil {
		t.Fatalf("SetColor failed: %v", err)
	}
	emoji, err := s.Emoji("100")
	if err != nil {
		t.Fatalf("Emoji failed: %v", err)
	}
	if emoji != ":fire:" {
		t.Errorf("Color write clobbered emoji: got %q", emoji)
	}
}

func TestSetColorIdempotent(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 2; i++ {
		if err := s.SetColor("100", "red"); err != nil {
			t.Fatalf("SetColor attempt %d failed: %v", i+1, err)
		}
	}

	color, err := s.Color("100")
	if err != nil {
		t.Fatalf("Color failed: %v", err)
	}
	if color != "red" {
		t.Errorf("Expected red, got %q", color)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM threads WHERE thread_id = ?`, "100").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a single row, got %d", count)
	}
}

func TestSetColorDefaultStoresSentinel(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetColor("100", DefaultColor); err != nil {
		t.Fatalf("SetColor failed: %v", err)
	}

	var stored string
	if err := s.db.QueryRow(`SELECT color FROM threads WHERE thread_id = ?`, "100").Scan(&stored); err != nil {
		t.Fatalf("Row read failed: %v", err)
	}
	if stored != "" {
		t.Errorf("Explicit default must be stored as sentinel, got %q", stored)
	}

	color, err := s.Color("100")
	if err != nil {
		t.Fatalf("Color failed: %v", err)
	}
	if color != DefaultColor {
		t.Errorf("Sentinel must resolve to default on read, got %q", color)
	}
}

func TestSetNicknameUpsert(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetNickname("100", "user1", "Ace"); err != nil {
		t.Fatalf("SetNickname failed: %v", err)
	}
	if err := s.SetNickname("100", "user1", "Captain"); err != nil {
		t.Fatalf("SetNickname update failed: %v", err)
	}
	if err := s.SetNickname("100", "user2", "Bee"); err != nil {
		t.Fatalf("SetNickname second member failed: %v", err)
	}

	nick, err := s.Nickname("100", "user1")
	if err != nil {
		t.Fatalf("Nickname failed: %v", err)
	}
	if nick != "Captain" {
		t.Errorf("Expected Captain, got %q", nick)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM nicknames WHERE thread_id = ?`, "100").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 nickname rows, got %d", count)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	// Absent session is nil, not an error.
	state, err := s.Session("me@example.com")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if state != nil {
		t.Errorf("Expected nil state for unknown email, got %q", state)
	}

	if err := s.SaveSession("owner1", "me@example.com", "secret", []byte(`{"c":1}`)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	state, err = s.Session("me@example.com")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if string(state) != `{"c":1}` {
		t.Errorf("Unexpected state: %s", state)
	}
}

func TestSaveSessionReplaces(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSession("owner1", "me@example.com", "secret", []byte(`{"c":1}`)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := s.SaveSession("owner1", "me@example.com", "secret", []byte(`{"c":2}`)); err != nil {
		t.Fatalf("SaveSession replace failed: %v", err)
	}

	state, err := s.Session("me@example.com")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if string(state) != `{"c":2}` {
		t.Errorf("Expected replaced state, got %s", state)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM login`).Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a single login row, got %d", count)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetColor("100", "red"); err != nil {
		t.Fatalf("SetColor failed: %v", err)
	}
	if err := s.SetNickname("100", "user1", "Ace"); err != nil {
		t.Fatalf("SetNickname failed: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["threads"] != 1 {
		t.Errorf("Expected 1 thread row, got %d", stats["threads"])
	}
	if stats["nicknames"] != 1 {
		t.Errorf("Expected 1 nickname row, got %d", stats["nicknames"])
	}
	if stats["login"] != 0 {
		t.Errorf("Expected 0 login rows, got %d", stats["login"])
	}
}
