package randx

import (
	"strings"
	"testing"
)

func TestRoomCode(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		code, err := RoomCode()
		if err != nil {
			t.Fatalf("RoomCode() error: %v", err)
		}
		if !IsValidRoomCode(code) {
			t.Errorf("generated room code %q fails its own validation", code)
		}
		seen[code] = struct{}{}
	}

	if len(seen) < 95 {
		t.Errorf("expected near-unique codes, got %d distinct out of 100", len(seen))
	}
}

func TestGuestID(t *testing.T) {
	id, err := GuestID()
	if err != nil {
		t.Fatalf("GuestID() error: %v", err)
	}
	if !strings.HasPrefix(id, GuestIDPrefix) {
		t.Errorf("guest id %q missing prefix %q", id, GuestIDPrefix)
	}
	if !IsValidGuestID(id) {
		t.Errorf("generated guest id %q fails its own validation", id)
	}
}

func TestIsValidRoomCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"Abc123", true},
		{"abc12", false},
		{"abc1234", false},
		{"abc!23", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidRoomCode(tt.code); got != tt.want {
			t.Errorf("IsValidRoomCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestIsValidGuestID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"guest_Abc123", true},
		{"guest_abc", false},
		{"user_Abc123", false},
		{"guest_abc!23", false},
	}

	for _, tt := range tests {
		if got := IsValidGuestID(tt.id); got != tt.want {
			t.Errorf("IsValidGuestID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestSessionID(t *testing.T) {
	a := SessionID()
	b := SessionID()
	if a == b {
		t.Error("expected distinct session ids")
	}
	if len(a) != 36 {
		t.Errorf("expected UUID format, got %q", a)
	}
}
