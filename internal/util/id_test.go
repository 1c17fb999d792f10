package util

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewClientIDFormat(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewClientID(now)

	pattern := regexp.MustCompile(`^1700000000123-[0-9a-z]{7}$`)
	if !pattern.MatchString(id) {
		t.Fatalf("unexpected client id format: %q", id)
	}
}

func TestNewClientIDIsRandomized(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		seen[NewClientID(now)] = struct{}{}
	}
	if len(seen) < 45 {
		t.Fatalf("expected mostly distinct ids for the same instant, got %d distinct", len(seen))
	}
}

func TestDeviceName(t *testing.T) {
	cases := []struct {
		name string
		id   string
		want string
	}{
		{name: "uses last six characters", id: "1700000000123-abc1234", want: "Device-bc1234"},
		{name: "short id kept whole", id: "ab12", want: "Device-ab12"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeviceName(tc.id); got != tc.want {
				t.Fatalf("DeviceName(%q) = %q, want %q", tc.id, got, tc.want)
			}
		})
	}
}

func TestNewDocumentIDIsUUID(t *testing.T) {
	id := NewDocumentID()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("expected uuid, got %q", id)
	}
}

func TestNewIDPrefix(t *testing.T) {
	id := NewID("req")
	if !regexp.MustCompile(`^req_[0-9a-f]{32}$`).MatchString(id) {
		t.Fatalf("unexpected id: %q", id)
	}
	if plain := NewID(""); len(plain) != 32 || strings.Contains(plain, "_") {
		t.Fatalf("unexpected unprefixed id: %q", plain)
	}
}
