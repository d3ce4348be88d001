package platform

import (
	"testing"
	"time"
)

func TestAuthStateAuthenticated(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name  string
		state *AuthState
		want  bool
	}{
		{name: "nil state", state: nil, want: false},
		{name: "empty token", state: &AuthState{}, want: false},
		{
			name:  "valid token not expired",
			state: &AuthState{AccessToken: "tok", ExpiresAt: now.Unix() + 3600},
			want:  true,
		},
		{
			name:  "expired token",
			state: &AuthState{AccessToken: "tok", ExpiresAt: now.Unix() - 1},
			want:  false,
		},
		{
			name:  "zero expiry means unauthenticated",
			state: &AuthState{AccessToken: "tok"},
			want:  false,
		},
		{
			name: "non-expiring scheme with token",
			state: &AuthState{
				AccessToken: "tok",
				Extra:       map[string]string{"oauth_version": "1.0a"},
			},
			want: true,
		},
		{
			name: "non-expiring scheme without token",
			state: &AuthState{
				Extra: map[string]string{"oauth_version": "1.0a"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Authenticated(now); got != tt.want {
				t.Fatalf("Authenticated = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageDedupKey(t *testing.T) {
	m := &Message{Platform: Twitter, AccountID: "acct-1", NativeID: "12345"}
	if got := m.DedupKey(); got != "twitter:acct-1:12345" {
		t.Fatalf("unexpected dedup key: %s", got)
	}
}

func TestTypeValid(t *testing.T) {
	if !Twitter.Valid() {
		t.Fatal("twitter should be valid")
	}
	if Type("myspace").Valid() {
		t.Fatal("myspace should not be valid")
	}
}

func TestCapabilitiesFor(t *testing.T) {
	caps := CapabilitiesFor(Twitter)
	if caps.MaxCharacters != 280 {
		t.Fatalf("expected 280 char limit for twitter, got %d", caps.MaxCharacters)
	}
	if !caps.SupportsThreads {
		t.Fatal("twitter should support threads")
	}

	if CapabilitiesFor(Type("unknown")) != (Capabilities{}) {
		t.Fatal("unknown platform should return zero capabilities")
	}
}
