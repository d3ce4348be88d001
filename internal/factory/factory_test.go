package factory

import (
	"errors"
	"testing"
	"time"

	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/ratelimit"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	configs := map[platform.Type]platform.Config{
		platform.Twitter:  {ClientID: "tw-id", ClientSecret: "tw-secret"},
		platform.Mastodon: {ClientID: "ma-id", InstanceURL: "https://fosstodon.org"},
		platform.LinkedIn: {ClientID: "li-id", ClientSecret: "li-secret"},
	}
	return New(configs, ratelimit.New(logging.NewLogger()), logging.NewLogger())
}

func authState(token string) platform.AuthState {
	return platform.AuthState{
		AccessToken: token,
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	}
}

func TestProviderForEachBuiltin(t *testing.T) {
	f := newTestFactory(t)

	for _, pt := range []platform.Type{platform.Twitter, platform.Mastodon, platform.LinkedIn} {
		p, err := f.Provider(pt, "acct-1", authState("tok"))
		if err != nil {
			t.Fatalf("Provider(%s): %v", pt, err)
		}
		if p.Platform() != pt {
			t.Errorf("built provider reports %s, want %s", p.Platform(), pt)
		}
	}
}

func TestUnsupportedPlatform(t *testing.T) {
	f := newTestFactory(t)

	_, err := f.Provider(platform.TikTok, "acct-1", authState("tok"))
	var unsupported *platform.UnsupportedPlatformError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedPlatformError, got %v", err)
	}
	if unsupported.Platform != platform.TikTok {
		t.Errorf("error names %s", unsupported.Platform)
	}
}

func TestProviderReusedWhileTokenUnchanged(t *testing.T) {
	f := newTestFactory(t)

	first, err := f.Provider(platform.Twitter, "acct-1", authState("tok-a"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.Provider(platform.Twitter, "acct-1", authState("tok-a"))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("same account and token should reuse the cached provider")
	}

	rotated, err := f.Provider(platform.Twitter, "acct-1", authState("tok-b"))
	if err != nil {
		t.Fatal(err)
	}
	if rotated == first {
		t.Error("a rotated token must invalidate the cached provider")
	}
}

func TestProvidersIsolatedPerAccount(t *testing.T) {
	f := newTestFactory(t)

	a, err := f.Provider(platform.Twitter, "acct-1", authState("tok"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.Provider(platform.Twitter, "acct-2", authState("tok"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("accounts must not share provider instances")
	}
}

func TestEvict(t *testing.T) {
	f := newTestFactory(t)

	first, _ := f.Provider(platform.Mastodon, "acct-1", authState("tok"))
	f.Evict(platform.Mastodon, "acct-1")
	second, _ := f.Provider(platform.Mastodon, "acct-1", authState("tok"))
	if first == second {
		t.Error("evicted provider should be rebuilt")
	}
}

func TestRegisterCustomBuilder(t *testing.T) {
	f := newTestFactory(t)

	called := false
	f.Register(platform.Twitter, func(cfg platform.Config, auth platform.AuthState, limiter *ratelimit.Limiter, logger logging.Logger) platform.Provider {
		called = true
		return nil
	})

	if _, err := f.Provider(platform.Twitter, "acct-9", authState("tok")); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("registered builder should be used")
	}
}

func TestSupported(t *testing.T) {
	f := newTestFactory(t)

	supported := f.Supported()
	want := map[platform.Type]bool{platform.Twitter: true, platform.Mastodon: true, platform.LinkedIn: true}
	if len(supported) != len(want) {
		t.Fatalf("supported = %v", supported)
	}
	for _, pt := range supported {
		if !want[pt] {
			t.Errorf("unexpected platform %s", pt)
		}
	}
}
