package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	c := Load()
	c.Session.StoreURL = "https://auth.example.com"
	c.Session.JWTPublicKey = "-----BEGIN PUBLIC KEY-----\n...\n-----END PUBLIC KEY-----"
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := Load()

	if c.Service.Name != "knowme-gateway" {
		t.Errorf("Service.Name = %q", c.Service.Name)
	}
	if c.Session.CookieName != "knowme-session" {
		t.Errorf("Session.CookieName = %q", c.Session.CookieName)
	}
	if len(c.Guard.ProtectedPrefixes) == 0 || c.Guard.LoginPath != "/login" {
		t.Errorf("Guard defaults = %+v", c.Guard)
	}
	if got := c.GetShutdownTimeoutDuration(); got != 15*time.Second {
		t.Errorf("shutdown timeout = %v", got)
	}
}

func TestValidateRequiresStore(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	c.Session.StoreURL = ""
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing SESSION_STORE_URL")
	}

	c = validConfig()
	c.Session.JWTPublicKey = ""
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing SESSION_STORE_JWT_PUBLIC_KEY")
	}

	c = validConfig()
	c.ShutdownTimeout = "soon"
	if err := c.Validate(); err == nil {
		t.Error("expected error for bad SHUTDOWN_TIMEOUT")
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("GUARD_PROTECTED_PREFIXES", "/dashboard, /admin ,,/settings")

	got := getEnvList("GUARD_PROTECTED_PREFIXES", nil)
	want := []string{"/dashboard", "/admin", "/settings"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsDevelopment(t *testing.T) {
	c := Load()
	c.Service.Env = "development"
	if !c.IsDevelopment() {
		t.Error("development should be dev")
	}
	c.Service.Env = "production"
	if c.IsDevelopment() {
		t.Error("production should not be dev")
	}
}
