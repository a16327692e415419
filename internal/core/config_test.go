package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestConfig_DatabaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Database.Engine = "postgres"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.Name = "testdb"
	cfg.Database.Username = "testuser"
	cfg.Database.Password = "testpassword"

	url := cfg.DatabaseURL()
	expected := "host=localhost port=5432 dbname=testdb user=testuser password=testpassword sslmode="
	if url != expected {
		t.Errorf("DatabaseURL() want = %s, got = %s", expected, url)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Match.MaxPlayers != 2 {
		t.Errorf("expected MaxPlayers = 2, got %d", cfg.Match.MaxPlayers)
	}
	if cfg.Match.RosterInterval != 3*time.Second {
		t.Errorf("expected RosterInterval = 3s, got %v", cfg.Match.RosterInterval)
	}
	if cfg.Match.StartDelay != 5*time.Second {
		t.Errorf("expected StartDelay = 5s, got %v", cfg.Match.StartDelay)
	}
	if diff := cmp.Diff([]string{"/lobby", "/play"}, cfg.Socket.Paths); diff != "" {
		t.Errorf("unexpected socket paths; diff:\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"/": "/menu"}, cfg.Web.Redirects); diff != "" {
		t.Errorf("unexpected redirects; diff:\n%s", diff)
	}

	expectedPhysics := PhysicsConfig{
		BallSize:         1,
		ServeSpeedMin:    0.05,
		ServeSpeedMax:    0.08,
		ServeSpread:      0.01,
		PaddleBand:       0.06,
		PaddleHalfExtent: 0.15,
		RallyMultiplier:  1.005,
	}
	if diff := cmp.Diff(expectedPhysics, cfg.Match.Physics); diff != "" {
		t.Errorf("unexpected physics defaults; diff:\n%s", diff)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	contents := []byte(`
hostname: 127.0.0.1
socket:
  port: 9001
match:
  max_matches: 3
  tick_interval: 5ms
ip_bans:
  - 10.0.0.1
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), contents, 0600); err != nil {
		t.Fatalf("error writing test config: %v", err)
	}
	t.Setenv("PONG_WEB_HTTP_PORT", "9000")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if cfg.Hostname != "127.0.0.1" {
		t.Errorf("expected hostname from file, got %s", cfg.Hostname)
	}
	if cfg.SocketAddress() != "127.0.0.1:9001" {
		t.Errorf("expected socket address 127.0.0.1:9001, got %s", cfg.SocketAddress())
	}
	if cfg.HTTPAddress() != "127.0.0.1:9000" {
		t.Errorf("expected environment to override http port, got %s", cfg.HTTPAddress())
	}
	if cfg.Match.MaxMatches != 3 {
		t.Errorf("expected MaxMatches = 3, got %d", cfg.Match.MaxMatches)
	}
	if cfg.Match.TickInterval != 5*time.Millisecond {
		t.Errorf("expected TickInterval = 5ms, got %v", cfg.Match.TickInterval)
	}
	// Untouched options keep their defaults.
	if cfg.Match.MaxPlayers != 2 {
		t.Errorf("expected default MaxPlayers = 2, got %d", cfg.Match.MaxPlayers)
	}
	if diff := cmp.Diff([]string{"10.0.0.1"}, cfg.IPBans); diff != "" {
		t.Errorf("unexpected ip bans; diff:\n%s", diff)
	}
}
