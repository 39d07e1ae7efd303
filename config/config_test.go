package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"localsolana/core/types"
)

func testArbitrator(t *testing.T) string {
	t.Helper()
	var addr types.Address
	addr[0] = 0x01
	return addr.String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `Arbitrator = "`+testArbitrator(t)+`"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8645" {
		t.Fatalf("unexpected rpc address %q", cfg.RPCAddress)
	}
	if cfg.DataDir == "" || cfg.EvidenceDB == "" {
		t.Fatalf("expected default data paths")
	}
	w := cfg.Windows()
	if w.Deposit != 15*time.Minute || w.Fiat != 30*time.Minute {
		t.Fatalf("unexpected default windows %+v", w)
	}
	if w.Response != 72*time.Hour || w.Arbitration != 168*time.Hour {
		t.Fatalf("unexpected default dispute windows %+v", w)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
RPCAddress = ":9000"
DataDir = "/tmp/escrowd"
Arbitrator = "`+testArbitrator(t)+`"

[Deadlines]
DepositMinutes = 5
ResponseHours = 24
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9000" {
		t.Fatalf("unexpected rpc address %q", cfg.RPCAddress)
	}
	w := cfg.Windows()
	if w.Deposit != 5*time.Minute {
		t.Fatalf("unexpected deposit window %v", w.Deposit)
	}
	if w.Response != 24*time.Hour {
		t.Fatalf("unexpected response window %v", w.Response)
	}
	// Unset overrides keep their defaults.
	if w.Fiat != 30*time.Minute || w.Arbitration != 168*time.Hour {
		t.Fatalf("unexpected windows %+v", w)
	}
}

func TestValidateRejectsBadArbitrator(t *testing.T) {
	if _, err := Load(writeConfig(t, ``)); err == nil {
		t.Fatalf("expected missing arbitrator rejected")
	}
	if _, err := Load(writeConfig(t, `Arbitrator = "not base58 !!"`)); err == nil {
		t.Fatalf("expected malformed arbitrator rejected")
	}
	zero := types.Address{}
	if _, err := Load(writeConfig(t, `Arbitrator = "`+zero.String()+`"`)); err == nil {
		t.Fatalf("expected zero arbitrator rejected")
	}
	if _, err := Load(writeConfig(t, `RPCAddress = ""`+"\n"+`Arbitrator = "`+testArbitrator(t)+`"`)); err == nil {
		t.Fatalf("expected empty rpc address rejected")
	}
}
