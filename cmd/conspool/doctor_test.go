package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"pkt.systems/conspool/internal/appconfig"
	"pkt.systems/pslog"
)

func TestCheckStateDir(t *testing.T) {
	logger := pslog.Ctx(context.Background())
	dir := filepath.Join(t.TempDir(), "state")
	if err := checkStateDir(logger, dir); err != nil {
		t.Fatalf("checkStateDir: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("state dir not created: %v", err)
	}
}

func TestCheckStateDirRejectsFile(t *testing.T) {
	logger := pslog.Ctx(context.Background())
	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := checkStateDir(logger, file); err == nil {
		t.Fatalf("expected error for state dir colliding with a file")
	}
}

func TestCheckRulesFileAbsent(t *testing.T) {
	logger := pslog.Ctx(context.Background())
	if err := checkRulesFile(logger, filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("checkRulesFile: %v", err)
	}
}

func TestCheckRulesFileInvalid(t *testing.T) {
	logger := pslog.Ctx(context.Background())
	file := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(file, []byte("rules_version: 99\n"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if err := checkRulesFile(logger, file); err == nil {
		t.Fatalf("expected error for unsupported rules version")
	}
}

func TestCheckSSHGeneratesHostKey(t *testing.T) {
	logger := pslog.Ctx(context.Background())
	dir := t.TempDir()
	cfg := appconfig.SSHConfig{
		Addr:           ":2222",
		HostKeyPath:    filepath.Join(dir, "ssh_host_key"),
		AuthorizedKeys: filepath.Join(dir, "authorized_keys"),
	}
	if err := checkSSH(logger, cfg); err != nil {
		t.Fatalf("checkSSH: %v", err)
	}
	if _, err := os.Stat(cfg.HostKeyPath); err != nil {
		t.Fatalf("host key not written: %v", err)
	}
}

func TestCheckListenAddr(t *testing.T) {
	logger := pslog.Ctx(context.Background())
	if err := checkListenAddr(logger, "http", "127.0.0.1:0"); err != nil {
		t.Fatalf("checkListenAddr: %v", err)
	}
}

func TestCheckListenAddrOccupied(t *testing.T) {
	logger := pslog.Ctx(context.Background())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	if err := checkListenAddr(logger, "http", ln.Addr().String()); err == nil {
		t.Fatalf("expected error for occupied address")
	}
}

func TestCheckCommand(t *testing.T) {
	logger := pslog.Ctx(context.Background())
	if err := checkCommand(logger, nil); err != nil {
		t.Fatalf("checkCommand without command: %v", err)
	}
	if err := checkCommand(logger, []string{"sh"}); err != nil {
		t.Fatalf("checkCommand sh: %v", err)
	}
	if err := checkCommand(logger, []string{"conspool-no-such-binary"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
