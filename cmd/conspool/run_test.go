package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/conspool/internal/appconfig"
	"pkt.systems/conspool/schema"
	"pkt.systems/pslog"
)

func TestStdoutSinkPassthrough(t *testing.T) {
	var buf bytes.Buffer
	sink := &stdoutSink{out: &buf}
	sink.OnText(schema.TextEvent{Text: "plain output\n", Kind: schema.KindNormal})
	if got := buf.String(); got != "plain output\n" {
		t.Fatalf("normal text = %q", got)
	}
}

func TestStdoutSinkStylesKinds(t *testing.T) {
	var buf bytes.Buffer
	sink := &stdoutSink{out: &buf}
	sink.OnText(schema.TextEvent{Text: "boom\n", Kind: schema.KindError})
	if got := buf.String(); !strings.HasPrefix(got, "\x1b[31m") || !strings.HasSuffix(got, "\x1b[0m") {
		t.Fatalf("error text = %q", got)
	}
	buf.Reset()
	sink.OnText(schema.TextEvent{Text: "process exited\n", Kind: schema.KindSystem})
	if got := buf.String(); !strings.HasPrefix(got, "\x1b[36m") {
		t.Fatalf("system text = %q", got)
	}
}

func TestStdoutSinkTranslatesNewlines(t *testing.T) {
	var buf bytes.Buffer
	sink := &stdoutSink{out: &buf, crlf: true}
	sink.OnText(schema.TextEvent{Text: "one\ntwo\n", Kind: schema.KindNormal})
	if got := buf.String(); got != "one\r\ntwo\r\n" {
		t.Fatalf("raw mode text = %q", got)
	}
}

func TestRunRegistryBuiltins(t *testing.T) {
	logger := pslog.Ctx(context.Background())
	registry := runRegistry(appconfig.Config{}, schema.ConsoleConfig{CommandLineFoldLimit: 80}, logger)
	if got := len(registry.LineClassifiers()); got != 1 {
		t.Fatalf("line classifiers = %d, want 1", got)
	}
	if got := len(registry.LinkClassifiers()); got != 2 {
		t.Fatalf("link classifiers = %d, want 2", got)
	}
	if got := len(registry.HeavyClassifiers()); got != 1 {
		t.Fatalf("heavy classifiers = %d, want 1", got)
	}
}

func TestRunRegistryLoadsRules(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rules.yaml")
	data := "rules_version: 1\nrules:\n  - id: maven-download\n    match: '^Downloading: '\n"
	if err := os.WriteFile(file, []byte(data), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	logger := pslog.Ctx(context.Background())
	registry := runRegistry(appconfig.Config{RulesFile: file}, schema.ConsoleConfig{CommandLineFoldLimit: 80}, logger)
	if got := len(registry.LineClassifiers()); got != 2 {
		t.Fatalf("line classifiers = %d, want 2", got)
	}
}

func TestExitCodeError(t *testing.T) {
	err := &exitCodeError{code: 3}
	if err.Error() != "exit status 3" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
