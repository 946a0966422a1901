package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spim.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProfile(t *testing.T) {
	path := writeProfile(t, `
device: /dev/ttyUSB1
spidev: SPI1.0
cs: [GPIO8, GPIO7]
setup:
  - init msb 8
  - write 0x06 1
`)
	got := defaultProfile()
	if err := loadProfile(path, &got); err != nil {
		t.Fatalf("loadProfile: %v", err)
	}
	want := defaultProfile()
	want.Device = "/dev/ttyUSB1"
	want.SPIDev = "SPI1.0"
	want.CS = []string{"GPIO8", "GPIO7"}
	want.Setup = []string{"init msb 8", "write 0x06 1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadProfileEmpty(t *testing.T) {
	got := defaultProfile()
	if err := loadProfile(writeProfile(t, ""), &got); err != nil {
		t.Fatalf("empty profile: %v", err)
	}
	if diff := cmp.Diff(defaultProfile(), got); diff != "" {
		t.Errorf("empty profile changed defaults:\n%s", diff)
	}
}

func TestLoadProfileErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "devcie: /dev/ttyACM1\n"},
		{"too many cs", "cs: [GPIO1, GPIO2, GPIO3]\n"},
		{"bad type", "baud: fast\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := defaultProfile()
			if err := loadProfile(writeProfile(t, tt.body), &p); err == nil {
				t.Error("expected error")
			}
		})
	}

	p := defaultProfile()
	if err := loadProfile(filepath.Join(t.TempDir(), "missing.yaml"), &p); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestApplyProfileKeepsFlags(t *testing.T) {
	dst := profile{Device: "/dev/ttyACM3", Baud: 9600}
	file := profile{
		Device: "/dev/ttyUSB0",
		Baud:   250000,
		CS:     []string{"GPIO8"},
		Setup:  []string{"init 0 8"},
	}
	applyProfile(&dst, file, func(name string) bool { return name == "device" })

	want := profile{
		Device: "/dev/ttyACM3",
		Baud:   250000,
		CS:     []string{"GPIO8"},
		Setup:  []string{"init 0 8"},
	}
	if diff := cmp.Diff(want, dst); diff != "" {
		t.Errorf("applyProfile mismatch (-want +got):\n%s", diff)
	}
}

func TestRootCommandBadProfile(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "run", "help"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "failed to read profile") {
		t.Fatalf("Execute = %v, want profile read error", err)
	}
}

func TestRunNeedsArgs(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"run"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("run without lines should fail")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, false)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("info logger output = %q", buf.String())
	}

	buf.Reset()
	verbose := newLogger(&buf, true)
	verbose.Debug().Msg("detail")
	if !strings.Contains(buf.String(), "detail") {
		t.Errorf("verbose logger dropped debug: %q", buf.String())
	}
	if newLogger(&buf, true).GetLevel() != zerolog.DebugLevel {
		t.Error("verbose logger level")
	}
}
