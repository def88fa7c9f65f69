package app

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand(&bytes.Buffer{})

	var got []string
	for _, c := range root.Commands() {
		got = append(got, c.Name())
	}
	want := []string{"archive", "discover", "healthcheck", "migrate", "scout", "serve"}
	for _, name := range want {
		found := false
		for _, g := range got {
			if g == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q is missing (got %v)", name, got)
		}
	}
}

func TestDiscoverCommand_DryRunFlag(t *testing.T) {
	cmd := newDiscoverCommand(&bytes.Buffer{})
	if err := cmd.ParseFlags([]string{"--dry-run"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		t.Fatalf("GetBool failed: %v", err)
	}
	if !dryRun {
		t.Error("dry-run flag should be true")
	}
}

func TestScoutCommand_SeedFlag(t *testing.T) {
	cmd := newScoutCommand(&bytes.Buffer{})
	args := []string{"--seed", "https://www.bocholt.de", "--seed", "https://www.example.de/termine"}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	got, err := cmd.Flags().GetStringSlice("seed")
	if err != nil {
		t.Fatalf("GetStringSlice failed: %v", err)
	}
	want := []string{"https://www.bocholt.de", "https://www.example.de/termine"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("seed mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CommandDiscover, "discover"},
		{CommandServe, "serve"},
		{CommandMigrate, "migrate"},
		{CommandArchive, "archive"},
		{CommandScout, "scout"},
		{CommandHealthcheck, "healthcheck"},
	}

	for _, tt := range tests {
		if got := string(tt.cmd); got != tt.want {
			t.Errorf("Command(%q) string = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}
