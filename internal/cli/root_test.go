package cli

import (
	"testing"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	expectedCommands := []string{
		"init",
		"start",
		"relay",
		"status",
	}

	actualCommands := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		actualCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !actualCommands[expected] {
			t.Errorf("expected subcommand %q not found in root command", expected)
		}
	}
}

func TestRootCommandInfo(t *testing.T) {
	if rootCmd.Use != "mhk" {
		t.Errorf("expected root command use to be 'mhk', got %q", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("root command should have a short description")
	}

	if rootCmd.Long == "" {
		t.Error("root command should have a long description")
	}
}

func TestRootCommandExposesGlogFlags(t *testing.T) {
	for _, name := range []string{"v", "logtostderr"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag %q", name)
		}
	}
}

func TestStartCommandFlags(t *testing.T) {
	tests := []struct {
		name      string
		shorthand string
	}{
		{"room", "r"},
		{"hostname", ""},
		{"open", "o"},
		{"sync", ""},
	}
	for _, tt := range tests {
		flag := startCmd.Flags().Lookup(tt.name)
		if flag == nil {
			t.Errorf("expected start flag --%s", tt.name)
			continue
		}
		if flag.Shorthand != tt.shorthand {
			t.Errorf("--%s: expected shorthand %q, got %q", tt.name, tt.shorthand, flag.Shorthand)
		}
	}
}
