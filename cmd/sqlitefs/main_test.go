package main

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestCommandTreeConstructsWithoutPanicking(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	commands := []struct {
		name string
		cmd  interface{ Name() string }
	}{
		{"init", newInitCommand(logger)},
		{"config", newConfigCommand(logger)},
		{"server", newServerCommand(logger)},
		{"diag", newDiagCommand(logger)},
	}
	for _, c := range commands {
		if c.cmd.Name() != c.name {
			t.Errorf("expected %q command, got %q", c.name, c.cmd.Name())
		}
	}
}

func TestServerCommandHasLifecycleSubcommands(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	server := newServerCommand(logger)
	want := map[string]bool{"start": false, "stop": false, "restart": false, "status": false}
	for _, sub := range server.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected server subcommand %q", name)
		}
	}
}
