package app

import (
	"testing"

	"github.com/hitoshi/myftc/internal/config"
)

func TestParseCommand_DefaultsToServe(t *testing.T) {
	cmd := ParseCommand([]string{})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_Serve(t *testing.T) {
	cmd := ParseCommand([]string{"serve"})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([serve]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_Worker(t *testing.T) {
	cmd := ParseCommand([]string{"worker"})
	if cmd != CommandWorker {
		t.Errorf("ParseCommand([worker]) = %q, want %q", cmd, CommandWorker)
	}
}

func TestParseCommand_Migrate(t *testing.T) {
	cmd := ParseCommand([]string{"migrate"})
	if cmd != CommandMigrate {
		t.Errorf("ParseCommand([migrate]) = %q, want %q", cmd, CommandMigrate)
	}
}

func TestParseCommand_UnknownDefaultsToServe(t *testing.T) {
	cmd := ParseCommand([]string{"unknown"})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([unknown]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd := ParseCommand([]string{"worker", "--flag", "value"})
	if cmd != CommandWorker {
		t.Errorf("ParseCommand([worker --flag value]) = %q, want %q", cmd, CommandWorker)
	}
}

func TestParseCommand_Healthcheck(t *testing.T) {
	cmd := ParseCommand([]string{"healthcheck"})
	if cmd != CommandHealthcheck {
		t.Errorf("ParseCommand([healthcheck]) = %q, want %q", cmd, CommandHealthcheck)
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CommandServe, "serve"},
		{CommandWorker, "worker"},
		{CommandMigrate, "migrate"},
		{CommandHealthcheck, "healthcheck"},
	}

	for _, tt := range tests {
		if got := string(tt.cmd); got != tt.want {
			t.Errorf("Command(%q) string = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestCommand_CheckBackend(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		backend  string
		wantSkip bool
		wantErr  bool
	}{
		{"serve postgres", CommandServe, config.SessionBackendPostgres, false, false},
		{"serve badger", CommandServe, config.SessionBackendBadger, false, false},
		{"worker postgres", CommandWorker, config.SessionBackendPostgres, false, false},
		{"worker badger", CommandWorker, config.SessionBackendBadger, false, true},
		{"worker memory", CommandWorker, config.SessionBackendMemory, false, true},
		{"migrate postgres", CommandMigrate, config.SessionBackendPostgres, false, false},
		{"migrate badger", CommandMigrate, config.SessionBackendBadger, true, false},
		{"migrate memory", CommandMigrate, config.SessionBackendMemory, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, err := tt.cmd.checkBackend(tt.backend)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkBackend(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
			if skip != tt.wantSkip {
				t.Errorf("checkBackend(%q) skip = %v, want %v", tt.backend, skip, tt.wantSkip)
			}
		})
	}
}
