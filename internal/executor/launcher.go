// File: internal/executor/launcher.go
package executor

import (
	"fmt"
	"strings"

	"github.com/vistral/deskpilot/internal/config"
)

// Launcher is the declarative alias -> command registry behind the launch
// action. The model only ever names aliases; the mapping to real commands is
// operator-controlled configuration, never model output.
type Launcher struct {
	aliases map[string]string
}

// NewLauncher validates and indexes the configured alias table. Aliases are
// matched case-insensitively.
func NewLauncher(cfg config.LauncherConfig) (*Launcher, error) {
	aliases := make(map[string]string, len(cfg.Aliases))
	for alias, command := range cfg.Aliases {
		key := normalizeAlias(alias)
		if key == "" || strings.TrimSpace(command) == "" {
			return nil, fmt.Errorf("launcher alias %q has an empty name or command", alias)
		}
		aliases[key] = command
	}
	return &Launcher{aliases: aliases}, nil
}

// Resolve maps an alias to its command, or fails with *UnknownAppError.
func (l *Launcher) Resolve(app string) (string, error) {
	if command, ok := l.aliases[normalizeAlias(app)]; ok {
		return command, nil
	}
	return "", &UnknownAppError{App: app, Known: l.Known()}
}

// Known lists the registered alias names.
func (l *Launcher) Known() []string {
	known := make([]string, 0, len(l.aliases))
	for alias := range l.aliases {
		known = append(known, alias)
	}
	return known
}

func normalizeAlias(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
