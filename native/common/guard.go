// Package common holds helpers shared by the native club and token modules.
package common

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModulePaused is returned for calls into a module an operator has halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the operator pause switch for a module.
type PauseView interface {
	IsPaused(module string) bool
}

// StaticPauses is a fixed set of paused module names, matched case-insensitively.
type StaticPauses map[string]bool

// NewStaticPauses builds a StaticPauses from a list of module names.
func NewStaticPauses(modules ...string) StaticPauses {
	out := make(StaticPauses, len(modules))
	for _, m := range modules {
		if trimmed := strings.ToLower(strings.TrimSpace(m)); trimmed != "" {
			out[trimmed] = true
		}
	}
	return out
}

// IsPaused implements PauseView.
func (s StaticPauses) IsPaused(module string) bool {
	return s[strings.ToLower(strings.TrimSpace(module))]
}

// Guard fails with ErrModulePaused when module is paused in p.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
