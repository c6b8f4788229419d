package core

import "sync/atomic"

// PauseSwitch is the shared halt flag gating updates and executions. The
// zero value is running. One switch instance is shared by every component
// that must honor the same pause.
type PauseSwitch struct {
	paused atomic.Bool
}

// Pause halts gated operations until Unpause.
func (p *PauseSwitch) Pause() { p.paused.Store(true) }

// Unpause resumes gated operations.
func (p *PauseSwitch) Unpause() { p.paused.Store(false) }

// Paused reports the current state.
func (p *PauseSwitch) Paused() bool { return p.paused.Load() }
