// Package chat orchestrates a full tutoring turn: context assembly, prompt
// composition, the LLM call, hidden system-action handling, transcript
// persistence and background session summarization.
package chat

import "sync"

// TeachMode is a process-wide toggle. While on, the agent receives no
// conversational context and its replies are suppressed; the teacher can feed
// material without the agent chiming in.
type TeachMode struct {
	mu sync.Mutex
	on bool
}

// IsOn reports the current state.
func (t *TeachMode) IsOn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.on
}

// SetOn flips the flag and returns the resulting state.
func (t *TeachMode) SetOn(enabled bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.on = enabled
	return t.on
}
