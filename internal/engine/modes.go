package engine

import "sync"

// Modes holds the two process-wide routing gates: the global bot kill switch
// and the conversation-mode flag. Both are plain in-memory state and reset to
// their configured defaults on process restart. Toggles take effect for the
// next inbound message; in-flight handlers are not affected.
type Modes struct {
	mu                 sync.RWMutex
	botEnabled         bool
	conversationActive bool
}

// NewModes creates the mode switch with its boot defaults.
func NewModes(botEnabled, conversationActive bool) *Modes {
	return &Modes{botEnabled: botEnabled, conversationActive: conversationActive}
}

// BotEnabled reports the global kill switch.
func (m *Modes) BotEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.botEnabled
}

// SetBotEnabled flips the global kill switch.
func (m *Modes) SetBotEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botEnabled = enabled
}

// ConversationActive reports whether inbound traffic is routed at all.
func (m *Modes) ConversationActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conversationActive
}

// StartConversationMode routes inbound traffic to the flows.
func (m *Modes) StartConversationMode() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversationActive = true
}

// StopConversationMode stops routing inbound traffic; messages are ignored.
func (m *Modes) StopConversationMode() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversationActive = false
}
