package realtime

import "sync"

// CallStore is the client-side single source of truth for call presentation.
// The connector writes normalized payloads into it; UI code only reads.
type CallStore struct {
	mu sync.Mutex

	incoming *NormalizedIncomingCall
	statuses map[int64]NormalizedCallStatus // by conversation_id

	widgetVisible bool
}

func NewCallStore() *CallStore {
	return &CallStore{statuses: map[int64]NormalizedCallStatus{}}
}

// SetIncomingCall stores the active incoming call and flips the widget
// visible immediately.
func (s *CallStore) SetIncomingCall(p NormalizedIncomingCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.incoming = &cp
	s.widgetVisible = true
}

// ApplyStatusChange records the published status verbatim. No state-machine
// validation happens here; the publisher is trusted.
func (s *CallStore) ApplyStatusChange(u NormalizedCallStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[u.ConversationID] = u
}

func (s *CallStore) IncomingCall() (NormalizedIncomingCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incoming == nil {
		return NormalizedIncomingCall{}, false
	}
	return *s.incoming, true
}

func (s *CallStore) Status(conversationID int64) (NormalizedCallStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.statuses[conversationID]
	return u, ok
}

func (s *CallStore) WidgetVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.widgetVisible
}

// DismissWidget hides the call widget, e.g. after the user acts on it.
func (s *CallStore) DismissWidget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgetVisible = false
	s.incoming = nil
}
