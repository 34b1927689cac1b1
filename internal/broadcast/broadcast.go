// Package broadcast is the outward channel the simulation publishes viewer
// updates through.
package broadcast

import "sync"

// Publisher delivers a message to every viewer of a session. Implementations
// must not block the caller.
type Publisher interface {
	Publish(sessionID, msgType string, payload any)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Publish(string, string, any) {}

// Message is one captured publication.
type Message struct {
	SessionID string
	Type      string
	Payload   any
}

// Recorder keeps every published message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(sessionID, msgType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{SessionID: sessionID, Type: msgType, Payload: payload})
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// OfType returns recorded messages with the given type.
func (r *Recorder) OfType(msgType string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// Reset forgets all recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
