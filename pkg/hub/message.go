// Package hub fans dashboard events out to websocket clients using a
// channel-based broadcast loop.
package hub

import (
	"encoding/json"
	"time"
)

// Event kinds published to clients.
const (
	KindAnnouncement = "announcement" // announce.Outcome
	KindFrame        = "frame"        // pipeline.FrameResult
	KindMode         = "mode"         // mode change
	KindReset        = "reset"        // world state reset
)

// Envelope wraps every event sent to clients.
type Envelope struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Message is one encoded frame queued for clients.
type Message struct {
	Kind string
	Data []byte
}

// Encode wraps v in an Envelope of the given kind and encodes it.
func Encode(kind string, v any) (Message, error) {
	data, err := json.Marshal(Envelope{Type: kind, Time: time.Now().UTC(), Data: v})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, Data: data}, nil
}
