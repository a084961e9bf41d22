package ingress

import (
	"context"
	"encoding/json"
)

// StatusDocument is the JSON payload returned for a Status-state server-list
// ping (spec.md §4.2 "Status"). Field shape is carried over from the
// teacher's query responder (query.Data), repurposed from the UDP query
// protocol to this state's JSON document.
type StatusDocument struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int      `json:"max"`
		Online int      `json:"online"`
		Sample []string `json:"sample,omitempty"`
	} `json:"players"`
	Description string `json:"description"`
}

// StatusProvider supplies the live values shown in a Status response. The
// server wires this to its own player-count/MOTD bookkeeping.
type StatusProvider interface {
	Status() StatusDocument
}

// Encode marshals the document as the JSON body of the Status response
// frame.
func (d StatusDocument) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// Skin is the opaque skin payload returned by a SkinResolver (spec.md §6
// "treated as opaque").
type Skin struct {
	Data []byte
}

// SkinResolver resolves a username to skin data via an external, out-of-scope
// collaborator (e.g. a remote HTTP identity service). Invoked asynchronously
// exactly once per Login (spec.md §4.2 "Login").
type SkinResolver interface {
	Resolve(ctx context.Context, username string) (Skin, error)
}
