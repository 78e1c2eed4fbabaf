package generator

import (
	"encoding/json"
)

// Persona is the character a participant configures before battling.
// Payloads are opaque to rooms; unknown or missing fields decode to zero values.
type Persona struct {
	Name          string `json:"name"`
	Style         string `json:"style"`
	RivalName     string `json:"rivalName"`
	RivalHistory  string `json:"rivalHistory"`
	RivalryReason string `json:"rivalryReason"`
}

// ParsePersona decodes raw leniently. Payloads that are not JSON objects
// yield a zero Persona.
func ParsePersona(raw json.RawMessage) Persona {
	var p Persona
	if len(raw) == 0 {
		return p
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Persona{}
	}
	return p
}
