package orch

import (
	"encoding/json"

	"github.com/dkeye/meet/internal/core"
	"github.com/dkeye/meet/internal/domain"
)

var nullPayload = json.RawMessage("null")

// Signal forwards payload to the addressed connection untouched.
// There is no room check: the browser decides who it negotiates with.
func (o *Orchestrator) Signal(from, to domain.ConnID, payload json.RawMessage) {
	if to == "" {
		return
	}
	if len(payload) == 0 {
		payload = nullPayload
	}
	o.Out.Deliver(to, core.Signal(from, payload))
}
