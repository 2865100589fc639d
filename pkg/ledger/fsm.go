// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"fmt"
	"strings"

	"github.com/luxfi/aip/pkg/core"
)

// State is the lifecycle position of a ledger record. Transitions are
// monotonic: CREATED settles to SERVED or NO_BID, and a served auction
// terminates on its first billing event.
type State string

const (
	StateCreated     State = "created"
	StateServed      State = "served"
	StateNoBid       State = "no_bid"
	StateCPXReported State = "cpx_reported"
	StateCPCReported State = "cpc_reported"
	StateCPAReported State = "cpa_reported"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateNoBid, StateCPXReported, StateCPCReported, StateCPAReported:
		return true
	}
	return false
}

// Event is a normalized billing event type.
type Event string

const (
	EventCPX Event = "cpx"
	EventCPC Event = "cpc"
	EventCPA Event = "cpa"
)

// EventBidReceived marks bid-trace entries in the record history. It is
// observational and never drives the state machine.
const EventBidReceived = "bid_received"

// Older reporters use descriptive event names; they normalize to the
// three billing types.
var eventAliases = map[string]Event{
	"cpx":            EventCPX,
	"cpx_exposure":   EventCPX,
	"exposure":       EventCPX,
	"impression":     EventCPX,
	"cpc":            EventCPC,
	"cpc_click":      EventCPC,
	"click":          EventCPC,
	"cpa":            EventCPA,
	"cpa_conversion": EventCPA,
	"conversion":     EventCPA,
	"acquisition":    EventCPA,
}

// ParseEvent normalizes an event type string, accepting aliases.
func ParseEvent(s string) (Event, error) {
	if ev, ok := eventAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return ev, nil
	}
	return "", fmt.Errorf("%w: unknown event type %q", core.ErrSchemaInvalid, s)
}

// Reported returns the terminal state a billing event drives a served
// auction into.
func (e Event) Reported() State {
	switch e {
	case EventCPC:
		return StateCPCReported
	case EventCPA:
		return StateCPAReported
	default:
		return StateCPXReported
	}
}

// Model maps the event to the pricing model it bills under.
func (e Event) Model() core.PricingModel {
	switch e {
	case EventCPC:
		return core.ModelCPC
	case EventCPA:
		return core.ModelCPA
	default:
		return core.ModelCPX
	}
}
