package coordinator

import (
	"encoding/json"

	"proctorhub/pkg/interfaces"
	"proctorhub/pkg/types"
)

// event is the sum type delivered into the coordinator loop
// ARCHITECTURAL DISCOVERY: One typed mailbox instead of per-kind channels
// keeps mutation ordering identical to arrival ordering across event kinds
type event interface {
	isEvent()
}

type joinEvent struct {
	conn    interfaces.Conn
	payload types.JoinPayload
}

type leaveEvent struct {
	studentID string
	reason    string
	connID    string // non-empty: remove only if still bound to this connection
}

type frameEvent struct {
	payload *types.FramePayload
}

type violationEvent struct {
	payload *types.ViolationPayload
}

type observerJoinEvent struct {
	conn interfaces.Conn
}

type observerLeaveEvent struct {
	connID string
}

type refreshEvent struct{}

type reapRecheckEvent struct{}

type clientErrorEvent struct {
	studentID string
	data      json.RawMessage
}

func (joinEvent) isEvent()          {}
func (leaveEvent) isEvent()         {}
func (frameEvent) isEvent()         {}
func (violationEvent) isEvent()     {}
func (observerJoinEvent) isEvent()  {}
func (observerLeaveEvent) isEvent() {}
func (refreshEvent) isEvent()       {}
func (reapRecheckEvent) isEvent()   {}
func (clientErrorEvent) isEvent()   {}
