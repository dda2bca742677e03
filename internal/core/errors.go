package core

import "errors"

var (
	ErrRoomNotFound           = errors.New("room not found")
	ErrParticipantNotFound    = errors.New("participant not found")
	ErrFabricAllocationFailed = errors.New("media fabric allocation failed")
	ErrNegotiationFailed      = errors.New("negotiation failed")
	ErrConnectionFailed       = errors.New("media connection failed")
	ErrInvalidCandidateTarget = errors.New("invalid candidate target")

	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)
