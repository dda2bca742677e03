package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrBadPayload   = errors.New("bad payload")
	ErrUnknownEvent = errors.New("unknown event")
)

// DecodeInbound parses one client frame into its variant.
func DecodeInbound(data []byte) (Inbound, error) {
	var env struct {
		Event Event `json:"event"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var msg Inbound
	var err error
	switch env.Event {
	case EventJoinRoom:
		var m JoinRoom
		err = json.Unmarshal(data, &m)
		msg = m
	case EventReceiveVideoFrom:
		var m ReceiveVideoFrom
		err = json.Unmarshal(data, &m)
		msg = m
	case EventCandidate:
		var m Candidate
		err = json.Unmarshal(data, &m)
		msg = m
	case EventParticipantLeft:
		var m ParticipantLeft
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Event, err)
	}
	return msg, nil
}

func Encode(msg Outbound) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	return b, nil
}
