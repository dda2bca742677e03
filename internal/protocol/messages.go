// Package protocol defines the signaling messages exchanged with clients.
//
// Every message is a JSON object whose "event" field selects the variant.
// The set of variants is closed: Inbound and Outbound can only be
// implemented inside this package.
package protocol

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

type Event string

const (
	EventJoinRoom         Event = "joinRoom"
	EventReceiveVideoFrom Event = "receiveVideoFrom"
	EventCandidate        Event = "candidate"
	EventParticipantLeft  Event = "participantLeft"

	EventNewParticipantArrived Event = "newParticipantArrived"
	EventExistingParticipants  Event = "existingParticipants"
	EventReceiveVideoAnswer    Event = "receiveVideoAnswer"
	EventLeaveRoom             Event = "leaveRoom"
	EventError                 Event = "error"
)

// Inbound is a message sent by a client to the server.
type Inbound interface {
	Event() Event
	inbound()
}

type JoinRoom struct {
	UserName string `json:"userName"`
	RoomName string `json:"roomName"`
}

type ReceiveVideoFrom struct {
	UserID   string `json:"userid"`
	RoomName string `json:"roomName"`
	SDPOffer string `json:"sdpOffer"`
}

// Candidate carries a client-side ICE candidate. UserID names the
// participant whose stream the candidate belongs to.
type Candidate struct {
	UserID    string                  `json:"userid"`
	RoomName  string                  `json:"roomName"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type ParticipantLeft struct {
	RoomName string `json:"roomName"`
}

func (JoinRoom) Event() Event         { return EventJoinRoom }
func (ReceiveVideoFrom) Event() Event { return EventReceiveVideoFrom }
func (Candidate) Event() Event        { return EventCandidate }
func (ParticipantLeft) Event() Event  { return EventParticipantLeft }

func (JoinRoom) inbound()         {}
func (ReceiveVideoFrom) inbound() {}
func (Candidate) inbound()        {}
func (ParticipantLeft) inbound()  {}

// Outbound is a message sent by the server to one or more clients.
type Outbound interface {
	Event() Event
	outbound()
}

type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type NewParticipantArrived struct {
	UserID   string `json:"userid"`
	Username string `json:"username"`
}

// ExistingParticipants is sent to a joiner only. UserID is the joiner's own id.
type ExistingParticipants struct {
	UserID        string     `json:"userid"`
	ExistingUsers []UserInfo `json:"existingUsers"`
}

// IceCandidate carries a server-side candidate discovered for the stream of UserID.
type IceCandidate struct {
	UserID    string                  `json:"userid"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type ReceiveVideoAnswer struct {
	SenderID  string `json:"senderid"`
	SDPAnswer string `json:"sdpAnswer"`
}

type LeaveRoom struct {
	UserID string `json:"userid"`
}

// Error reports a failed request back to the connection that issued it.
type Error struct {
	Request Event  `json:"request"`
	UserID  string `json:"userid,omitempty"`
	Message string `json:"message"`
}

func (NewParticipantArrived) Event() Event { return EventNewParticipantArrived }
func (ExistingParticipants) Event() Event  { return EventExistingParticipants }
func (IceCandidate) Event() Event          { return EventCandidate }
func (ReceiveVideoAnswer) Event() Event    { return EventReceiveVideoAnswer }
func (LeaveRoom) Event() Event             { return EventLeaveRoom }
func (Error) Event() Event                 { return EventError }

func (NewParticipantArrived) outbound() {}
func (ExistingParticipants) outbound()  {}
func (IceCandidate) outbound()          {}
func (ReceiveVideoAnswer) outbound()    {}
func (LeaveRoom) outbound()             {}
func (Error) outbound()                 {}

func (m NewParticipantArrived) MarshalJSON() ([]byte, error) {
	type body NewParticipantArrived
	return json.Marshal(struct {
		Event Event `json:"event"`
		body
	}{m.Event(), body(m)})
}

func (m ExistingParticipants) MarshalJSON() ([]byte, error) {
	type body ExistingParticipants
	if m.ExistingUsers == nil {
		m.ExistingUsers = []UserInfo{}
	}
	return json.Marshal(struct {
		Event Event `json:"event"`
		body
	}{m.Event(), body(m)})
}

func (m IceCandidate) MarshalJSON() ([]byte, error) {
	type body IceCandidate
	return json.Marshal(struct {
		Event Event `json:"event"`
		body
	}{m.Event(), body(m)})
}

func (m ReceiveVideoAnswer) MarshalJSON() ([]byte, error) {
	type body ReceiveVideoAnswer
	return json.Marshal(struct {
		Event Event `json:"event"`
		body
	}{m.Event(), body(m)})
}

func (m LeaveRoom) MarshalJSON() ([]byte, error) {
	type body LeaveRoom
	return json.Marshal(struct {
		Event Event `json:"event"`
		body
	}{m.Event(), body(m)})
}

func (m Error) MarshalJSON() ([]byte, error) {
	type body Error
	return json.Marshal(struct {
		Event Event `json:"event"`
		body
	}{m.Event(), body(m)})
}
