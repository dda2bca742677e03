package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Inbound
	}{
		{
			name: "join",
			in:   `{"event":"joinRoom","userName":"alice","roomName":"r1"}`,
			want: JoinRoom{UserName: "alice", RoomName: "r1"},
		},
		{
			name: "receive video",
			in:   `{"event":"receiveVideoFrom","userid":"A","roomName":"r1","sdpOffer":"v=0"}`,
			want: ReceiveVideoFrom{UserID: "A", RoomName: "r1", SDPOffer: "v=0"},
		},
		{
			name: "participant left",
			in:   `{"event":"participantLeft","roomName":"r1"}`,
			want: ParticipantLeft{RoomName: "r1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInboundCandidate(t *testing.T) {
	in := `{"event":"candidate","userid":"B","roomName":"r1",` +
		`"candidate":{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 50000 typ host","sdpMid":"0","sdpMLineIndex":0}}`

	got, err := DecodeInbound([]byte(in))
	require.NoError(t, err)

	c, ok := got.(Candidate)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, "B", c.UserID)
	assert.Equal(t, "r1", c.RoomName)
	assert.Contains(t, c.Candidate.Candidate, "typ host")
	require.NotNil(t, c.Candidate.SDPMid)
	assert.Equal(t, "0", *c.Candidate.SDPMid)
	require.NotNil(t, c.Candidate.SDPMLineIndex)
	assert.Equal(t, uint16(0), *c.Candidate.SDPMLineIndex)
}

func TestDecodeInboundErrors(t *testing.T) {
	_, err := DecodeInbound([]byte(`not json`))
	require.ErrorIs(t, err, ErrBadPayload)

	_, err = DecodeInbound([]byte(`{"event":"ping"}`))
	require.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeInbound([]byte(`{"event":"joinRoom","roomName":42}`))
	require.ErrorIs(t, err, ErrBadPayload)
}

func TestEncodeCarriesEvent(t *testing.T) {
	mid := "0"
	tests := []struct {
		msg   Outbound
		event string
		field string
	}{
		{NewParticipantArrived{UserID: "B", Username: "bob"}, "newParticipantArrived", "username"},
		{ExistingParticipants{UserID: "A"}, "existingParticipants", "existingUsers"},
		{IceCandidate{UserID: "A", Candidate: webrtc.ICECandidateInit{Candidate: "c", SDPMid: &mid}}, "candidate", "candidate"},
		{ReceiveVideoAnswer{SenderID: "A", SDPAnswer: "v=0"}, "receiveVideoAnswer", "sdpAnswer"},
		{LeaveRoom{UserID: "A"}, "leaveRoom", "userid"},
		{Error{Request: EventJoinRoom, Message: "boom"}, "error", "request"},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			b, err := Encode(tt.msg)
			require.NoError(t, err)

			var m map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(b, &m))
			assert.JSONEq(t, `"`+tt.event+`"`, string(m["event"]))
			assert.Contains(t, m, tt.field)
		})
	}
}

func TestEncodeExistingParticipantsEmptyList(t *testing.T) {
	b, err := Encode(ExistingParticipants{UserID: "A"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"existingParticipants","userid":"A","existingUsers":[]}`, string(b))
}
