package utils

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

// meetingIDAlphabet deliberately omits ambiguous characters (0/o, 1/l) so
// meeting IDs survive being read over the phone.
const meetingIDAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

const meetingIDLength = 6

// GenerateMeetingID returns a short human-shareable meeting identifier.
// The host's peer ID equals the meeting ID by convention.
func GenerateMeetingID() string {
	b := make([]byte, meetingIDLength)
	rand.Read(b)
	var sb strings.Builder
	for _, v := range b {
		sb.WriteByte(meetingIDAlphabet[int(v)%len(meetingIDAlphabet)])
	}
	return sb.String()
}

// GeneratePeerID returns a session-stable identifier for a participant.
func GeneratePeerID() string {
	return "peer-" + uuid.NewString()
}
