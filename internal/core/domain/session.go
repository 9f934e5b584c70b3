package domain

type PeerID string
type MeetingID string

type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// MediaKind distinguishes the two toggleable media tracks.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

// MediaState is the self-reported track enablement of one participant.
type MediaState struct {
	AudioEnabled bool `json:"audio_enabled"`
	VideoEnabled bool `json:"video_enabled"`
}

// LocalMediaState extends MediaState with screen sharing, which is only
// meaningful for the local side (remotes just see a substituted track).
type LocalMediaState struct {
	AudioEnabled  bool `json:"audio_enabled"`
	VideoEnabled  bool `json:"video_enabled"`
	ScreenSharing bool `json:"screen_sharing"`
}

// SessionInfo is the immutable identity of the local client's participation
// in one meeting. The meeting ID doubles as the host's peer ID: participants
// reach the host by connecting to it.
type SessionInfo struct {
	SelfID      PeerID    `json:"self_id"`
	MeetingID   MeetingID `json:"meeting_id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
}

func (s SessionInfo) IsHost() bool { return s.Role == RoleHost }

// HostPeerID returns the peer ID the host is reachable at.
func (s SessionInfo) HostPeerID() PeerID { return PeerID(s.MeetingID) }

// MeetingPolicy is the host-side admission policy. Locked takes precedence
// over the waiting room: a locked meeting rejects every join request.
type MeetingPolicy struct {
	WaitingRoom bool `json:"waiting_room"`
	Locked      bool `json:"locked"`
	Mesh        bool `json:"mesh"`
}
