package services

import (
	"testing"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"
	"peermeet/internal/core/protocol"
	"peermeet/internal/infrastructure/membership/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPresence_HostRebroadcastsStateChange(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	info := hostInfo()
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(info, store, ports.NopMetrics{}, logger)
	notifier := &recordingNotifier{}
	presence := NewPresenceSync(info, store, relay, notifier, logger)

	alice := admitPeer(t, store, "peer-alice")
	bob := admitPeer(t, store, "peer-bob")

	presence.AnnounceStateChange("peer-alice", domain.MediaAudio, false)

	// The origin's record is updated and everyone else hears about it.
	p, ok := store.Get("peer-alice")
	require.True(t, ok)
	assert.False(t, p.Record.Media.AudioEnabled)
	assert.Empty(t, alice.sentTypes(), "origin excluded from rebroadcast")
	require.Len(t, bob.sentTypes(), 1)

	env, _ := bob.lastOfType(protocol.TypePresenceUpdate)
	var update protocol.PresenceUpdatePayload
	require.NoError(t, protocol.DecodePayload(env, &update))
	assert.Equal(t, domain.PeerID("peer-alice"), update.PeerID)
	assert.Equal(t, domain.MediaAudio, update.Kind)
	assert.False(t, update.Enabled)
	assert.True(t, notifier.has("presence"))
}

func TestPresence_HostOwnStateChangeSkipsStoreUpdate(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	info := hostInfo()
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(info, store, ports.NopMetrics{}, logger)
	presence := NewPresenceSync(info, store, relay, ports.NopNotifier{}, logger)

	bob := admitPeer(t, store, "peer-bob")

	// The host is not in its own membership store; its change only fans out.
	presence.AnnounceStateChange(info.SelfID, domain.MediaVideo, false)

	require.Len(t, bob.sentTypes(), 1)
	env, _ := bob.lastOfType(protocol.TypePresenceUpdate)
	var update protocol.PresenceUpdatePayload
	require.NoError(t, protocol.DecodePayload(env, &update))
	assert.Equal(t, info.SelfID, update.PeerID)
}

func TestPresence_UnknownOriginDropped(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	info := hostInfo()
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(info, store, ports.NopMetrics{}, logger)
	notifier := &recordingNotifier{}
	presence := NewPresenceSync(info, store, relay, notifier, logger)

	bob := admitPeer(t, store, "peer-bob")

	presence.AnnounceStateChange("peer-ghost", domain.MediaAudio, false)

	assert.Empty(t, bob.sentTypes(), "nothing rebroadcast for unknown peers")
	assert.False(t, notifier.has("presence"))
}

func TestPresence_ParticipantReportsUpward(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	info := domain.SessionInfo{
		SelfID:    "peer-p1",
		MeetingID: "abc123",
		Role:      domain.RoleParticipant,
	}
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(info, store, ports.NopMetrics{}, logger)
	host := newFakeChannel("abc123")
	relay.SetHostChannel(host)
	presence := NewPresenceSync(info, store, relay, ports.NopNotifier{}, logger)

	presence.AnnounceStateChange("peer-p1", domain.MediaVideo, false)

	require.Len(t, host.sentTypes(), 1)
	env, _ := host.lastOfType(protocol.TypePresenceUpdate)
	var update protocol.PresenceUpdatePayload
	require.NoError(t, protocol.DecodePayload(env, &update))
	assert.Equal(t, domain.PeerID("peer-p1"), update.PeerID)
	assert.Equal(t, domain.MediaVideo, update.Kind)
}

func TestPresence_JoinLeaveAnnouncementsExcludeSubject(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	info := hostInfo()
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(info, store, ports.NopMetrics{}, logger)
	presence := NewPresenceSync(info, store, relay, ports.NopNotifier{}, logger)

	alice := admitPeer(t, store, "peer-alice")
	bob := admitPeer(t, store, "peer-bob")

	presence.AnnounceJoin("peer-bob", "Bob")
	assert.Equal(t, []protocol.MessageType{protocol.TypeMemberJoined}, alice.sentTypes())
	assert.Empty(t, bob.sentTypes())

	presence.AnnounceLeave("peer-bob")
	assert.Equal(t,
		[]protocol.MessageType{protocol.TypeMemberJoined, protocol.TypeMemberLeft},
		alice.sentTypes())
}

func TestPresence_ParticipantDoesNotAnnounceMembership(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	info := domain.SessionInfo{
		SelfID:    "peer-p1",
		MeetingID: "abc123",
		Role:      domain.RoleParticipant,
	}
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(info, store, ports.NopMetrics{}, logger)
	host := newFakeChannel("abc123")
	relay.SetHostChannel(host)
	presence := NewPresenceSync(info, store, relay, ports.NopNotifier{}, logger)

	presence.AnnounceJoin("peer-x", "X")
	presence.AnnounceLeave("peer-x")

	assert.Empty(t, host.sentTypes(), "membership announcements are host-only")
}
