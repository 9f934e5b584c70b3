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

func admitPeer(t *testing.T, store ports.MembershipStore, id domain.PeerID) *fakeChannel {
	t.Helper()
	ch := newFakeChannel(id)
	store.AddWaiting(domain.WaitingEntry{PeerID: id}, ch)
	_, err := store.Promote(id)
	require.NoError(t, err)
	return ch
}

func TestRelay_BroadcastExcludesSender(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(hostInfo(), store, ports.NopMetrics{}, logger)

	alice := admitPeer(t, store, "peer-alice")
	bob := admitPeer(t, store, "peer-bob")
	carol := admitPeer(t, store, "peer-carol")

	env := protocol.MustEnvelope(protocol.TypeChat, protocol.ChatPayload{
		SenderID: "peer-alice",
		Text:     "hello",
	})
	sent := relay.Broadcast(env, "peer-alice")

	assert.Equal(t, 2, sent)
	assert.Empty(t, alice.sentTypes(), "sender does not receive its own message")
	assert.Equal(t, []protocol.MessageType{protocol.TypeChat}, bob.sentTypes())
	assert.Equal(t, []protocol.MessageType{protocol.TypeChat}, carol.sentTypes())
}

func TestRelay_BroadcastPreservesAdmissionOrder(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(hostInfo(), store, ports.NopMetrics{}, logger)

	a := admitPeer(t, store, "peer-a")
	b := admitPeer(t, store, "peer-b")
	c := admitPeer(t, store, "peer-c")

	env1 := protocol.MustEnvelope(protocol.TypeChat, protocol.ChatPayload{Text: "one"})
	env2 := protocol.MustEnvelope(protocol.TypeChat, protocol.ChatPayload{Text: "two"})
	relay.Broadcast(env1, "")
	relay.Broadcast(env2, "")

	for _, ch := range []*fakeChannel{a, b, c} {
		types := ch.sentTypes()
		require.Len(t, types, 2)
		first, _ := ch.lastOfType(protocol.TypeChat)
		var chat protocol.ChatPayload
		require.NoError(t, protocol.DecodePayload(first, &chat))
		assert.Equal(t, "two", chat.Text, "messages delivered in relay order")
	}
}

func TestRelay_BroadcastSkipsFailedChannel(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(hostInfo(), store, ports.NopMetrics{}, logger)

	broken := admitPeer(t, store, "peer-broken")
	broken.Close()
	healthy := admitPeer(t, store, "peer-healthy")

	env := protocol.MustEnvelope(protocol.TypeMemberJoined, protocol.MemberPayload{PeerID: "peer-new"})
	sent := relay.Broadcast(env, "")

	assert.Equal(t, 1, sent)
	assert.Len(t, healthy.sentTypes(), 1)
}

func TestRelay_SendToUnknownPeer(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	store := memory.NewMembershipStore()
	relay := NewRelayRouter(hostInfo(), store, ports.NopMetrics{}, logger)

	env := protocol.MustEnvelope(protocol.TypeForceState, protocol.ForceStatePayload{Kind: domain.MediaAudio})
	err := relay.Send(env, "peer-ghost")
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
}

func TestRelay_SendToHost(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	store := memory.NewMembershipStore()
	info := domain.SessionInfo{
		SelfID:    "peer-p1",
		MeetingID: "abc123",
		Role:      domain.RoleParticipant,
	}
	relay := NewRelayRouter(info, store, ports.NopMetrics{}, logger)

	env := protocol.MustEnvelope(protocol.TypeChat, protocol.ChatPayload{Text: "hi"})
	assert.ErrorIs(t, relay.SendToHost(env), domain.ErrChannelClosed)

	host := newFakeChannel("abc123")
	relay.SetHostChannel(host)
	require.NoError(t, relay.SendToHost(env))
	assert.Equal(t, []protocol.MessageType{protocol.TypeChat}, host.sentTypes())
}
