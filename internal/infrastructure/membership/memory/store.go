// Package memory provides the in-memory membership store. There is no
// durable variant: meeting membership lives and dies with the session.
package memory

import (
	"sync"
	"time"

	"peermeet/internal/core/domain"
	"peermeet/internal/core/ports"
)

type MembershipStore struct {
	mu sync.RWMutex

	waiting      map[domain.PeerID]*waitingSlot
	waitingOrder []domain.PeerID

	admitted      map[domain.PeerID]*ports.Participant
	admittedOrder []domain.PeerID
}

type waitingSlot struct {
	entry   domain.WaitingEntry
	control ports.ControlChannel
}

func NewMembershipStore() *MembershipStore {
	return &MembershipStore{
		waiting:  make(map[domain.PeerID]*waitingSlot),
		admitted: make(map[domain.PeerID]*ports.Participant),
	}
}

var _ ports.MembershipStore = (*MembershipStore)(nil)

func (s *MembershipStore) AddWaiting(entry domain.WaitingEntry, control ports.ControlChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.waiting[entry.PeerID]; exists {
		return
	}
	if _, exists := s.admitted[entry.PeerID]; exists {
		return
	}
	if entry.RequestedAt.IsZero() {
		entry.RequestedAt = time.Now()
	}
	s.waiting[entry.PeerID] = &waitingSlot{entry: entry, control: control}
	s.waitingOrder = append(s.waitingOrder, entry.PeerID)
}

func (s *MembershipStore) Promote(id domain.PeerID) (*ports.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.waiting[id]
	if !ok {
		return nil, domain.ErrNotWaiting
	}
	delete(s.waiting, id)
	s.waitingOrder = removeID(s.waitingOrder, id)

	p := &ports.Participant{
		Record: domain.ParticipantRecord{
			PeerID:        slot.entry.PeerID,
			DisplayName:   slot.entry.DisplayName,
			OriginAddress: slot.entry.OriginAddress,
			Status:        domain.StatusAdmitted,
			JoinedAt:      time.Now(),
		},
		Control: slot.control,
	}
	s.admitted[id] = p
	s.admittedOrder = append(s.admittedOrder, id)
	return p, nil
}

func (s *MembershipStore) Remove(id domain.PeerID, reason domain.ParticipantStatus) (*ports.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.waiting[id]; ok {
		delete(s.waiting, id)
		s.waitingOrder = removeID(s.waitingOrder, id)
		return &ports.Participant{
			Record: domain.ParticipantRecord{
				PeerID:        slot.entry.PeerID,
				DisplayName:   slot.entry.DisplayName,
				OriginAddress: slot.entry.OriginAddress,
				Status:        reason,
			},
			Control: slot.control,
		}, true
	}

	p, ok := s.admitted[id]
	if !ok {
		return nil, false
	}
	delete(s.admitted, id)
	s.admittedOrder = removeID(s.admittedOrder, id)
	p.Record.Status = reason
	return p, true
}

func (s *MembershipStore) Get(id domain.PeerID) (*ports.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.admitted[id]
	return p, ok
}

func (s *MembershipStore) GetWaiting(id domain.PeerID) (domain.WaitingEntry, ports.ControlChannel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.waiting[id]
	if !ok {
		return domain.WaitingEntry{}, nil, false
	}
	return slot.entry, slot.control, true
}

func (s *MembershipStore) ListAdmitted() []*ports.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ports.Participant, 0, len(s.admittedOrder))
	for _, id := range s.admittedOrder {
		out = append(out, s.admitted[id])
	}
	return out
}

// Snapshot copies the admitted records while holding the lock, so readers
// off the session loop never observe a half-written media state.
func (s *MembershipStore) Snapshot() []domain.ParticipantRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ParticipantRecord, 0, len(s.admittedOrder))
	for _, id := range s.admittedOrder {
		out = append(out, s.admitted[id].Record)
	}
	return out
}

func (s *MembershipStore) ListWaiting() []domain.WaitingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WaitingEntry, 0, len(s.waitingOrder))
	for _, id := range s.waitingOrder {
		out = append(out, s.waiting[id].entry)
	}
	return out
}

func (s *MembershipStore) AttachCall(id domain.PeerID, call ports.MediaCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.admitted[id]
	if !ok {
		return domain.ErrNotAdmitted
	}
	p.Call = call
	return nil
}

func (s *MembershipStore) DetachCall(id domain.PeerID) (ports.MediaCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.admitted[id]
	if !ok || p.Call == nil {
		return nil, false
	}
	call := p.Call
	p.Call = nil
	return call, true
}

func (s *MembershipStore) SetMediaState(id domain.PeerID, kind domain.MediaKind, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.admitted[id]
	if !ok {
		return domain.ErrNotAdmitted
	}
	switch kind {
	case domain.MediaAudio:
		p.Record.Media.AudioEnabled = enabled
	case domain.MediaVideo:
		p.Record.Media.VideoEnabled = enabled
	}
	return nil
}

func removeID(ids []domain.PeerID, id domain.PeerID) []domain.PeerID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
