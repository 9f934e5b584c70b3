package domain

import "errors"

var (
	ErrPeerNotFound     = errors.New("peer not found")
	ErrNotWaiting       = errors.New("peer is not in the waiting room")
	ErrNotAdmitted      = errors.New("peer is not admitted")
	ErrMeetingLocked    = errors.New("meeting is locked")
	ErrAlreadyConnected = errors.New("media call already established")
	ErrNotHost          = errors.New("operation requires the host role")
	ErrChannelClosed    = errors.New("control channel closed")
	ErrMediaUnavailable = errors.New("media source unavailable")
)
