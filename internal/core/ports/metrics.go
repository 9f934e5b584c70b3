package ports

import "peermeet/internal/core/protocol"

// MetricsRecorder decouples the core from the metrics backend.
type MetricsRecorder interface {
	JoinRequest(decision string)
	MembershipCounts(waiting, admitted int)
	MessageRelayed(t protocol.MessageType, fanout int)
	ChatMessage()
	CallEstablished(seconds float64)
	CallsActive(n int)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) JoinRequest(string)                          {}
func (NopMetrics) MembershipCounts(int, int)                   {}
func (NopMetrics) MessageRelayed(protocol.MessageType, int)    {}
func (NopMetrics) ChatMessage()                                {}
func (NopMetrics) CallEstablished(float64)                     {}
func (NopMetrics) CallsActive(int)                             {}
