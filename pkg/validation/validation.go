// Package validation checks user-supplied meeting identifiers and names
// before they reach the wire.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"regexp"
)

var (
	// MeetingIDRegex matches the 6-character IDs the scheduler generates.
	MeetingIDRegex = regexp.MustCompile(`^[a-z0-9]{6}$`)

	// PeerIDRegex validates peer ID format.
	PeerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const maxDisplayNameLength = 64

// ValidateMeetingID validates a human-shareable meeting identifier.
func ValidateMeetingID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("meeting id is required")
	}
	if !MeetingIDRegex.MatchString(id) {
		return fmt.Errorf("meeting id must be 6 lowercase letters or digits")
	}
	return nil
}

// ValidatePeerID validates a peer identifier.
func ValidatePeerID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("peer id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("peer id is too long (max 128 characters)")
	}
	if !PeerIDRegex.MatchString(id) {
		return fmt.Errorf("peer id contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateDisplayName validates a participant display name.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return fmt.Errorf("display name is too long (max %d characters)", maxDisplayNameLength)
	}
	if strings.ContainsAny(name, "\x00\n\r\t") {
		return fmt.Errorf("display name contains control characters")
	}
	return nil
}

// ValidateChatText validates an outbound chat message.
func ValidateChatText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("chat text is required")
	}
	if utf8.RuneCountInString(text) > 2000 {
		return fmt.Errorf("chat text is too long (max 2000 characters)")
	}
	return nil
}
