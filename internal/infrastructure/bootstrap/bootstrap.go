// Package bootstrap reads the session bootstrap blob: the opaque record the
// scheduler writes and the meeting client reads exactly once at startup.
// Missing or invalid bootstrap data is fatal; there is no meeting to join
// without it.
package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"peermeet/internal/core/domain"
	"peermeet/pkg/utils"
	"peermeet/pkg/validation"
)

// Schedule carries the meeting metadata collected at scheduling time. It is
// informational; nothing in the coordination core depends on it.
type Schedule struct {
	Topic       string        `json:"topic,omitempty"`
	Description string        `json:"description,omitempty"`
	When        time.Time     `json:"when,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Timezone    string        `json:"timezone,omitempty"`
}

// Data is the bootstrap blob.
type Data struct {
	MeetingID   string `json:"meeting_id"`
	IsHost      bool   `json:"is_host"`
	DisplayName string `json:"display_name"`
	HostOrigin  string `json:"host_origin,omitempty"`

	// Media defaults chosen at scheduling time.
	AudioEnabled bool `json:"audio_enabled"`
	VideoEnabled bool `json:"video_enabled"`

	Schedule *Schedule `json:"schedule,omitempty"`
}

// Load reads the blob from path and applies environment overrides, so a
// participant can join with nothing but PEERMEET_MEETING_ID and
// PEERMEET_DISPLAY_NAME set.
func Load(path string) (*Data, error) {
	data := &Data{AudioEnabled: true, VideoEnabled: true}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read bootstrap file %s: %w", path, err)
			}
		} else if err := json.Unmarshal(raw, data); err != nil {
			return nil, fmt.Errorf("failed to parse bootstrap file %s: %w", path, err)
		}
	}

	data.applyEnvOverrides()
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return data, nil
}

func (d *Data) applyEnvOverrides() {
	if v := os.Getenv("PEERMEET_MEETING_ID"); v != "" {
		d.MeetingID = v
	}
	if v := os.Getenv("PEERMEET_DISPLAY_NAME"); v != "" {
		d.DisplayName = v
	}
	if v := os.Getenv("PEERMEET_HOST"); v != "" {
		d.IsHost = v == "true" || v == "1"
	}
	if v := os.Getenv("PEERMEET_HOST_ORIGIN"); v != "" {
		d.HostOrigin = v
	}
}

func (d *Data) Validate() error {
	if err := validation.ValidateMeetingID(d.MeetingID); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if d.DisplayName == "" && d.IsHost {
		d.DisplayName = "Host"
	}
	if err := validation.ValidateDisplayName(d.DisplayName); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

// SessionInfo derives the local session identity. The host's peer ID is the
// meeting ID; participants get a random one.
func (d *Data) SessionInfo() domain.SessionInfo {
	info := domain.SessionInfo{
		MeetingID:   domain.MeetingID(strings.TrimSpace(d.MeetingID)),
		DisplayName: strings.TrimSpace(d.DisplayName),
		Role:        domain.RoleParticipant,
	}
	if d.IsHost {
		info.Role = domain.RoleHost
		info.SelfID = domain.PeerID(info.MeetingID)
	} else {
		info.SelfID = domain.PeerID(utils.GeneratePeerID())
	}
	return info
}

// InitialMedia returns the scheduled media defaults.
func (d *Data) InitialMedia() domain.LocalMediaState {
	return domain.LocalMediaState{
		AudioEnabled: d.AudioEnabled,
		VideoEnabled: d.VideoEnabled,
	}
}

// Write persists the blob for the meeting client to pick up.
func (d *Data) Write(path string) error {
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bootstrap data: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write bootstrap file %s: %w", path, err)
	}
	return nil
}
