package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"peermeet/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBlob(t *testing.T, blob string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.json")
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o600))
	return path
}

func TestLoad_HostBlob(t *testing.T) {
	path := writeBlob(t, `{
		"meeting_id": "abc123",
		"is_host": true,
		"display_name": "Alice",
		"audio_enabled": true,
		"video_enabled": false
	}`)

	data, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", data.MeetingID)
	assert.True(t, data.IsHost)
	assert.Equal(t, "Alice", data.DisplayName)
	assert.True(t, data.InitialMedia().AudioEnabled)
	assert.False(t, data.InitialMedia().VideoEnabled)
}

func TestLoad_MissingFileNeedsEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")

	_, err := Load(path)
	assert.Error(t, err, "no file and no env means no meeting")

	t.Setenv("PEERMEET_MEETING_ID", "abc123")
	t.Setenv("PEERMEET_DISPLAY_NAME", "Bob")

	data, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", data.MeetingID)
	assert.Equal(t, "Bob", data.DisplayName)
	assert.False(t, data.IsHost)
	// Media defaults to on when nothing was scheduled.
	assert.True(t, data.AudioEnabled)
	assert.True(t, data.VideoEnabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeBlob(t, `{"meeting_id": "abc123", "display_name": "File Name"}`)
	t.Setenv("PEERMEET_DISPLAY_NAME", "Env Name")
	t.Setenv("PEERMEET_HOST", "1")

	data, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Env Name", data.DisplayName)
	assert.True(t, data.IsHost)
}

func TestLoad_MalformedBlob(t *testing.T) {
	path := writeBlob(t, `{"meeting_id": `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		data    Data
		wantErr bool
	}{
		{"valid participant", Data{MeetingID: "abc123", DisplayName: "Alice"}, false},
		{"host gets default name", Data{MeetingID: "abc123", IsHost: true}, false},
		{"participant without name", Data{MeetingID: "abc123"}, true},
		{"bad meeting id", Data{MeetingID: "NOPE", DisplayName: "Alice"}, true},
		{"missing meeting id", Data{DisplayName: "Alice"}, true},
		{"name too long", Data{MeetingID: "abc123", DisplayName: strings.Repeat("a", 65)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSessionInfo_HostPeerIDEqualsMeetingID(t *testing.T) {
	data := Data{MeetingID: "abc123", IsHost: true, DisplayName: "Host"}
	info := data.SessionInfo()
	assert.Equal(t, domain.RoleHost, info.Role)
	assert.Equal(t, domain.MeetingID("abc123"), info.MeetingID)
	assert.Equal(t, domain.PeerID("abc123"), info.SelfID)
}

func TestSessionInfo_ParticipantGetsRandomPeerID(t *testing.T) {
	data := Data{MeetingID: "abc123", DisplayName: "Alice"}
	info := data.SessionInfo()
	assert.Equal(t, domain.RoleParticipant, info.Role)
	assert.True(t, strings.HasPrefix(string(info.SelfID), "peer-"))
	assert.NotEqual(t, info.SelfID, data.SessionInfo().SelfID)
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.json")
	orig := &Data{
		MeetingID:    "abc123",
		IsHost:       true,
		DisplayName:  "Host",
		HostOrigin:   "203.0.113.10",
		AudioEnabled: true,
	}
	require.NoError(t, orig.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, orig.MeetingID, loaded.MeetingID)
	assert.Equal(t, orig.HostOrigin, loaded.HostOrigin)
	assert.True(t, loaded.AudioEnabled)
	assert.False(t, loaded.VideoEnabled)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
