package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/dragonrealm/internal/realtime/protocol"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		typ     protocol.Type
		payload any
	}{
		{"hello there", protocol.TypeChatMessage, protocol.ChatMessage{Message: "hello there"}},
		{"/move 120 340.5", protocol.TypePositionUpdate, protocol.PositionUpdate{X: 120, Y: 340.5}},
		{"/dragon gold", protocol.TypeDragonSelected, protocol.DragonSelected{DragonID: "gold"}},
		{"/collect collectible_3", protocol.TypeCollectibleCollected, protocol.CollectibleCollected{ID: "collectible_3"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			typ, payload, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{"/move 1", "/move a b", "/dragon", "/collect a b", "/fly"} {
		_, _, err := parseCommand(line)
		assert.Error(t, err, line)
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:8080", "ws://localhost:8080/api/v1/ws"},
		{"http://localhost:8080/", "ws://localhost:8080/api/v1/ws"},
		{"https://dragons.example.com/realm", "wss://dragons.example.com/realm/api/v1/ws"},
	}

	for _, tt := range tests {
		c := &Config{ServerURL: tt.server}
		got, err := c.SocketURL()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	c := &Config{TokenFile: filepath.Join(t.TempDir(), "nested", "token")}

	require.NoError(t, c.SaveToken("abc.def.ghi"))
	info, err := os.Stat(c.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded := &Config{TokenFile: c.TokenFile}
	require.NoError(t, loaded.LoadToken())
	assert.Equal(t, "abc.def.ghi", loaded.Token)

	require.NoError(t, loaded.ClearToken())
	assert.Empty(t, loaded.Token)
	_, err = os.Stat(c.TokenFile)
	assert.True(t, os.IsNotExist(err))

	// clearing twice is fine
	require.NoError(t, loaded.ClearToken())
}
