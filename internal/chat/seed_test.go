package chat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const seedYAML = `
rooms:
  - name: lobby
    capacity: 50
    owner: server
  - name: vip
    capacity: 5
    locked: true
    password: swordfish
    owner: server
`

func TestLoadSeedBytes(t *testing.T) {
	rooms, err := LoadSeedBytes([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	assert.Equal(t, SeedRoom{Name: "lobby", Capacity: 50, Owner: "server"}, rooms[0])
	assert.Equal(t, SeedRoom{
		Name:     "vip",
		Capacity: 5,
		Locked:   true,
		Password: "swordfish",
		Owner:    "server",
	}, rooms[1])
}

func TestLoadSeedBytes_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing name", "rooms:\n  - capacity: 5\n"},
		{"zero capacity", "rooms:\n  - name: x\n    capacity: 0\n"},
		{"duplicate name", "rooms:\n  - name: x\n    capacity: 5\n  - name: x\n    capacity: 5\n"},
		{"bad yaml", ": not yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSeedBytes([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	rooms, err := LoadSeedFile(path)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	_, err = LoadSeedFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRoomManager_SeedDoesNotOverwrite(t *testing.T) {
	m := NewRoomManager(zap.NewNop())
	existing, err := m.Create("lobby", 10, false, "", "alice")
	require.NoError(t, err)

	created := m.Seed([]SeedRoom{
		{Name: "lobby", Capacity: 99, Owner: "server"},
		{Name: "games", Capacity: 20, Owner: "server"},
	})

	assert.Equal(t, 1, created)
	got, ok := m.Get("lobby")
	require.True(t, ok)
	assert.Same(t, existing, got, "seed must not replace a persisted room")
	assert.Equal(t, 10, got.Capacity())

	_, ok = m.Get("games")
	assert.True(t, ok)
}
