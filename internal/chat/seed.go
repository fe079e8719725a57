package chat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlSeedFile is the top-level YAML structure for the room seed file.
type yamlSeedFile struct {
	Rooms []yamlSeedRoom `yaml:"rooms"`
}

// yamlSeedRoom is the YAML representation of a seeded room.
type yamlSeedRoom struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
	Locked   bool   `yaml:"locked"`
	Password string `yaml:"password"`
	Owner    string `yaml:"owner"`
}

// SeedRoom describes a room to create at startup.
type SeedRoom struct {
	Name     string
	Capacity int
	Locked   bool
	Password string
	Owner    string
}

// LoadSeedFile reads and validates a room seed YAML file.
//
// Precondition: path must point to a valid YAML seed file.
// Postcondition: Returns the seeded rooms or a non-nil error.
func LoadSeedFile(path string) ([]SeedRoom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	return LoadSeedBytes(data)
}

// LoadSeedBytes parses and validates a room seed from YAML bytes.
//
// Postcondition: Returns the seeded rooms or a non-nil error.
func LoadSeedBytes(data []byte) ([]SeedRoom, error) {
	var file yamlSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing seed YAML: %w", err)
	}

	seen := make(map[string]bool, len(file.Rooms))
	rooms := make([]SeedRoom, 0, len(file.Rooms))
	for i, yr := range file.Rooms {
		if yr.Name == "" {
			return nil, fmt.Errorf("seed room %d: name must not be empty", i)
		}
		if yr.Capacity < 1 {
			return nil, fmt.Errorf("seed room %q: capacity must be positive, got %d", yr.Name, yr.Capacity)
		}
		if seen[yr.Name] {
			return nil, fmt.Errorf("seed room %q: duplicate name", yr.Name)
		}
		seen[yr.Name] = true
		rooms = append(rooms, SeedRoom{
			Name:     yr.Name,
			Capacity: yr.Capacity,
			Locked:   yr.Locked,
			Password: yr.Password,
			Owner:    yr.Owner,
		})
	}
	return rooms, nil
}

// Seed adds every seeded room that is not already in the catalogue.
// Seeding never overwrites an existing room with the same name.
//
// Postcondition: Returns the number of rooms created.
func (m *RoomManager) Seed(rooms []SeedRoom) int {
	created := 0
	for _, r := range rooms {
		if m.Ensure(r.Name, r.Capacity, r.Locked, r.Password, r.Owner) {
			created++
		}
	}
	return created
}
