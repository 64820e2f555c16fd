package factory

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/dragonrealm/internal/dependencies/mocks"
	"github.com/mcoot/dragonrealm/internal/services/auth"
	"github.com/mcoot/dragonrealm/internal/storage/memory"
	"github.com/mcoot/dragonrealm/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// TestAuthConfig signs with a fixed key and hashes at minimum cost
func TestAuthConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.SigningKey = []byte("dragonrealm-test-signing-key-0123")
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

// NewTestApp creates an App configured for testing with mocked dependencies.
// Periodic snapshots are off so tests see only the events they cause.
func NewTestApp() *TestApp {
	game := DefaultGameConfig()
	game.Realtime.SnapshotInterval = 0
	return NewTestAppWith(game)
}

// NewTestAppWith creates a test App for the given game config. spawn values
// are queued on the mock random source before collectibles are placed,
// three per collectible: kind index, then x and y offsets inside the margin.
func NewTestAppWith(game GameConfig, spawn ...int) *TestApp {
	store := memory.New()
	mockClock := testutil.NewClock()
	mockRandom := mocks.NewMockRandom()
	mockRandom.QueueIntn(spawn...)

	app := newWithDependencies(store, mockClock, mockRandom, TestAuthConfig(), game.withDefaults(), testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
