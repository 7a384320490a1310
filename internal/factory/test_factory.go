package factory

import (
	"time"

	"github.com/mcoot/tabletop/internal/dependencies/mocks"
	"github.com/mcoot/tabletop/internal/services/handshake"
	"github.com/mcoot/tabletop/internal/storage/memory"
	"github.com/mcoot/tabletop/internal/testutil"
)

// Secrets used by test apps
const (
	TestPlayerSecret = "dragons"
	TestGMSecret     = "dungeon-master"
	TestAdminSecret  = "admin-secret"
	TestVersion      = "1.14.3"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies.
// An empty passwordFile selects the role-password database.
func NewTestApp(passwordFile string) (*TestApp, error) {
	// Monday
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	cfg := Config{
		PasswordFile: passwordFile,
		Handshake: handshake.Config{
			PlayerSecret: TestPlayerSecret,
			GMSecret:     TestGMSecret,
			Version:      TestVersion,
		},
		Policy: []byte(`{"useIndividualViews":true}`),
	}
	cfg.Auth.Secret = TestAdminSecret

	app, err := newWithDependencies(cfg, memory.NewRegistry(mockClock), mockClock, mockRandom, testutil.NopLogger())
	if err != nil {
		return nil, err
	}

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}, nil
}
