package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tabletop/internal/dependencies/mocks"
	"github.com/mcoot/tabletop/internal/model"
)

type RegistrySuite struct {
	suite.Suite
	clock    *mocks.MockClock
	registry *Registry
	ctx      context.Context
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = NewRegistry(s.clock)
	s.ctx = context.Background()
}

func (s *RegistrySuite) TestReserveTwiceFails() {
	token, err := s.registry.Reserve(s.ctx, "alice", time.Minute)
	s.Require().NoError(err)
	s.NotEmpty(token)

	_, err = s.registry.Reserve(s.ctx, "alice", time.Minute)
	s.ErrorIs(err, model.ErrNameInUse)
}

func (s *RegistrySuite) TestReleaseFreesName() {
	token, _ := s.registry.Reserve(s.ctx, "alice", time.Minute)

	s.Require().NoError(s.registry.Release(s.ctx, "alice", token))

	active, err := s.registry.IsActive(s.ctx, "alice")
	s.Require().NoError(err)
	s.False(active)

	_, err = s.registry.Reserve(s.ctx, "alice", time.Minute)
	s.NoError(err)
}

func (s *RegistrySuite) TestReleaseWithWrongTokenFails() {
	_, _ = s.registry.Reserve(s.ctx, "alice", time.Minute)

	err := s.registry.Release(s.ctx, "alice", "not-the-token")
	s.ErrorIs(err, model.ErrReservationNotFound)

	active, _ := s.registry.IsActive(s.ctx, "alice")
	s.True(active)
}

func (s *RegistrySuite) TestPendingReservationExpires() {
	_, _ = s.registry.Reserve(s.ctx, "alice", time.Minute)

	s.clock.Advance(2 * time.Minute)

	active, _ := s.registry.IsActive(s.ctx, "alice")
	s.False(active)

	_, err := s.registry.Reserve(s.ctx, "alice", time.Minute)
	s.NoError(err)
}

func (s *RegistrySuite) TestConfirmedReservationDoesNotExpire() {
	token, _ := s.registry.Reserve(s.ctx, "alice", time.Minute)
	s.Require().NoError(s.registry.Confirm(s.ctx, "alice", token))

	s.clock.Advance(time.Hour)

	active, _ := s.registry.IsActive(s.ctx, "alice")
	s.True(active)
}

func (s *RegistrySuite) TestConfirmExpiredReservationFails() {
	token, _ := s.registry.Reserve(s.ctx, "alice", time.Minute)
	s.clock.Advance(2 * time.Minute)

	err := s.registry.Confirm(s.ctx, "alice", token)
	s.ErrorIs(err, model.ErrReservationNotFound)
}

func (s *RegistrySuite) TestActiveIsSorted() {
	_, _ = s.registry.Reserve(s.ctx, "carol", time.Minute)
	_, _ = s.registry.Reserve(s.ctx, "alice", time.Minute)
	_, _ = s.registry.Reserve(s.ctx, "bob", time.Second)
	s.clock.Advance(2 * time.Second)

	names, err := s.registry.Active(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"alice", "carol"}, names)
}

func (s *RegistrySuite) TestConcurrentReserveHasOneWinner() {
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.registry.Reserve(s.ctx, "alice", time.Minute); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(1, wins.Load())
}
