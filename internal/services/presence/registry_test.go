package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dragonrealm/internal/dependencies/mocks"
	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/testutil"
	"github.com/mcoot/dragonrealm/internal/world"
)

type RegistrySuite struct {
	suite.Suite
	clock    *mocks.MockClock
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.clock = testutil.NewClock()
	s.registry = NewRegistry(world.DefaultConfig().Bounds(), s.clock)
}

func (s *RegistrySuite) TestRegisterThenSnapshot() {
	entry := s.registry.Register("c1", "alice", "Alice", model.Position{X: 100, Y: 100})

	s.Equal(model.ConnectionID("c1"), entry.ConnectionID)
	s.Equal("", entry.AvatarID)

	snapshot := s.registry.Snapshot()
	s.Require().Len(snapshot, 1)
	s.Equal(entry, snapshot[0])
}

func (s *RegistrySuite) TestRegisterThenUnregisterRemovesFromSnapshot() {
	s.registry.Register("c1", "alice", "Alice", model.Position{X: 100, Y: 100})
	s.registry.Register("c2", "bob", "Bob", model.Position{X: 200, Y: 100})

	removed, ok := s.registry.Unregister("c1")
	s.Require().True(ok)
	s.Equal(model.UserID("alice"), removed.UserID)

	for _, entry := range s.registry.Snapshot() {
		s.NotEqual(model.ConnectionID("c1"), entry.ConnectionID)
	}
	s.Equal(1, s.registry.Len())

	_, ok = s.registry.Unregister("c1")
	s.False(ok)
}

func (s *RegistrySuite) TestRegisterIsIdempotentPerConnection() {
	s.registry.Register("c1", "alice", "Alice", model.Position{X: 100, Y: 100})
	s.registry.Register("c1", "alice", "Alice", model.Position{X: 300, Y: 300})

	snapshot := s.registry.Snapshot()
	s.Require().Len(snapshot, 1)
	s.Equal(model.Position{X: 300, Y: 300}, snapshot[0].Position)
}

func (s *RegistrySuite) TestSameUserMayHoldSeveralConnections() {
	s.registry.Register("c1", "alice", "Alice", model.Position{X: 100, Y: 100})
	s.registry.Register("c2", "alice", "Alice", model.Position{X: 100, Y: 100})

	s.Equal(2, s.registry.Len())
	s.Equal([]model.ConnectionID{"c1", "c2"}, s.registry.ConnectionsForUser("alice"))
	s.Len(s.registry.OnlineUsers(), 1)
}

func (s *RegistrySuite) TestPositionsAreClamped() {
	entry := s.registry.Register("c1", "alice", "Alice", model.Position{X: -100, Y: 100})
	s.Equal(model.Position{X: 24, Y: 100}, entry.Position)

	entry, err := s.registry.UpdatePosition("c1", model.Position{X: 10_000, Y: 10_000})
	s.Require().NoError(err)
	s.Equal(model.Position{X: 776, Y: 576}, entry.Position)
}

func (s *RegistrySuite) TestUpdatesOnUnknownConnectionAreSoftErrors() {
	_, err := s.registry.UpdatePosition("ghost", model.Position{X: 1, Y: 1})
	s.ErrorIs(err, model.ErrConnectionGone)

	_, err = s.registry.UpdateAvatar("ghost", "red")
	s.ErrorIs(err, model.ErrConnectionGone)

	s.Equal(0, s.registry.Len())
}

func (s *RegistrySuite) TestLatestPositionWins() {
	s.registry.Register("c1", "alice", "Alice", model.Position{X: 50, Y: 50})

	_, _ = s.registry.UpdatePosition("c1", model.Position{X: 110, Y: 110})
	_, _ = s.registry.UpdatePosition("c1", model.Position{X: 120, Y: 120})

	entry, ok := s.registry.Get("c1")
	s.Require().True(ok)
	s.Equal(model.Position{X: 120, Y: 120}, entry.Position)
}

func (s *RegistrySuite) TestUpdateAvatarAndNickname() {
	s.registry.Register("c1", "alice", "Alice", model.Position{X: 100, Y: 100})
	s.registry.Register("c2", "alice", "Alice", model.Position{X: 100, Y: 100})
	s.registry.Register("c3", "bob", "Bob", model.Position{X: 100, Y: 100})

	entry, err := s.registry.UpdateAvatar("c1", "gold")
	s.Require().NoError(err)
	s.Equal("gold", entry.AvatarID)

	updated := s.registry.UpdateNickname("alice", "Queen")
	s.Len(updated, 2)
	for _, e := range updated {
		s.Equal("Queen", e.Nickname)
	}

	bob, _ := s.registry.Get("c3")
	s.Equal("Bob", bob.Nickname)
}

func (s *RegistrySuite) TestSnapshotOrderedByJoinTime() {
	s.registry.Register("zzz", "alice", "Alice", model.Position{})
	s.clock.Advance(time.Second)
	s.registry.Register("aaa", "bob", "Bob", model.Position{})

	snapshot := s.registry.Snapshot()
	s.Require().Len(snapshot, 2)
	s.Equal(model.ConnectionID("zzz"), snapshot[0].ConnectionID)
	s.Equal(model.ConnectionID("aaa"), snapshot[1].ConnectionID)
}

func (s *RegistrySuite) TestConcurrentMutation() {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := model.ConnectionID(fmt.Sprintf("c%d", i))
			s.registry.Register(id, "alice", "Alice", model.Position{X: 100, Y: 100})
			_, _ = s.registry.UpdatePosition(id, model.Position{X: float64(i), Y: 100})
			_ = s.registry.Snapshot()
			if i%2 == 0 {
				s.registry.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(25, s.registry.Len())
}
