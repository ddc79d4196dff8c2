package core

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/dkeye/meet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestRegistry(limit int) (*Registry, *stepClock) {
	clk := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewRegistry(limit, clk.now), clk
}

func TestRegistryJoinPreservesOrder(t *testing.T) {
	r, _ := newTestRegistry(0)

	members, err := r.Join("abc", "A")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnID{"A"}, members)

	members, err = r.Join("abc", "B")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnID{"A", "B"}, members)
	assert.Equal(t, []domain.ConnID{"A", "B"}, r.Members("abc"))

	key, ok := r.FindRoom("B")
	assert.True(t, ok)
	assert.Equal(t, domain.RoomKey("abc"), key)
	require.NoError(t, r.CheckConsistency())
}

func TestRegistryMembersIsSnapshot(t *testing.T) {
	r, _ := newTestRegistry(0)
	_, _ = r.Join("abc", "A")
	_, _ = r.Join("abc", "B")

	snap := r.Members("abc")
	snap[0] = "X"
	_, _ = r.Join("abc", "C")

	assert.Equal(t, []domain.ConnID{"A", "B", "C"}, r.Members("abc"))
	assert.Len(t, snap, 2)
}

func TestRegistryRejectsDuplicateMembership(t *testing.T) {
	r, _ := newTestRegistry(0)
	_, _ = r.Join("abc", "A")

	_, err := r.Join("abc", "A")
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)

	_, err = r.Join("other", "A")
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)
	assert.Equal(t, RoomAbsent, r.State("other"))

	assert.Equal(t, []domain.ConnID{"A"}, r.Members("abc"))
	require.NoError(t, r.CheckConsistency())
}

func TestRegistryRejectsEmptyKey(t *testing.T) {
	r, _ := newTestRegistry(0)
	_, err := r.Join("", "A")
	assert.ErrorIs(t, err, domain.ErrEmptyRoomKey)
	_, ok := r.FindRoom("A")
	assert.False(t, ok)
}

func TestRegistryLeave(t *testing.T) {
	r, _ := newTestRegistry(0)
	_, _ = r.Join("abc", "A")
	_, _ = r.Join("abc", "B")

	key, ok := r.Leave("A")
	assert.True(t, ok)
	assert.Equal(t, domain.RoomKey("abc"), key)
	assert.Equal(t, []domain.ConnID{"B"}, r.Members("abc"))

	_, ok = r.Leave("A")
	assert.False(t, ok)

	_, ok = r.Leave("nobody")
	assert.False(t, ok)
	require.NoError(t, r.CheckConsistency())
}

func TestRegistryRoomOf(t *testing.T) {
	r, _ := newTestRegistry(0)
	_, _ = r.Join("abc", "A")

	key, err := r.RoomOf("A")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomKey("abc"), key)

	r.Leave("A")
	_, err = r.RoomOf("A")
	assert.ErrorIs(t, err, domain.ErrNotMember)
}

func TestRegistryEmptyRoomIsDiscarded(t *testing.T) {
	r, _ := newTestRegistry(0)
	_, _ = r.Join("abc", "B")
	first, ok := r.StartedAt("abc")
	require.True(t, ok)
	require.True(t, r.AppendMessage("abc", domain.ChatMessage{Text: "old", SenderConnID: "B"}))

	_, ok = r.Leave("B")
	require.True(t, ok)
	assert.Equal(t, RoomAbsent, r.State("abc"))
	assert.False(t, r.IsActive("abc"))
	_, found := r.FindRoom("B")
	assert.False(t, found)
	assert.Nil(t, r.History("abc"))
	assert.Empty(t, r.Rooms())

	_, err := r.Join("abc", "C")
	require.NoError(t, err)
	second, _ := r.StartedAt("abc")
	assert.True(t, second.After(first))
	assert.Empty(t, r.History("abc"))
}

func TestRegistryAbsentRoomIsNotAnError(t *testing.T) {
	r, _ := newTestRegistry(0)
	assert.Nil(t, r.Members("ghost"))
	assert.Nil(t, r.History("ghost"))
	assert.False(t, r.AppendMessage("ghost", domain.ChatMessage{Text: "x"}))
	_, ok := r.StartedAt("ghost")
	assert.False(t, ok)
}

func TestRegistryHistoryLimit(t *testing.T) {
	r, _ := newTestRegistry(3)
	_, _ = r.Join("abc", "A")
	for i := range 5 {
		r.AppendMessage("abc", domain.ChatMessage{Text: fmt.Sprint(i), SenderConnID: "A"})
	}
	hist := r.History("abc")
	require.Len(t, hist, 3)
	assert.Equal(t, "2", hist[0].Text)
	assert.Equal(t, "4", hist[2].Text)
}

func TestRegistryRoomsSorted(t *testing.T) {
	r, _ := newTestRegistry(0)
	_, _ = r.Join("b", "1")
	_, _ = r.Join("a", "2")
	_, _ = r.Join("a", "3")

	rooms := r.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, domain.RoomKey("a"), rooms[0].Name)
	assert.Equal(t, 2, rooms[0].MemberCount)
	assert.Equal(t, domain.RoomKey("b"), rooms[1].Name)

	nRooms, nConns := r.Len()
	assert.Equal(t, 2, nRooms)
	assert.Equal(t, 3, nConns)
}

// Random join/leave sequences: the member count of every room equals net
// joins minus leaves, and the room disappears exactly when that reaches zero.
func TestRegistryRandomSequencesStayConsistent(t *testing.T) {
	keys := []domain.RoomKey{"r1", "r2", "r3"}
	for seed := range uint64(25) {
		rng := rand.New(rand.NewPCG(seed, seed*7+1))
		r, _ := newTestRegistry(0)
		net := map[domain.RoomKey]int{}
		where := map[domain.ConnID]domain.RoomKey{}

		for step := range 400 {
			id := domain.ConnID(fmt.Sprintf("c%d", rng.IntN(30)))
			if rng.IntN(2) == 0 {
				key := keys[rng.IntN(len(keys))]
				_, err := r.Join(key, id)
				if _, in := where[id]; in {
					require.ErrorIs(t, err, domain.ErrAlreadyMember)
				} else {
					require.NoError(t, err)
					where[id] = key
					net[key]++
				}
			} else {
				key, ok := r.Leave(id)
				prev, in := where[id]
				require.Equal(t, in, ok)
				if ok {
					require.Equal(t, prev, key)
					delete(where, id)
					net[key]--
				}
			}

			require.NoError(t, r.CheckConsistency(), "seed %d step %d", seed, step)
			for _, key := range keys {
				assert.Len(t, r.Members(key), net[key])
				assert.Equal(t, net[key] > 0, r.IsActive(key))
			}
		}
	}
}
