package room

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recConn struct {
	id   string
	fail bool

	mu  sync.Mutex
	got [][]byte
}

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(p []byte) error {
	if c.fail {
		return errors.New("queue full")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, p)
	return nil
}

func (c *recConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.got...)
}

func conns(n int) []*recConn {
	out := make([]*recConn, n)
	for i := range out {
		out[i] = &recConn{id: fmt.Sprintf("c%d", i)}
	}
	return out
}

func TestRoomKeys(t *testing.T) {
	require.Equal(t, "chat_42", ChatRoom(42))
	require.Equal(t, "signal_7", SignalRoom(7))
	require.NotEqual(t, ChatRoom(1), SignalRoom(1))
}

func TestRegistry_JoinLeaveCounts(t *testing.T) {
	cases := []struct{ joins, leaves int }{
		{1, 0}, {1, 1}, {5, 2}, {5, 5}, {3, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_joins_%d_leaves", tc.joins, tc.leaves), func(t *testing.T) {
			g := NewRegistry("test", nil)
			cs := conns(tc.joins)
			for i, c := range cs {
				n, err := g.Join("chat_1", c)
				require.NoError(t, err)
				require.Equal(t, i+1, n)
			}
			for _, c := range cs[:tc.leaves] {
				g.Leave("chat_1", c)
			}
			want := tc.joins - tc.leaves
			require.Equal(t, want, g.Count("chat_1"))
			if want == 0 {
				require.Equal(t, 0, g.Rooms(), "empty room must be removed")
			} else {
				require.Equal(t, 1, g.Rooms())
			}
		})
	}
}

func TestRegistry_JoinIdempotent(t *testing.T) {
	g := NewRegistry("test", nil)
	c := &recConn{id: "a"}
	_, _ = g.Join("r", c)
	n, err := g.Join("r", c)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Equal(t, 0, g.Leave("r", c))
	require.Equal(t, 0, g.Leave("r", c))
	require.Equal(t, 0, g.Rooms())
}

func TestRegistry_BroadcastExclusion(t *testing.T) {
	g := NewRegistry("test", nil)
	cs := conns(4)
	for _, c := range cs {
		_, _ = g.Join("signal_7", c)
	}

	require.Equal(t, 3, g.Broadcast("signal_7", []byte("x"), cs[0]))
	require.Empty(t, cs[0].frames())
	for _, c := range cs[1:] {
		require.Len(t, c.frames(), 1)
	}

	require.Equal(t, 4, g.Broadcast("signal_7", []byte("y"), nil))
	require.Len(t, cs[0].frames(), 1)
}

func TestRegistry_BroadcastUnknownRoom(t *testing.T) {
	g := NewRegistry("test", nil)
	require.Equal(t, 0, g.Broadcast("nope", []byte("x"), nil))
	require.Equal(t, 0, g.Count("nope"))
	require.Equal(t, 0, g.Rooms())
}

func TestRegistry_FailingMemberDoesNotAbortBroadcast(t *testing.T) {
	g := NewRegistry("test", nil)
	a := &recConn{id: "a"}
	bad := &recConn{id: "bad", fail: true}
	b := &recConn{id: "b"}
	for _, c := range []*recConn{a, bad, b} {
		_, _ = g.Join("chat_9", c)
	}

	require.Equal(t, 2, g.Broadcast("chat_9", []byte("hello"), nil))
	require.Len(t, a.frames(), 1)
	require.Len(t, b.frames(), 1)
	require.Equal(t, 3, g.Count("chat_9"))
}

func TestRegistry_RoomsAreIsolated(t *testing.T) {
	g := NewRegistry("test", nil)
	a := &recConn{id: "a"}
	b := &recConn{id: "b"}
	_, _ = g.Join("chat_1", a)
	_, _ = g.Join("chat_2", b)

	g.Broadcast("chat_1", []byte("only-1"), nil)
	require.Len(t, a.frames(), 1)
	require.Empty(t, b.frames())
	require.Equal(t, 2, g.Rooms())
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	g := NewRegistry("test", nil)
	const workers = 32
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			c := &recConn{id: fmt.Sprintf("w%d", w)}
			for i := 0; i < rounds; i++ {
				_, err := g.Join("chat_1", c)
				assert.NoError(t, err)
				g.Broadcast("chat_1", []byte("tick"), c)
				g.Leave("chat_1", c)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 0, g.Count("chat_1"))
	require.Equal(t, 0, g.Rooms())
}

func TestRegistry_BroadcastOrderPerMember(t *testing.T) {
	g := NewRegistry("test", nil)
	a := &recConn{id: "a"}
	_, _ = g.Join("r", a)
	for i := 0; i < 50; i++ {
		g.Broadcast("r", []byte(fmt.Sprint(i)), nil)
	}
	got := a.frames()
	require.Len(t, got, 50)
	for i, p := range got {
		require.Equal(t, fmt.Sprint(i), string(p))
	}
}

func TestRegistry_Close(t *testing.T) {
	g := NewRegistry("test", nil)
	_, _ = g.Join("r", &recConn{id: "a"})
	g.Close()

	require.Equal(t, 0, g.Rooms())
	_, err := g.Join("r", &recConn{id: "b"})
	require.ErrorIs(t, err, ErrRegistryClosed)
}
