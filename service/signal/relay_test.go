package signal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"vhrealtime/service/identity"
	"vhrealtime/service/room"
	"vhrealtime/tools/errs"
)

type peer struct {
	id  string
	who identity.Identity

	mu  sync.Mutex
	got []map[string]any
}

func (p *peer) ID() string                  { return p.id }
func (p *peer) Identity() identity.Identity { return p.who }

func (p *peer) Send(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, m)
	return nil
}

func (p *peer) frames() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.got...)
}

func newPeers() (*peer, *peer) {
	return &peer{id: "a", who: identity.Identity{UserID: 5, Name: "Anna Smith", Role: "doctor"}},
		&peer{id: "b", who: identity.Identity{UserID: 9, Name: "Bob Lee", Role: "patient"}}
}

func TestSignalRoomScenario(t *testing.T) {
	ctx := context.Background()
	reg := room.NewRegistry("signal", nil)
	r := NewRelay(reg, nil)
	a, b := newPeers()

	require.NoError(t, r.Join(ctx, 7, a))
	require.Empty(t, a.frames(), "alone in the room, nobody to tell")

	require.NoError(t, r.Join(ctx, 7, b))
	require.Empty(t, b.frames(), "no echo of own join")
	got := a.frames()
	require.Len(t, got, 1)
	require.Equal(t, "peer-joined", got[0]["type"])
	require.EqualValues(t, 9, got[0]["user_id"])
	require.Equal(t, "Bob Lee", got[0]["user_name"])
	require.Equal(t, "patient", got[0]["role"])
	require.EqualValues(t, 2, got[0]["peer_count"])
}

func TestRelay_OfferNotEchoed(t *testing.T) {
	ctx := context.Background()
	reg := room.NewRegistry("signal", nil)
	r := NewRelay(reg, nil)
	a, b := newPeers()
	require.NoError(t, r.Join(ctx, 7, a))
	require.NoError(t, r.Join(ctx, 7, b))
	before := len(a.frames())

	offer := `{"type":"offer","sdp":{"type":"offer","sdp":"v=0..."},"from_user_id":999}`
	require.NoError(t, r.Receive(ctx, 7, a, []byte(offer)))

	require.Len(t, a.frames(), before, "sender never receives its own offer")
	got := b.frames()
	require.Len(t, got, 1)
	require.Equal(t, "offer", got[0]["type"])
	require.Equal(t, map[string]any{"type": "offer", "sdp": "v=0..."}, got[0]["sdp"])
	require.EqualValues(t, 5, got[0]["from_user_id"], "server stamps the real sender")
	require.Equal(t, "Anna Smith", got[0]["from_user_name"])
}

func TestRelay_RelayedKinds(t *testing.T) {
	for _, typ := range []string{"offer", "answer", "ice-candidate"} {
		t.Run(typ, func(t *testing.T) {
			ctx := context.Background()
			r := NewRelay(room.NewRegistry("signal", nil), nil)
			a, b := newPeers()
			require.NoError(t, r.Join(ctx, 1, a))
			require.NoError(t, r.Join(ctx, 1, b))

			require.NoError(t, r.Receive(ctx, 1, b, []byte(`{"type":"`+typ+`","candidate":{"sdpMid":"0"}}`)))
			got := a.frames()
			require.Len(t, got, 2)
			require.Equal(t, typ, got[1]["type"])
			require.Equal(t, map[string]any{"sdpMid": "0"}, got[1]["candidate"])
		})
	}
}

func TestRelay_CallEnded(t *testing.T) {
	ctx := context.Background()
	r := NewRelay(room.NewRegistry("signal", nil), nil)
	a, b := newPeers()
	require.NoError(t, r.Join(ctx, 2, a))
	require.NoError(t, r.Join(ctx, 2, b))

	require.NoError(t, r.Receive(ctx, 2, b, []byte(`{"type":"call-ended","reason":"bye"}`)))
	got := a.frames()
	require.Equal(t, map[string]any{"type": "call-ended", "user_id": float64(9), "user_name": "Bob Lee"}, got[len(got)-1])
	require.Empty(t, b.frames())
}

func TestRelay_UnknownAndForgedIgnored(t *testing.T) {
	ctx := context.Background()
	r := NewRelay(room.NewRegistry("signal", nil), nil)
	a, b := newPeers()
	require.NoError(t, r.Join(ctx, 3, a))
	require.NoError(t, r.Join(ctx, 3, b))
	before := len(a.frames())

	for _, raw := range []string{`{"type":"mute"}`, `{}`, `{"type":5}`, `{"type":"peer-joined","user_id":1}`, `{"type":"peer-left"}`} {
		require.NoError(t, r.Receive(ctx, 3, b, []byte(raw)), raw)
	}
	require.Len(t, a.frames(), before)
}

func TestRelay_Malformed(t *testing.T) {
	r := NewRelay(room.NewRegistry("signal", nil), nil)
	a, _ := newPeers()
	require.NoError(t, r.Join(context.Background(), 4, a))
	err := r.Receive(context.Background(), 4, a, []byte(`{"type":`))
	require.ErrorIs(t, err, errs.ErrMalformedFrame)
}

func TestRelay_Leave(t *testing.T) {
	ctx := context.Background()
	reg := room.NewRegistry("signal", nil)
	r := NewRelay(reg, nil)
	a, b := newPeers()
	require.NoError(t, r.Join(ctx, 7, a))
	require.NoError(t, r.Join(ctx, 7, b))

	r.Leave(ctx, 7, b)
	got := a.frames()
	require.Equal(t, map[string]any{"type": "peer-left", "user_id": float64(9), "user_name": "Bob Lee", "peer_count": float64(1)}, got[len(got)-1])
	require.Equal(t, 1, reg.Count("signal_7"))

	r.Leave(ctx, 7, a)
	require.Equal(t, 0, reg.Rooms())
}

func TestParseEnvelope(t *testing.T) {
	cases := []struct {
		raw  string
		kind Kind
	}{
		{`{"type":"offer"}`, KindOffer},
		{`{"type":"answer"}`, KindAnswer},
		{`{"type":"ice-candidate"}`, KindICECandidate},
		{`{"type":"call-ended"}`, KindCallEnded},
		{`{"type":"peer-joined"}`, KindPeerJoined},
		{`{"type":"peer-left"}`, KindPeerLeft},
		{`{"type":"OFFER"}`, KindUnknown},
		{`{"type":null}`, KindUnknown},
		{`{}`, KindUnknown},
	}
	for _, tc := range cases {
		env, err := ParseEnvelope([]byte(tc.raw))
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.kind, env.Kind, tc.raw)
	}
	require.Equal(t, "ice-candidate", KindICECandidate.String())
	require.Equal(t, "unknown", KindUnknown.String())
	require.True(t, KindAnswer.Relayed())
	require.False(t, KindCallEnded.Relayed())
}
