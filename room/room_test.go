package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tk21111/meeting_board/action"
	"github.com/Tk21111/meeting_board/presence"
	"github.com/Tk21111/meeting_board/surface"
	"github.com/Tk21111/meeting_board/transport"
	"github.com/Tk21111/meeting_board/transport/transporttest"
)

type fakeTokens struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeTokens) MeetingToken(ctx context.Context, topicID, courseID string) (Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return Credentials{}, f.err
	}
	return Credentials{
		Token:    "tok-" + topicID,
		RoomName: "course-" + courseID + "-topic-" + topicID,
		WSURL:    "mem://relay",
	}, nil
}

func (f *fakeTokens) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newPeer(t *testing.T, n *transporttest.Network, id string, opts Options) *Controller {
	t.Helper()
	c := New(opts, &fakeTokens{}, n.Connector(id, "name-"+id), surface.New(200, 150), nil)
	t.Cleanup(func() { _ = c.Leave(context.Background()) })
	return c
}

func joined(t *testing.T, n *transporttest.Network, id string) *Controller {
	t.Helper()
	c := newPeer(t, n, id, DefaultOptions("t1", "c1"))
	require.NoError(t, c.Join(context.Background()))
	require.Equal(t, StateJoined, c.State())
	return c
}

func rosterIDs(c *Controller) []string {
	var out []string
	for _, p := range c.Presence().Roster() {
		out = append(out, p.Identity)
	}
	return out
}

func TestJoinSeedsRoster(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	b := joined(t, n, "b")

	assert.Equal(t, []string{"a", "b"}, rosterIDs(a))
	assert.Equal(t, []string{"a", "b"}, rosterIDs(b))

	self, ok := b.Presence().Participant("b")
	require.True(t, ok)
	assert.True(t, self.IsLocal)
	assert.Equal(t, "name-b", self.Name)

	assert.Equal(t, "b", b.Identity())
	assert.Equal(t, "course-c1-topic-t1", b.RoomName())
	assert.Equal(t, "tok-t1", n.Session("b").Token)
	assert.True(t, b.AudioEnabled())
	assert.False(t, b.VideoEnabled())
}

func TestJoinWhenJoinedIsNoop(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")

	require.NoError(t, a.Join(context.Background()))
	assert.Equal(t, StateJoined, a.State())
}

func TestDrawingReplaysOnPeer(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	b := joined(t, n, "b")
	ctx := context.Background()

	require.True(t, a.BeginStroke(10, 10, action.ToolPen, "#FF0000", 3))
	a.ExtendStroke(50, 40)
	a.ExtendStroke(90, 20)
	_, ok := a.EndStroke(ctx)
	require.True(t, ok)

	_, ok = a.CommitShape(ctx, 20, 100, 120, 140, action.ToolRectangle, "#0000FF", 2)
	require.True(t, ok)
	_, err := a.CommitText(ctx, "hello", 130, 60, "#000", 18)
	require.NoError(t, err)

	assert.Equal(t, a.Board().Snapshot().Pix, b.Board().Snapshot().Pix)

	undo, _ := b.Board().HistoryDepth()
	assert.Equal(t, 1, undo, "remote actions are not in the receiver's history")
}

func TestUndoIsLocal(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	b := joined(t, n, "b")
	ctx := context.Background()

	_, ok := a.CommitShape(ctx, 10, 10, 100, 100, action.ToolLine, "#000", 4)
	require.True(t, ok)
	sent := len(n.Session("a").Sent())

	require.True(t, a.Undo())
	assert.Len(t, n.Session("a").Sent(), sent)
	assert.NotEqual(t, a.Board().Snapshot().Pix, b.Board().Snapshot().Pix)

	require.True(t, a.Redo())
	assert.Equal(t, a.Board().Snapshot().Pix, b.Board().Snapshot().Pix)
}

func TestClearBoardBroadcasts(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	b := joined(t, n, "b")
	ctx := context.Background()

	_, ok := b.CommitShape(ctx, 10, 10, 100, 100, action.ToolCircle, "#000", 4)
	require.True(t, ok)
	a.ClearBoard(ctx)

	blank := surface.New(200, 150).Snapshot().Pix
	assert.Equal(t, blank, a.Board().Snapshot().Pix)
	assert.Equal(t, blank, b.Board().Snapshot().Pix)
}

func TestEmptyStrokeSendsNothing(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	_ = joined(t, n, "b")

	before := len(n.Session("a").Sent())
	require.True(t, a.BeginStroke(5, 5, action.ToolPen, "#000", 2))
	_, ok := a.EndStroke(context.Background())
	assert.False(t, ok)
	assert.Len(t, n.Session("a").Sent(), before)

	_, err := a.CommitText(context.Background(), "  ", 1, 1, "#000", 12)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Len(t, n.Session("a").Sent(), before)
}

func TestMalformedWhiteboardMessageIsDropped(t *testing.T) {
	n := transporttest.NewNetwork()
	_ = joined(t, n, "a")
	b := joined(t, n, "b")
	before := b.Board().Snapshot().Pix

	for _, raw := range []string{
		`{"type":"whiteboard","senderId":"a","payload":{"type":"draw"}}`,
		`{"type":"whiteboard","senderId":"a","payload":{"type":"shape","data":{"tool":"star"}}}`,
		`{"type":"whiteboard","senderId":"a","payload":"nope"}`,
		`{"type":"mystery","senderId":"a","payload":{}}`,
	} {
		require.NoError(t, n.Session("a").SendData(context.Background(), []byte(raw), transport.DataOptions{Reliable: true}))
	}

	assert.Equal(t, before, b.Board().Snapshot().Pix)
	assert.Equal(t, StateJoined, b.State())
}

func TestDrawingWhileIdleStaysLocal(t *testing.T) {
	n := transporttest.NewNetwork()
	a := newPeer(t, n, "a", DefaultOptions("t1", "c1"))

	_, ok := a.CommitShape(context.Background(), 1, 1, 50, 50, action.ToolLine, "#000", 2)
	assert.True(t, ok)
	assert.Equal(t, StateIdle, a.State())
}

func TestTokenFailureThenRetry(t *testing.T) {
	n := transporttest.NewNetwork()
	tokens := &fakeTokens{}
	tokens.fail(errors.New("401 unauthorized"))

	c := New(DefaultOptions("t1", "c1"), tokens, n.Connector("a", "A"), surface.New(50, 50), nil)

	err := c.Join(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrTransportUnavailable)
	assert.Equal(t, StateErrored, c.State())
	assert.ErrorIs(t, c.Err(), transport.ErrTransportUnavailable)
	assert.Nil(t, n.Session("a"))

	tokens.fail(nil)
	require.NoError(t, c.Join(context.Background()))
	assert.Equal(t, StateJoined, c.State())
	assert.NoError(t, c.Err())
	assert.Equal(t, 2, tokens.calls)

	require.NoError(t, c.Leave(context.Background()))
}

func TestConnectFailure(t *testing.T) {
	n := transporttest.NewNetwork()
	n.FailConnect(errors.New("relay down"))
	c := newPeer(t, n, "a", DefaultOptions("t1", "c1"))

	err := c.Join(context.Background())
	assert.ErrorIs(t, err, transport.ErrTransportUnavailable)
	assert.Equal(t, StateErrored, c.State())

	require.NoError(t, c.Leave(context.Background()))
	assert.Equal(t, StateIdle, c.State())
}

func TestLeaveIsIdempotent(t *testing.T) {
	n := transporttest.NewNetwork()
	c := newPeer(t, n, "a", DefaultOptions("t1", "c1"))
	ctx := context.Background()

	require.NoError(t, c.Leave(ctx))
	require.NoError(t, c.Join(ctx))
	require.NoError(t, c.Leave(ctx))
	require.NoError(t, c.Leave(ctx))

	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.Presence().Roster())
	assert.False(t, c.AudioEnabled())
	assert.Nil(t, n.Session("a"))

	require.NoError(t, c.Join(ctx), "rejoin after leave")
}

func TestLeaveCancelsInFlightJoin(t *testing.T) {
	n := transporttest.NewNetwork()
	c := newPeer(t, n, "a", DefaultOptions("t1", "c1"))
	ctx := context.Background()

	release := n.HoldConnect()
	defer release()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Join(ctx) }()

	require.Eventually(t, func() bool { return c.State() == StateJoining }, time.Second, time.Millisecond)
	assert.ErrorIs(t, c.Join(ctx), ErrJoinInProgress)

	require.NoError(t, c.Leave(ctx))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrJoinCancelled)
	case <-time.After(time.Second):
		t.Fatal("join did not return")
	}

	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, n.Session("a"))
}

func TestCameraDenied(t *testing.T) {
	n := transporttest.NewNetwork()
	n.DenyCamera("a")
	a := joined(t, n, "a")

	err := a.ToggleCamera(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrDeviceUnavailable)
	assert.False(t, a.VideoEnabled())
	assert.Len(t, a.Warnings(), 1)
	assert.Equal(t, StateJoined, a.State())

	require.NoError(t, a.ToggleMicrophone(context.Background()))
	assert.False(t, a.AudioEnabled())
}

func TestMicrophoneDeniedAtJoinIsWarning(t *testing.T) {
	n := transporttest.NewNetwork()
	n.DenyMicrophone("a")

	a := joined(t, n, "a")
	assert.False(t, a.AudioEnabled())
	assert.Len(t, a.Warnings(), 1)
}

func TestToggleCameraUpdatesPeers(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	b := joined(t, n, "b")

	require.NoError(t, a.ToggleCamera(context.Background()))
	assert.True(t, a.VideoEnabled())

	self, _ := a.Presence().Participant("a")
	assert.True(t, self.HasVideo)
	remote, _ := b.Presence().Participant("a")
	assert.True(t, remote.HasVideo)
}

func TestToggleWhileIdle(t *testing.T) {
	n := transporttest.NewNetwork()
	a := newPeer(t, n, "a", DefaultOptions("t1", "c1"))
	assert.ErrorIs(t, a.ToggleCamera(context.Background()), transport.ErrNotConnected)
}

func TestPeerLeaveClearsState(t *testing.T) {
	n := transporttest.NewNetwork()
	opts := DefaultOptions("t1", "c1")
	opts.Presence = presence.Options{ReactionTTL: time.Hour}

	a := newPeer(t, n, "a", opts)
	b := newPeer(t, n, "b", opts)
	ctx := context.Background()
	require.NoError(t, a.Join(ctx))
	require.NoError(t, b.Join(ctx))

	require.NoError(t, b.RaiseHand(ctx, true))
	_, err := b.SendReaction(ctx, "🎉", 10, 10)
	require.NoError(t, err)

	p, _ := a.Presence().Participant("b")
	require.True(t, p.IsHandRaised)
	require.Len(t, a.Presence().Reactions(), 1)

	require.NoError(t, b.Leave(ctx))

	assert.Equal(t, []string{"a"}, rosterIDs(a))
	assert.Empty(t, a.Presence().Reactions())
}

func TestDroppedConnection(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	b := joined(t, n, "b")

	n.Drop("b")

	assert.Equal(t, []string{"a"}, rosterIDs(a))
	assert.Equal(t, StateIdle, b.State())
	assert.Empty(t, b.Presence().Roster())

	require.NoError(t, b.Join(context.Background()))
	assert.Equal(t, []string{"a", "b"}, rosterIDs(a))
}

func TestReconnectReseedsRoster(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	_ = joined(t, n, "b")

	a.Presence().Leave("b")
	a.Presence().Join(transport.ParticipantInfo{Identity: "ghost"}, false)

	n.Reconnect("a")
	assert.Equal(t, []string{"a", "b"}, rosterIDs(a))
}

func TestChat(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	b := joined(t, n, "b")
	ctx := context.Background()

	require.NoError(t, a.SendChat(ctx, "  hello  "))
	assert.ErrorIs(t, a.SendChat(ctx, "   "), ErrEmptyInput)

	for _, c := range []*Controller{a, b} {
		chat := c.Presence().Chat()
		require.Len(t, chat, 1)
		assert.Equal(t, "hello", chat[0].Text)
		assert.Equal(t, "a", chat[0].SenderID)
		assert.Equal(t, "name-a", chat[0].SenderName)
	}
}

func TestRaiseHandIsIdempotent(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	b := joined(t, n, "b")
	ctx := context.Background()

	require.NoError(t, a.RaiseHand(ctx, true))
	sent := len(n.Session("a").Sent())
	require.NoError(t, a.RaiseHand(ctx, true))
	assert.Len(t, n.Session("a").Sent(), sent)

	p, _ := b.Presence().Participant("a")
	assert.True(t, p.IsHandRaised)

	require.NoError(t, a.RaiseHand(ctx, false))
	p, _ = b.Presence().Participant("a")
	assert.False(t, p.IsHandRaised)
}

func TestReactionExpiresOnPeer(t *testing.T) {
	n := transporttest.NewNetwork()
	opts := DefaultOptions("t1", "c1")
	opts.Presence = presence.Options{ReactionTTL: 30 * time.Millisecond}

	a := newPeer(t, n, "a", opts)
	b := newPeer(t, n, "b", opts)
	ctx := context.Background()
	require.NoError(t, a.Join(ctx))
	require.NoError(t, b.Join(ctx))

	r, err := a.SendReaction(ctx, "👍", 40, 60)
	require.NoError(t, err)

	got := b.Presence().Reactions()
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].ID)
	assert.Equal(t, "a", got[0].SenderID)

	require.Eventually(t, func() bool {
		return len(a.Presence().Reactions()) == 0 && len(b.Presence().Reactions()) == 0
	}, time.Second, 5*time.Millisecond)

	_, err = a.SendReaction(ctx, " ", 0, 0)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSpeakingIsPolled(t *testing.T) {
	n := transporttest.NewNetwork()
	a := joined(t, n, "a")
	_ = joined(t, n, "b")

	n.SetSpeaking("b", true)
	require.Eventually(t, func() bool {
		p, _ := a.Presence().Participant("b")
		return p.IsSpeaking
	}, time.Second, 5*time.Millisecond)
}

func TestSignalingRequiresJoin(t *testing.T) {
	n := transporttest.NewNetwork()
	a := newPeer(t, n, "a", DefaultOptions("t1", "c1"))

	assert.ErrorIs(t, a.SendChat(context.Background(), "hi"), transport.ErrNotConnected)
	assert.ErrorIs(t, a.RaiseHand(context.Background(), true), transport.ErrNotConnected)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "token-fetching", StateTokenFetching.String())
	assert.Equal(t, "errored", StateErrored.String())
	assert.Equal(t, "unknown", State(99).String())
}
