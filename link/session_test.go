package link

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, modem Modem) *Session {
	t.Helper()

	cfg := DefaultConfig()
	cfg.InterFrameDelay = time.Millisecond

	s := NewSession(cfg, nil, modem, EchoPipeline{})
	s.pollInterval = time.Millisecond

	return s
}

func Test_Session_EchoSingleFrame(t *testing.T) {
	a, b := NewLoopbackPair()
	s := newTestSession(t, a)

	frame := Frame{ID: "req0001", CT: "hi", Meta: map[string]any{"fn": "greet"}}
	out, err := frame.MarshalJSON()
	require.NoError(t, err)

	_, encErr := b.Encode(out, 1, 50)
	require.NoError(t, encErr)

	require.NoError(t, s.handleInbound(mustPoll(t, a)))

	reply, ok := b.Poll()
	require.True(t, ok)

	res := s.Framer.Parse(reply)
	require.Equal(t, ParseSingle, res.Kind)
	assert.Equal(t, "req0001", res.Message.ID)
	assert.Equal(t, "Processed function greet with content: hi", res.Message.CT)
	assert.Equal(t, "S", res.Message.Meta["st"])
}

func Test_Session_EchoChunked(t *testing.T) {
	a, b := NewLoopbackPair()
	s := newTestSession(t, a)

	fr := NewFramer(DefaultConfig(), nil)
	content := randomASCII(2000)
	frames := fr.Split(Message{ID: "chk0001", CT: content, Meta: map[string]any{"fn": "greet"}})
	require.Greater(t, len(frames), 1)

	for _, f := range frames {
		_, err := b.Encode([]byte(f), 1, 50)
		require.NoError(t, err)
	}

	var lastErr error
	for range frames {
		lastErr = s.handleInbound(mustPoll(t, a))
	}
	require.NoError(t, lastErr)

	var replyFrames []string
	for {
		payload, ok := b.Poll()
		if !ok {
			break
		}
		replyFrames = append(replyFrames, string(payload))
	}
	require.Greater(t, len(replyFrames), 0)

	table := NewTable(DefaultConfig(), nil)

	var got *Message
	for _, rf := range replyFrames {
		res := fr.Parse([]byte(rf))
		if res.Kind == ParseSingle {
			got = &res.Message
			break
		}

		msg, err := table.Absorb(res)
		require.NoError(t, err)
		if msg != nil {
			got = msg
		}
	}

	require.NotNil(t, got)
	assert.Equal(t, "Processed function greet with content: "+content, got.CT)
}

func Test_Session_InvalidJSON_Dropped(t *testing.T) {
	a, b := NewLoopbackPair()
	s := newTestSession(t, a)

	_, err := b.Encode([]byte("not json"), 1, 50)
	require.NoError(t, err)

	require.NoError(t, s.handleInbound(mustPoll(t, a)))

	_, ok := b.Poll()
	assert.False(t, ok, "no reply should be sent for an unparseable frame")
}

func Test_Session_RetxRoundTrip(t *testing.T) {
	a, b := NewLoopbackPair()
	s := newTestSession(t, a)

	fr := NewFramer(DefaultConfig(), nil)
	content := randomASCII(2000)
	frames := fr.Split(Message{ID: "rtx0001", CT: content, Meta: map[string]any{"fn": "greet"}})
	require.Greater(t, len(frames), 2)

	for _, f := range frames {
		_, err := b.Encode([]byte(f), 1, 50)
		require.NoError(t, err)
	}

	for range frames {
		require.NoError(t, s.handleInbound(mustPoll(t, a)))
	}

	// Drain the echoed reply frames, then simulate a retx request for
	// the first reply frame.
	var replyFrames []string
	for {
		payload, ok := b.Poll()
		if !ok {
			break
		}
		replyFrames = append(replyFrames, string(payload))
	}
	require.Greater(t, len(replyFrames), 0)

	firstReply := fr.Parse([]byte(replyFrames[0]))

	id := firstReply.Message.ID
	if id == "" {
		id = firstReply.PieceID
	}

	retxFrame := Frame{ID: id, Meta: map[string]any{"fn": "retx", "ci": []any{0}}}
	rb, err := retxFrame.MarshalJSON()
	require.NoError(t, err)

	_, err = b.Encode(rb, 1, 50)
	require.NoError(t, err)

	require.NoError(t, s.handleInbound(mustPoll(t, a)))

	resent, ok := b.Poll()
	require.True(t, ok)
	assert.Equal(t, replyFrames[0], string(resent))
}

func Test_Session_SweepCleansAbandonedCompleteEntry(t *testing.T) {
	a, b := NewLoopbackPair()
	s := newTestSession(t, a)

	// An abandoned entry holding every one of its chunks (a state Absorb
	// itself never leaves behind), built directly in the table.
	s.Table.entries["swp0001"] = &entry{
		chunks:    map[int]string{0: "AA=="},
		cc:        1,
		meta:      map[string]any{},
		firstSeen: time.Now(),
	}
	s.Table.order = append(s.Table.order, "swp0001")

	missing, _, ok := s.Table.Missing("swp0001")
	require.True(t, ok)
	assert.Empty(t, missing)

	s.doSweep(time.Now().Add(time.Hour))

	_, _, ok = s.Table.Missing("swp0001")
	assert.False(t, ok)

	_, sent := b.Poll()
	assert.False(t, sent, "no retx should be sent for an entry with nothing missing")
}

func Test_Session_Run_StopsOnCancel(t *testing.T) {
	a, _ := NewLoopbackPair()
	s := newTestSession(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.NoError(t, err)
}

func mustPoll(t *testing.T, m *LoopbackModem) []byte {
	t.Helper()

	payload, ok := m.Poll()
	require.True(t, ok, "expected a queued block")

	return payload
}
