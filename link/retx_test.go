package link

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Timeout_TriggersRetx(t *testing.T) {
	fr := NewFramer(DefaultConfig(), nil)
	table := NewTable(DefaultConfig(), nil)
	rc := NewRetransmissionController(DefaultConfig(), nil)

	frames := chunkedMessage(t, "tmo0001", randomASCII(200))
	require.Equal(t, 4, len(frames), "fixture expects a 4-chunk message")

	base := time.Now()

	for _, i := range []int{0, 2} {
		res := fr.Parse([]byte(frames[i]))
		_, err := table.Absorb(res)
		require.NoError(t, err)
	}

	later := base.Add(DefaultConfig().ReassemblyTimeout + time.Second)

	// Entries are timestamped with time.Now() internally; to exercise
	// the sweep deterministically we rewind ReassemblyTimeout by
	// resetting the clock backward via ResetClock before sweeping
	// forward from "later".
	missing, firstSeen, ok := table.Missing("tmo0001")
	require.True(t, ok)
	assert.Equal(t, []int{1, 3}, missing)
	table.ResetClock("tmo0001", firstSeen.Add(-DefaultConfig().ReassemblyTimeout-time.Second))

	out := rc.Sweep(table, later)
	require.Len(t, out, 1)

	res := fr.Parse([]byte(out[0]))
	require.Equal(t, ParseRetx, res.Kind)
	assert.Equal(t, "tmo0001", res.RetxID)
	assert.Equal(t, []int{1, 3}, res.RetxMissing)

	_, resetAt, ok := table.Missing("tmo0001")
	require.True(t, ok)
	assert.WithinDuration(t, later, resetAt, time.Millisecond)
}

func Test_Retx_Honoured(t *testing.T) {
	fr := NewFramer(DefaultConfig(), nil)
	cache := NewSendCache(16)
	rc := NewRetransmissionController(DefaultConfig(), nil)

	frames := fr.Split(Message{ID: "snd0001", CT: randomASCII(300), Meta: map[string]any{"fn": "echo"}})
	require.Greater(t, len(frames), 2)

	cache.Put("snd0001", frames)

	out, err := rc.HandleInboundRetx(cache, "snd0001", []int{1})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, frames[1], out[0])
}

func Test_Retx_StaleId(t *testing.T) {
	cache := NewSendCache(16)
	rc := NewRetransmissionController(DefaultConfig(), nil)

	_, err := rc.HandleInboundRetx(cache, "nope0001", []int{0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStaleRetx))
}

func Test_Retx_OutOfRangeSkipped(t *testing.T) {
	cache := NewSendCache(16)
	rc := NewRetransmissionController(DefaultConfig(), nil)

	cache.Put("abc0001", []string{"f0", "f1"})

	out, err := rc.HandleInboundRetx(cache, "abc0001", []int{0, 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"f0"}, out)
}

func Test_Sweep_RemovesImpossibleCompleteEntry(t *testing.T) {
	table := NewTable(DefaultConfig(), nil)
	rc := NewRetransmissionController(DefaultConfig(), nil)

	// Absorb always completes an entry once every chunk is in, so the
	// "impossible" bug state (every chunk present, never reassembled) is
	// built directly in the table.
	table.entries["full0001"] = &entry{
		chunks:    map[int]string{0: "AA=="},
		cc:        1,
		meta:      map[string]any{},
		firstSeen: time.Now(),
	}
	table.order = append(table.order, "full0001")

	missing, _, ok := table.Missing("full0001")
	require.True(t, ok)
	assert.Empty(t, missing)

	out := rc.Sweep(table, time.Now().Add(time.Hour))
	assert.Empty(t, out)

	// The sweep removed the entry without requesting a retransmission.
	_, _, ok = table.Missing("full0001")
	assert.False(t, ok)
}
