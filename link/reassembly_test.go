package link

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkedMessage(t *testing.T, id, content string) []string {
	t.Helper()

	fr := NewFramer(DefaultConfig(), nil)
	return fr.Split(Message{ID: id, CT: content, Meta: map[string]any{"fn": "echo"}})
}

func Test_Chunking_RoundTrip_AnyPermutation(t *testing.T) {
	content := randomASCII(5000)
	frames := chunkedMessage(t, "abc1234", content)

	require.Greater(t, len(frames), 1, "5000 chars should need multiple frames")

	for _, f := range frames {
		assert.LessOrEqual(t, len(f), FrameLimit)
	}

	perm := rand.New(rand.NewSource(2)).Perm(len(frames))

	fr := NewFramer(DefaultConfig(), nil)
	table := NewTable(DefaultConfig(), nil)

	var got *Message

	for _, idx := range perm {
		res := fr.Parse([]byte(frames[idx]))
		msg, err := table.Absorb(res)
		require.NoError(t, err)

		if msg != nil {
			got = msg
		}
	}

	require.NotNil(t, got)
	assert.Equal(t, content, got.CT)
	assert.Equal(t, "echo", got.Meta["fn"])
}

func Test_Chunking_DuplicateAndOutOfOrder(t *testing.T) {
	frames := chunkedMessage(t, "dup0001", randomASCII(1000))
	require.Greater(t, len(frames), 1)

	fr := NewFramer(DefaultConfig(), nil)
	table := NewTable(DefaultConfig(), nil)

	// Deliver chunk k before chunk 0, then chunk 0 again (duplicate).
	res1 := fr.Parse([]byte(frames[len(frames)-1]))
	_, err := table.Absorb(res1)
	require.NoError(t, err)

	res0 := fr.Parse([]byte(frames[0]))
	_, err = table.Absorb(res0)
	require.NoError(t, err)

	_, err = table.Absorb(res0) // duplicate
	require.NoError(t, err)

	var got *Message
	for _, f := range frames[1:] {
		res := fr.Parse([]byte(f))
		msg, err := table.Absorb(res)
		require.NoError(t, err)

		if msg != nil {
			got = msg
		}
	}

	require.NotNil(t, got)
}

func Test_Fastpath_SingleFrame(t *testing.T) {
	fr := NewFramer(DefaultConfig(), nil)
	frames := fr.Split(Message{ID: "abc1234", CT: "hello"})

	require.Len(t, frames, 1)

	res := fr.Parse([]byte(frames[0]))
	require.Equal(t, ParseSingle, res.Kind)
	assert.Equal(t, "abc1234", res.Message.ID)
	assert.Equal(t, "hello", res.Message.CT)
}

func Test_IdCollision_Dropped(t *testing.T) {
	fr := NewFramer(DefaultConfig(), nil)
	table := NewTable(DefaultConfig(), nil)

	res1 := fr.Parse([]byte(`{"id":"xyz0001","ci":0,"cc":3,"ct":"aa"}`))
	_, err := table.Absorb(res1)
	require.NoError(t, err)

	res2 := fr.Parse([]byte(`{"id":"xyz0001","ci":1,"cc":5,"ct":"bb"}`))
	msg, err := table.Absorb(res2)
	require.NoError(t, err)
	assert.Nil(t, msg)

	missing, _, ok := table.Missing("xyz0001")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, missing)
}

func randomASCII(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 .,!?"
	r := rand.New(rand.NewSource(42))

	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[r.Intn(len(alphabet))])
	}

	return sb.String()
}
