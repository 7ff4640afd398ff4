package link

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func roundTrip(t require.TestingT, b []byte) []byte {
	compressed := CompressLZNT1(b)

	decompressed, err := DecompressLZNT1(compressed, DecompressCeiling)
	require.NoError(t, err)

	return decompressed
}

func Test_RoundTrip_Fixed(t *testing.T) {
	cases := map[string][]byte{
		"empty":              {},
		"single byte":        {0x42},
		"chunk boundary 4095": bytes(4095),
		"chunk boundary 4096": bytes(4096),
		"chunk boundary 4097": bytes(4097),
		"highly repetitive":  []byte(strings.Repeat("a", 10000)),
	}

	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			got := roundTrip(t, b)
			assert.Equal(t, b, got)
		})
	}
}

func Test_RoundTrip_RandomIncompressible(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	b := make([]byte, 8192)
	r.Read(b)

	got := roundTrip(t, b)
	assert.Equal(t, b, got)
}

// Test_RoundTrip_Property: for all byte strings up to 64KiB,
// decompress(compress(b)) == b.
func Test_RoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.SliceOfN(rapid.Byte(), 0, 1<<16).Draw(t, "b")

		compressed := CompressLZNT1(b)
		decompressed, err := DecompressLZNT1(compressed, DecompressCeiling)

		assert.NoError(t, err)
		assert.Equal(t, b, decompressed)
	})
}

// Test_DecoderFixture verifies interoperability with a hand-constructed
// stream: a compressed chunk header followed by an all-literal group
// should decode to "ABCD...".
func Test_DecoderFixture(t *testing.T) {
	fixture := []byte{0x38, 0xb0, 0x00, 'A', 'B', 'C', 'D'}
	for i := 0; i < 50; i++ {
		fixture = append(fixture, byte('E'+i%20))
	}

	out, err := DecompressLZNT1(fixture, DecompressCeiling)
	require.NoError(t, err)
	require.True(t, len(out) >= 4)
	assert.Equal(t, "ABCD", string(out[:4]))
}

func Test_DecompressionBombGuard(t *testing.T) {
	// A chunk claiming a very long run via overlapping back-references.
	repeated := CompressLZNT1([]byte(strings.Repeat("x", 4096)))

	out, err := DecompressLZNT1(repeated, 1024)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 1024)
}

func Test_Decompress_CorruptInput(t *testing.T) {
	_, err := DecompressLZNT1([]byte{0x01, 0x80, 0xFF, 0xFF}, DecompressCeiling)
	require.Error(t, err)
}

func bytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}

	return b
}
