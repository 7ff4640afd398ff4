package link

/*------------------------------------------------------------------
 *
 * Purpose: Transport constants and optional YAML overrides.
 *
 * The defaults below match the values every implementation of this
 * protocol must agree on to interoperate over the air. A deployment can
 * override them with a small YAML file (see LoadConfig), read once at
 * startup and never mutated afterward.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FrameLimit is the hard per-frame payload ceiling of the acoustic
	// channel. The encoder warns but does not refuse when exceeded.
	FrameLimit = 140

	// ChunkDataSize is the width, in base64 characters, of each chunk
	// piece's ct slice.
	ChunkDataSize = 70

	// CompressionThreshold is the ct length (in characters) below which
	// a message takes the uncompressed single-frame fast path.
	CompressionThreshold = 100

	// InterFrameDelay is the pause observed between consecutive outbound
	// frames (no flow control beyond this).
	InterFrameDelay = 500 * time.Millisecond

	// ReassemblyTimeout is how long an inbound entry may sit with
	// missing chunks before the controller emits a retx.
	ReassemblyTimeout = 30 * time.Second

	// SweepInterval is how often the retransmission controller scans
	// the reassembly table, kept well under ReassemblyTimeout so a
	// timed-out entry isn't left waiting an extra full period.
	SweepInterval = ReassemblyTimeout / 4

	// DecompressCeiling bounds LZNT1 decompression output so a hostile
	// or corrupted stream cannot be used to exhaust memory.
	DecompressCeiling = 256 * 1024

	// SendCacheSize is the default LRU bound on the outbound last-sent
	// cache (message ids retained for answering retx).
	SendCacheSize = 16

	// MaxInflight bounds the number of concurrent partially-received
	// messages the reassembly table will hold before evicting the
	// oldest by first-seen time.
	MaxInflight = 64
)

// Config collects the tunables above so a deployment can override them
// without touching code. DefaultConfig holds the package defaults; a
// zero field is not replaced by its default everywhere it is read
// (Framer.Split uses CompressionThreshold and FrameLimit as given).
type Config struct {
	FrameLimit           int           `yaml:"frame_limit"`
	ChunkDataSize        int           `yaml:"chunk_data_size"`
	CompressionThreshold int           `yaml:"compression_threshold"`
	InterFrameDelay      time.Duration `yaml:"inter_frame_delay"`
	ReassemblyTimeout    time.Duration `yaml:"reassembly_timeout"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	DecompressCeiling    int           `yaml:"decompress_ceiling"`
	SendCacheSize        int           `yaml:"send_cache_size"`
	MaxInflight          int           `yaml:"max_inflight"`
}

// DefaultConfig returns the constants above as a Config value.
func DefaultConfig() Config {
	return Config{
		FrameLimit:           FrameLimit,
		ChunkDataSize:        ChunkDataSize,
		CompressionThreshold: CompressionThreshold,
		InterFrameDelay:      InterFrameDelay,
		ReassemblyTimeout:    ReassemblyTimeout,
		SweepInterval:        SweepInterval,
		DecompressCeiling:    DecompressCeiling,
		SendCacheSize:        SendCacheSize,
		MaxInflight:          MaxInflight,
	}
}

// LoadConfig reads a YAML file of overrides layered on top of
// DefaultConfig. An empty path is not an error; it just returns the
// defaults untouched, the same "empty string disables the feature"
// convention used for the session log directory.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}

	return cfg, nil
}
