package link

/*------------------------------------------------------------------
 *
 * Purpose: Inbound reassembly table — per-message state tracking which
 *	chunks have arrived, keyed by id.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/base64"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// entry is one inflight inbound message.
type entry struct {
	chunks    map[int]string
	cc        int
	meta      map[string]any
	firstSeen time.Time
}

// Table is the per-message inbound reassembly state: which chunks have
// arrived, their metadata, and how long they've been waiting. It is
// owned by a single Session; there is no locking because the session
// loop is single-threaded.
type Table struct {
	Config Config
	Logger *log.Logger

	entries map[string]*entry
	order   []string // insertion order, for MaxInflight eviction
}

// NewTable builds an empty reassembly table.
func NewTable(cfg Config, logger *log.Logger) *Table {
	if logger == nil {
		logger = NewLogger(nil)
	}

	return &Table{
		Config:  cfg,
		Logger:  logger,
		entries: map[string]*entry{},
	}
}

// Absorb processes one chunk piece. It returns the reassembled message
// when every chunk has arrived, nil otherwise. A non-nil error means the
// message completed but failed to decode (ErrCorruptInput); the entry
// is removed either way.
func (t *Table) Absorb(res ParseResult) (*Message, error) {
	if res.Kind != ParseChunkPiece {
		return nil, nil
	}

	id := res.PieceID

	e, ok := t.entries[id]
	if !ok {
		t.evictIfFull()

		e = &entry{
			chunks:    map[int]string{},
			cc:        res.PieceCC,
			meta:      map[string]any{},
			firstSeen: time.Now(),
		}
		t.entries[id] = e
		t.order = append(t.order, id)
	}

	if e.cc != res.PieceCC {
		t.Logger.Warn("dropping chunk, cc mismatch", "id", id, "have_cc", e.cc, "got_cc", res.PieceCC,
			"err", fmt.Errorf("%w: id=%s", ErrIdCollision, id))
		return nil, nil
	}

	e.chunks[res.PieceCI] = res.PieceCT

	if res.PieceCI == 0 {
		for k, v := range res.PieceMeta {
			e.meta[k] = v
		}
	}

	if len(e.chunks) != e.cc {
		return nil, nil
	}

	msg, err := t.reassemble(id, e)
	t.remove(id)

	if err != nil {
		return nil, err
	}

	return msg, nil
}

// reassemble concatenates ct pieces in index order, base64-decodes,
// LZNT1-decompresses, and UTF-8-decodes to recover the original content.
func (t *Table) reassemble(id string, e *entry) (*Message, error) {
	encoded := make([]byte, 0, e.cc*t.chunkDataSize())

	for ci := 0; ci < e.cc; ci++ {
		piece, ok := e.chunks[ci]
		if !ok {
			// Should be unreachable: len(chunks) == cc was just checked.
			return nil, fmt.Errorf("%w: missing chunk %d for id=%s", ErrCorruptInput, ci, id)
		}

		encoded = append(encoded, piece...)
	}

	compressed, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode for id=%s: %v", ErrCorruptInput, id, err)
	}

	ceiling := t.Config.DecompressCeiling
	if ceiling <= 0 {
		ceiling = DecompressCeiling
	}

	content, err := DecompressLZNT1(compressed, ceiling)
	if err != nil {
		return nil, fmt.Errorf("%w: lznt1 decompress for id=%s: %v", ErrCorruptInput, id, err)
	}

	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: non-utf8 content for id=%s", ErrCorruptInput, id)
	}

	t.Logger.Info("reassembled message", "id", id, "cc", e.cc, "chars", len(content))

	return &Message{ID: id, CT: string(content), Meta: e.meta}, nil
}

func (t *Table) chunkDataSize() int {
	if t.Config.ChunkDataSize > 0 {
		return t.Config.ChunkDataSize
	}

	return ChunkDataSize
}

func (t *Table) remove(id string) {
	delete(t.entries, id)

	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// evictIfFull drops the oldest (by first_seen) entry once MaxInflight
// concurrent messages are already tracked, enforcing a hard cap on
// inflight reassembly state.
func (t *Table) evictIfFull() {
	max := t.Config.MaxInflight
	if max <= 0 {
		max = MaxInflight
	}

	if len(t.entries) < max {
		return
	}

	if len(t.order) == 0 {
		return
	}

	oldest := t.order[0]
	for _, id := range t.order[1:] {
		if t.entries[id].firstSeen.Before(t.entries[oldest].firstSeen) {
			oldest = id
		}
	}

	t.Logger.Warn("evicting oldest inflight message, table full", "id", oldest, "max_inflight", max)
	t.remove(oldest)
}

// Missing returns the set of chunk indices not yet received for id,
// along with whether the id is currently tracked at all and its
// first_seen time (first chunk arrival, or the last retx clock reset).
func (t *Table) Missing(id string) (missing []int, since time.Time, ok bool) {
	e, found := t.entries[id]
	if !found {
		return nil, time.Time{}, false
	}

	for ci := 0; ci < e.cc; ci++ {
		if _, have := e.chunks[ci]; !have {
			missing = append(missing, ci)
		}
	}

	return missing, e.firstSeen, true
}

// ResetClock resets first_seen for id to now, used after emitting a
// retx so the peer gets a full new window to respond.
func (t *Table) ResetClock(id string, now time.Time) {
	if e, ok := t.entries[id]; ok {
		e.firstSeen = now
	}
}

// Remove deletes an entry outright (used by the sweep's "impossible"
// all-present-but-incomplete guard).
func (t *Table) Remove(id string) {
	t.remove(id)
}

// Ids returns the ids currently tracked, for the sweep to iterate.
// The returned slice is a snapshot; mutating the table afterward is
// safe for the caller to do while iterating it.
func (t *Table) Ids() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)

	return out
}
