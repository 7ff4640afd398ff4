package link

/*------------------------------------------------------------------
 *
 * Purpose: Split outbound messages into wire frames and classify
 *	inbound frames — the single-frame fast path and the chunked/
 *	compressed path share a wire format discriminated only by field
 *	values, so Split/Parse must be exact inverses of each other.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// Message is an application-level request or response: an id, content,
// and an open-ended metadata bag (fn/st/anything else).
type Message struct {
	ID   string
	CT   string
	Meta map[string]any
}

// Framer splits messages into wire frames and classifies inbound ones.
// It is stateless; all the interesting state lives in the Table and
// SendCache it is used alongside.
type Framer struct {
	Config Config
	Logger *log.Logger
}

// NewFramer builds a Framer with the given config, defaulting to a
// discard logger when none is supplied.
func NewFramer(cfg Config, logger *log.Logger) *Framer {
	if logger == nil {
		logger = NewLogger(nil)
	}

	return &Framer{Config: cfg, Logger: logger}
}

// Split turns a message into one or more serialised wire frames.
func (fr *Framer) Split(msg Message) []string {
	single := Frame{ID: msg.ID, CT: msg.CT, Meta: cloneMeta(msg.Meta)}

	singleJSON, err := single.MarshalJSON()
	if err != nil {
		// Meta values that don't marshal are an application bug; fall
		// through to the chunked path, which re-marshals the same
		// meta and will surface the same error there if it recurs.
		fr.Logger.Error("marshal single frame failed", "id", msg.ID, "err", err)
	} else if utf8.RuneCountInString(msg.CT) < fr.Config.CompressionThreshold && len(singleJSON) <= fr.Config.FrameLimit {
		return []string{string(singleJSON)}
	}

	return fr.splitChunked(msg)
}

func (fr *Framer) splitChunked(msg Message) []string {
	compressed := CompressLZNT1([]byte(msg.CT))
	encoded := base64.StdEncoding.EncodeToString(compressed)

	fr.Logger.Info("compressed message",
		"id", msg.ID, "content_chars", len(msg.CT),
		"compressed_bytes", len(compressed), "base64_chars", len(encoded))

	chunkSize := fr.Config.ChunkDataSize
	if chunkSize <= 0 {
		chunkSize = ChunkDataSize
	}

	var pieces []string
	for i := 0; i < len(encoded); i += chunkSize {
		end := i + chunkSize
		if end > len(encoded) {
			end = len(encoded)
		}

		pieces = append(pieces, encoded[i:end])
	}

	if len(pieces) == 0 {
		// Empty content still needs exactly one chunk to carry cc=1.
		pieces = []string{""}
	}

	cc := len(pieces)
	result := make([]string, 0, cc)

	for ci, data := range pieces {
		f := Frame{ID: msg.ID, CI: ci, CC: cc, CT: data}
		if ci == 0 {
			f.Meta = cloneMeta(msg.Meta)
		} else {
			f.Meta = map[string]any{}
		}

		out, err := f.MarshalJSON()
		if err != nil {
			fr.Logger.Error("marshal chunk failed", "id", msg.ID, "ci", ci, "err", err)
			continue
		}

		if len(out) > fr.Config.FrameLimit {
			fr.Logger.Warn("oversize frame, sending anyway",
				"id", msg.ID, "ci", ci, "cc", cc, "bytes", len(out), "limit", fr.Config.FrameLimit)
		}

		result = append(result, string(out))
	}

	fr.Logger.Info("split message into chunks", "id", msg.ID, "cc", cc)

	return result
}

// ParseKind discriminates the three shapes an inbound frame can take.
type ParseKind int

const (
	// ParseInvalid marks a frame that was dropped (malformed JSON,
	// missing id, or ci out of [0,cc)).
	ParseInvalid ParseKind = iota
	ParseRetx
	ParseSingle
	ParseChunkPiece
)

// ParseResult is the classification of one inbound wire frame.
type ParseResult struct {
	Kind ParseKind

	// Populated for ParseRetx.
	RetxID      string
	RetxMissing []int

	// Populated for ParseSingle.
	Message Message

	// Populated for ParseChunkPiece.
	PieceID  string
	PieceCI  int
	PieceCC  int
	PieceCT  string
	PieceMeta map[string]any // only meaningful when PieceCI == 0
}

// Parse classifies one raw inbound frame (already extracted from a
// modem-decoded block). Malformed frames come back as ParseInvalid; the
// caller should log and drop them, which Parse itself also does.
func (fr *Framer) Parse(data []byte) ParseResult {
	f, err := parseRawFrame(data)
	if err != nil {
		fr.Logger.Warn("dropping unparseable frame", "err", err)
		return ParseResult{Kind: ParseInvalid}
	}

	if f.ID == "" {
		fr.Logger.Warn("dropping frame with no id")
		return ParseResult{Kind: ParseInvalid}
	}

	if f.IsRetx() {
		return ParseResult{
			Kind:        ParseRetx,
			RetxID:      f.ID,
			RetxMissing: f.RetxIndices(),
		}
	}

	if f.CC == 0 {
		return ParseResult{
			Kind: ParseSingle,
			Message: Message{
				ID:   f.ID,
				CT:   f.CT,
				Meta: f.Meta,
			},
		}
	}

	if f.CI < 0 || f.CI >= f.CC {
		fr.Logger.Warn("dropping frame with out-of-range ci", "id", f.ID, "ci", f.CI, "cc", f.CC)
		return ParseResult{Kind: ParseInvalid}
	}

	return ParseResult{
		Kind:      ParseChunkPiece,
		PieceID:   f.ID,
		PieceCI:   f.CI,
		PieceCC:   f.CC,
		PieceCT:   f.CT,
		PieceMeta: f.Meta,
	}
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// frameTooLarge is a small helper used by callers that want to report
// OversizeFrame as a proper error rather than just logging.
func frameTooLarge(id string, ci, cc, size, limit int) error {
	return fmt.Errorf("%w: id=%s ci=%d cc=%d size=%d limit=%d", ErrOversizeFrame, id, ci, cc, size, limit)
}
