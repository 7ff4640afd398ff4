package link

import "errors"

// Error taxonomy. Every failure mode the transport can hit wraps one of
// these sentinels so callers can errors.Is/errors.As rather than matching
// on message text.
var (
	// ErrCorruptInput covers malformed JSON, bad base64, LZNT1 stream
	// violations, and non-UTF-8 content surviving decompression.
	ErrCorruptInput = errors.New("corrupt input")

	// ErrOversizeFrame means a serialised frame exceeded FRAME_LIMIT.
	// It is never fatal: the frame is logged and transmitted anyway.
	ErrOversizeFrame = errors.New("frame exceeds size limit")

	// ErrIdCollision means an incoming chunk's cc disagreed with the cc
	// already stored for that id.
	ErrIdCollision = errors.New("chunk count mismatch for id")

	// ErrReassemblyTimeout marks an entry past REASSEMBLY_TIMEOUT with
	// chunks still missing. The controller responds by emitting retx.
	ErrReassemblyTimeout = errors.New("reassembly timed out")

	// ErrStaleRetx means an inbound retx named an id with nothing in the
	// send cache.
	ErrStaleRetx = errors.New("retx for unknown id")

	// ErrApplicationError wraps an error returned by the application
	// pipeline; the session loop turns it into an st:"E" response.
	ErrApplicationError = errors.New("application error")

	// ErrTransportFatal means the modem or audio I/O failed permanently.
	// Session.Run returns it and stops; no error frame is sent first.
	ErrTransportFatal = errors.New("transport fatal error")
)
