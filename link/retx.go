package link

/*------------------------------------------------------------------
 *
 * Purpose: Retransmission Controller — outbound timeout sweep (negative
 *	ACK) and inbound retx handling (honouring a peer's request from
 *	our last-sent cache).
 *
 * Description: A missing-index list that would not fit in one
 *	frame-limit-sized retx frame is split across several frames, each
 *	covering a disjoint subset of the missing indices, rather than
 *	emitting a single oversize frame.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// RetransmissionController drives the timeout-based negative-ACK sweep
// and honours inbound retx requests against the send cache.
type RetransmissionController struct {
	Config Config
	Logger *log.Logger
}

// NewRetransmissionController builds a controller bound to cfg.
func NewRetransmissionController(cfg Config, logger *log.Logger) *RetransmissionController {
	if logger == nil {
		logger = NewLogger(nil)
	}

	return &RetransmissionController{Config: cfg, Logger: logger}
}

// Sweep scans table for entries past the reassembly timeout and returns
// the serialised retx frames to transmit. now is injectable so tests can
// advance the clock deterministically.
func (rc *RetransmissionController) Sweep(table *Table, now time.Time) []string {
	timeout := rc.Config.ReassemblyTimeout
	if timeout <= 0 {
		timeout = ReassemblyTimeout
	}

	var frames []string

	for _, id := range table.Ids() {
		missing, firstSeen, ok := table.Missing(id)
		if !ok {
			continue
		}

		if now.Sub(firstSeen) <= timeout {
			continue
		}

		if len(missing) == 0 {
			// Guard against the "impossible" state: every chunk
			// present but reassembly never fired.
			rc.Logger.Warn("removing stale complete-but-unreassembled entry", "id", id)
			table.Remove(id)

			continue
		}

		for _, group := range rc.splitRetx(id, missing) {
			f := newRetxFrame(id, group)

			out, err := f.MarshalJSON()
			if err != nil {
				rc.Logger.Error("marshal retx failed", "id", id, "err", err)
				continue
			}

			frames = append(frames, string(out))
		}

		table.ResetClock(id, now)
		rc.Logger.Warn("reassembly timed out, requesting retransmission", "id", id, "missing", missing)
	}

	return frames
}

// splitRetx breaks a missing-index list into groups that each fit in one
// FRAME_LIMIT-sized retx frame. It starts from a single group and grows
// the number of groups until every group's serialised frame fits.
func (rc *RetransmissionController) splitRetx(id string, missing []int) [][]int {
	limit := rc.Config.FrameLimit
	if limit <= 0 {
		limit = FrameLimit
	}

	groups := [][]int{missing}

	for {
		allFit := true

		for _, g := range groups {
			f := newRetxFrame(id, g)

			out, err := f.MarshalJSON()
			if err != nil || len(out) > limit {
				allFit = false
				break
			}
		}

		if allFit {
			return groups
		}

		groups = splitGroupsInHalf(groups)

		// Guard against an infinite loop if even a single-index group
		// can't fit (e.g. a pathologically long id); give up splitting
		// further and return the single-index groups, whose frames are
		// then sent as they are, oversize or not.
		allSingle := true

		for _, g := range groups {
			if len(g) > 1 {
				allSingle = false
				break
			}
		}

		if allSingle {
			return groups
		}
	}
}

func splitGroupsInHalf(groups [][]int) [][]int {
	var out [][]int

	for _, g := range groups {
		if len(g) <= 1 {
			out = append(out, g)
			continue
		}

		mid := len(g) / 2
		out = append(out, g[:mid], g[mid:])
	}

	return out
}

// HandleInboundRetx honours a peer's retx request, returning the exact
// serialised frame strings to resend (unchanged byte-for-byte) in the
// order the peer asked for them. Out-of-range indices are logged and
// skipped; an id with nothing cached is ErrStaleRetx.
func (rc *RetransmissionController) HandleInboundRetx(cache *SendCache, id string, requested []int) ([]string, error) {
	stored, ok := cache.Get(id)
	if !ok {
		rc.Logger.Warn("retx for id not in send cache", "id", id)
		return nil, fmt.Errorf("%w: id=%s", ErrStaleRetx, id)
	}

	var out []string

	for _, ci := range requested {
		if ci < 0 || ci >= len(stored) {
			rc.Logger.Warn("retx index out of range", "id", id, "ci", ci, "have", len(stored))
			continue
		}

		out = append(out, stored[ci])
	}

	return out, nil
}
