package link

/*------------------------------------------------------------------
 *
 * Purpose: Session loop — the single-threaded heart of the link. Polls
 *	the modem, feeds decoded blocks through the framer and reassembly
 *	table, hands completed messages to the application pipeline, and
 *	periodically sweeps for timed-out reassembly.
 *
 * Description: This is cooperative and single-threaded by design: the
 *	channel is half-duplex, so there is never a reason to decode and
 *	key up at the same time, and a single goroutine driving a select
 *	loop is easier to reason about than a pile of synchronised state.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
)

// Session wires together every moving part of the link: the modem,
// the framer/reassembly/retransmission state, the application
// pipeline, and (optionally) PTT keying and a diagnostic CSV trail.
type Session struct {
	Config Config
	Logger *log.Logger

	Modem    Modem
	PTT      PTTController
	Pipeline Pipeline
	Log      *SessionLog

	Framer *Framer
	Table  *Table
	Cache  *SendCache
	Retx   *RetransmissionController

	ProtocolID int
	Volume     int

	pollInterval time.Duration
}

// NewSession builds a Session ready to Run. PTT starts as NullPTT and
// Log as a disabled SessionLog; setting Log to nil also disables
// diagnostic CSV output entirely.
func NewSession(cfg Config, logger *log.Logger, modem Modem, pipeline Pipeline) *Session {
	if logger == nil {
		logger = NewLogger(nil)
	}

	return &Session{
		Config:       cfg,
		Logger:       logger,
		Modem:        modem,
		PTT:          NullPTT{},
		Pipeline:     pipeline,
		Log:          NewSessionLog(""),
		Framer:       NewFramer(cfg, logger),
		Table:        NewTable(cfg, logger),
		Cache:        NewSendCache(cfg.SendCacheSize),
		Retx:         NewRetransmissionController(cfg, logger),
		ProtocolID:   1,
		Volume:       50,
		pollInterval: 20 * time.Millisecond,
	}
}

// Run drives the loop until ctx is cancelled. On every poll tick it
// asks the modem for an inbound block and processes it if present; on
// every sweep tick it sweeps for timed-out reassembly.
func (s *Session) Run(ctx context.Context) error {
	sweepTicker := time.NewTicker(s.sweepInterval())
	defer sweepTicker.Stop()

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case now := <-sweepTicker.C:
			s.doSweep(now)

		case <-pollTicker.C:
			if err := s.pollOnce(); err != nil {
				if isFatal(err) {
					return err
				}

				s.Logger.Error("session error", "err", err)
			}
		}
	}
}

func (s *Session) sweepInterval() time.Duration {
	if s.Config.SweepInterval > 0 {
		return s.Config.SweepInterval
	}

	return SweepInterval
}

// pollOnce reads whatever the modem has decoded (if anything) and
// processes it. A false ok from Poll just means nothing arrived this
// tick, which is the common case in a half-duplex poll loop.
func (s *Session) pollOnce() error {
	block, ok := s.Modem.Poll()
	if !ok {
		return nil
	}

	return s.handleInbound(block)
}

// handleInbound implements the inbound steps for one block: parse,
// classify, absorb or honour-retx, and — on a newly completed message —
// run the pipeline and transmit the reply.
func (s *Session) handleInbound(block []byte) error {
	res := s.Framer.Parse(block)

	switch res.Kind {
	case ParseInvalid:
		s.logEvent("", EventDropped, 0, 0, len(block), "unparseable or malformed frame")
		return nil

	case ParseRetx:
		frames, err := s.Retx.HandleInboundRetx(s.Cache, res.RetxID, res.RetxMissing)
		if err != nil {
			s.logEvent(res.RetxID, EventDropped, 0, 0, 0, err.Error())
			return nil
		}

		s.logEvent(res.RetxID, EventRetxRecv, 0, 0, len(frames), "")

		return s.transmitFrames(res.RetxID, frames)

	case ParseSingle:
		s.logEvent(res.Message.ID, EventReassembled, 0, 0, len(res.Message.CT), "single-frame message")
		return s.deliver(res.Message)

	case ParseChunkPiece:
		msg, err := s.Table.Absorb(res)
		if err != nil {
			s.logEvent(res.PieceID, EventDropped, res.PieceCI, res.PieceCC, 0, err.Error())
			return nil
		}

		s.logEvent(res.PieceID, EventAbsorbed, res.PieceCI, res.PieceCC, len(res.PieceCT), "")

		if msg == nil {
			return nil
		}

		s.logEvent(msg.ID, EventReassembled, 0, 0, len(msg.CT), "")

		return s.deliver(*msg)
	}

	return nil
}

// deliver runs the application pipeline on a completed inbound message
// and transmits its reply, translating a pipeline error into st:"E" on
// the wire rather than failing the session.
func (s *Session) deliver(msg Message) error {
	reply, err := s.Pipeline.Process(msg)
	if err != nil {
		reply = Message{
			ID: msg.ID,
			CT: err.Error(),
			Meta: map[string]any{
				"fn": msg.Meta["fn"],
				"st": "E",
			},
		}
	}

	frames := s.Framer.Split(reply)
	s.Cache.Put(reply.ID, frames)

	return s.transmitFrames(reply.ID, frames)
}

func (s *Session) transmitFrames(id string, frames []string) error {
	if len(frames) == 0 {
		return nil
	}

	if err := s.PTT.Key(); err != nil {
		return err
	}
	defer s.PTT.Unkey()

	delay := s.Config.InterFrameDelay
	if delay <= 0 {
		delay = InterFrameDelay
	}

	for i, f := range frames {
		if _, err := s.Modem.Encode([]byte(f), s.ProtocolID, s.Volume); err != nil {
			return err
		}

		s.logEvent(id, EventSent, i, len(frames), len(f), "")

		if i < len(frames)-1 {
			time.Sleep(delay)
		}
	}

	return nil
}

func (s *Session) doSweep(now time.Time) {
	frames := s.Retx.Sweep(s.Table, now)

	for _, f := range frames {
		res := s.Framer.Parse([]byte(f))
		s.logEvent(res.RetxID, EventRetxSent, 0, 0, len(f), "")

		if err := s.transmitFrames(res.RetxID, []string{f}); err != nil {
			s.Logger.Error("retx sweep transmit failed", "id", res.RetxID, "err", err)
		}
	}
}

func (s *Session) logEvent(id string, ev Event, ci, cc, bytes int, detail string) {
	if s.Log == nil {
		return
	}

	if err := s.Log.Write(time.Now(), id, ev, ci, cc, bytes, detail); err != nil {
		s.Logger.Error("session log write failed", "err", err)
	}
}

func isFatal(err error) bool {
	return err != nil && errors.Is(err, ErrTransportFatal)
}
