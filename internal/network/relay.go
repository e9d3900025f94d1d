// Package network implements the protocol-aware relay: it accepts game
// clients, dials the upstream server once per client and pumps frames in
// both directions through the codec and the packet hook chain.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/capture"
	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/events"
	"github.com/tilewire-project/tilewire/internal/packets"
	"github.com/tilewire-project/tilewire/internal/protocol"
	"github.com/tilewire-project/tilewire/internal/stats"
)

const tcpKeepAlive = 30 * time.Second

// FrameRecorder persists frames the relay could not handle cleanly.
type FrameRecorder interface {
	Save(ctx context.Context, rec capture.Record) (int64, error)
}

// Options wires the relay's collaborators. Every field is optional.
type Options struct {
	Hooks    *events.HookChain
	Bus      *events.EventBus
	Stats    *stats.Collector
	Recorder FrameRecorder
	Sessions *SessionRegistry
}

// Relay is a per-client TCP relay that understands the frame protocol.
type Relay struct {
	cfg        config.RelayConfig
	codec      *protocol.Codec
	hooks      *events.HookChain
	bus        *events.EventBus
	stats      *stats.Collector
	recorder   FrameRecorder
	sessions   *SessionRegistry
	logger     zerolog.Logger
	frameLevel zerolog.Level

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopped  atomic.Bool
	listener net.Listener
}

// NewRelay creates a relay. Call Start to begin accepting clients.
func NewRelay(cfg config.RelayConfig, codec *protocol.Codec, opts Options) *Relay {
	if opts.Hooks == nil {
		opts.Hooks = events.NewHookChain()
	}
	if opts.Sessions == nil {
		opts.Sessions = NewSessionRegistry()
	}

	level, err := zerolog.ParseLevel(cfg.FrameLogLevel)
	if err != nil || cfg.FrameLogLevel == "" {
		level = zerolog.TraceLevel
	}

	return &Relay{
		cfg:        cfg,
		codec:      codec,
		hooks:      opts.Hooks,
		bus:        opts.Bus,
		stats:      opts.Stats,
		recorder:   opts.Recorder,
		sessions:   opts.Sessions,
		frameLevel: level,
		logger: log.With().
			Str("component", "relay").
			Str("upstream", cfg.Upstream).
			Logger(),
	}
}

// Sessions returns the live session registry.
func (r *Relay) Sessions() *SessionRegistry {
	return r.sessions
}

// Hooks returns the packet hook chain.
func (r *Relay) Hooks() *events.HookChain {
	return r.hooks
}

// Addr returns the listener address once Start has succeeded.
func (r *Relay) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// IsRunning returns true if the relay has been started and not stopped.
func (r *Relay) IsRunning() bool {
	return r.listener != nil && !r.stopped.Load()
}

// Start binds the client listener and launches the accept loop.
func (r *Relay) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	lc := ReuseAddrListenConfig(tcpKeepAlive)
	ln, err := lc.Listen(ctx, "tcp", r.cfg.ListenAddress())
	if err != nil {
		r.cancel()
		return fmt.Errorf("failed to listen on %s: %w", r.cfg.ListenAddress(), err)
	}
	r.listener = ln

	r.wg.Add(1)
	go r.acceptLoop(ctx, ln)

	r.logger.Info().
		Str("listen", ln.Addr().String()).
		Int("max_sessions", r.cfg.MaxSessions).
		Msg("relay started")
	return nil
}

// Stop closes the listener, disconnects every session and waits for the
// relay goroutines to finish.
func (r *Relay) Stop() {
	if r.stopped.Swap(true) {
		return
	}
	r.logger.Info().Msg("stopping relay")

	if r.cancel != nil {
		r.cancel()
	}
	if r.listener != nil {
		r.listener.Close()
	}
	r.sessions.CloseAll(events.CloseShutdown)

	r.wg.Wait()
	r.logger.Info().Msg("relay stopped")
}

func (r *Relay) acceptLoop(ctx context.Context, ln net.Listener) {
	defer r.wg.Done()
	defer ln.Close()

	var limiter *rateTracker
	if r.cfg.MaxConnsPerIP > 0 {
		limiter = newRateTracker(r.cfg.MaxConnsPerIP)
	}
	var active atomic.Int32

	for {
		conn, err := ln.Accept()
		if err != nil {
			if r.stopped.Load() || ctx.Err() != nil {
				return
			}
			r.logger.Debug().Err(err).Msg("accept error")
			continue
		}

		srcIP := extractIP(conn.RemoteAddr())

		if limiter != nil && !limiter.allow(srcIP) {
			r.logger.Warn().Str("src", srcIP).Msg("connection rate limit exceeded, dropping client")
			conn.Close()
			continue
		}

		if r.cfg.MaxSessions > 0 && int(active.Load()) >= r.cfg.MaxSessions {
			r.logger.Warn().Str("src", srcIP).Msg("max sessions reached, dropping client")
			conn.Close()
			continue
		}

		active.Add(1)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer active.Add(-1)
			r.handleClient(ctx, conn)
		}()
	}
}

func (r *Relay) handleClient(ctx context.Context, client net.Conn) {
	dialer := net.Dialer{Timeout: r.cfg.DialTimeout()}
	upstream, err := dialer.DialContext(ctx, "tcp", r.cfg.Upstream)
	if err != nil {
		r.logger.Warn().Err(err).Str("remote", client.RemoteAddr().String()).Msg("failed to connect to upstream")
		r.stats.RecordError(stats.ErrorIO)
		client.Close()
		return
	}

	s := newSession(r.sessions.NextID(), client, upstream)
	r.sessions.Register(s)
	if ctx.Err() != nil {
		// Stop ran between the dial and Register and missed this session.
		s.Close(events.CloseShutdown)
	}
	r.stats.SessionOpened()
	r.emit(ctx, events.EventSessionOpened, events.SessionPayload{
		SessionID:  s.id,
		RemoteAddr: s.remoteAddr,
		Upstream:   s.upstream,
	})
	s.setState(events.SessionStateActive)
	s.logger.Info().Str("upstream", s.upstream).Msg("session opened")

	type result struct {
		reason events.CloseReason
		err    error
	}
	results := make(chan result, 2)
	for _, dir := range []protocol.Direction{protocol.FromClient, protocol.FromServer} {
		dir := dir
		go func() {
			reason, err := r.pump(ctx, s, dir)
			results <- result{reason, err}
		}()
	}

	first := <-results
	s.Close(first.reason)
	<-results

	s.setState(events.SessionStateClosed)
	r.sessions.Unregister(s.id)
	r.stats.SessionClosed()

	s.logger.Debug().Err(first.err).Msg("session pumps finished")
	r.emit(ctx, events.EventSessionClosed, events.SessionPayload{
		SessionID:  s.id,
		RemoteAddr: s.remoteAddr,
		Upstream:   s.upstream,
		Reason:     s.CloseReason(),
		Duration:   time.Since(s.openedAt),
	})
}

// pump relays frames from one side of s to the other until a read or write
// fails. It reports the close reason implied by the failure.
func (r *Relay) pump(ctx context.Context, s *Session, dir protocol.Direction) (events.CloseReason, error) {
	src, dst := s.client, s.server
	srcGone, dstGone := events.CloseClientGone, events.CloseUpstreamGone
	pctx := protocol.ServerSide
	if dir == protocol.FromServer {
		src, dst = s.server, s.client
		srcGone, dstGone = dstGone, srcGone
		pctx = protocol.ClientSide
	}

	timeout := r.cfg.ReadTimeout()
	for {
		if timeout > 0 {
			src.SetReadDeadline(time.Now().Add(timeout))
		}

		frame, err := protocol.ReadFrame(src)
		if err != nil {
			if errors.Is(err, protocol.ErrFrameDesync) {
				r.stats.RecordError(stats.ErrorDecode)
				r.desync(ctx, s, dir, 0, nil, err)
				return events.CloseDesync, err
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return events.CloseStale, err
			}
			return srcGone, err
		}

		s.Touch()
		s.countFrame(dir == protocol.FromClient)

		out, err := r.process(ctx, s, dir, pctx, frame)
		if err != nil {
			return events.CloseDesync, err
		}
		if out == nil {
			continue
		}

		if err := protocol.WriteFrame(dst, out); err != nil {
			r.stats.RecordError(stats.ErrorIO)
			return dstGone, err
		}
	}
}

// process runs one frame through decode, hooks and re-encode. It returns the
// bytes to forward, nil to drop the frame, or a fatal error that ends the
// session.
func (r *Relay) process(ctx context.Context, s *Session, dir protocol.Direction, pctx protocol.Context, frame []byte) ([]byte, error) {
	id := protocol.MessageType(frame[protocol.LengthSize])
	name := r.codec.Registry().Name(id)
	r.stats.RecordFrame(dir, id, name, len(frame))

	s.logger.WithLevel(r.frameLevel).
		Str("dir", dir.String()).
		Stringer("type", id).
		Str("name", name).
		Int("size", len(frame)).
		Msg("frame")

	msg, err := r.codec.Decode(frame, pctx)
	if err != nil {
		r.stats.RecordError(stats.ErrorDecode)
		if protocol.IsFatal(err) {
			r.desync(ctx, s, dir, id, frame, err)
			return nil, err
		}
		s.logger.Debug().Err(err).Str("name", name).Msg("forwarding frame that failed to decode")
		return frame, nil
	}

	if u, ok := msg.(*protocol.Unknown); ok {
		r.capture(ctx, s, dir, u.TypeID, frame, capture.ReasonUnknown, "")
		if !r.cfg.ForwardUnknown {
			r.stats.RecordDropped("unknown")
			return nil, nil
		}
	}

	if cc, ok := msg.(*packets.ContinueConnecting); ok && dir == protocol.FromServer {
		s.SetPlayer(cc.Player.Get())
		r.emit(ctx, events.EventPlayerSlot, events.PlayerSlotPayload{
			SessionID: s.id,
			Player:    cc.Player.Get(),
		})
	}

	payload := events.PacketPayload{
		SessionID: s.id,
		Direction: dir.String(),
		TypeID:    uint8(id),
		TypeName:  name,
		Size:      len(frame),
	}

	args := &events.PacketArgs{
		SessionID: s.id,
		Direction: dir,
		Context:   pctx,
		Message:   msg,
	}
	if r.hooks.Run(args) {
		r.stats.RecordVeto(dir, id, name, args.HandledBy)
		s.logger.Debug().Str("name", name).Str("hook", args.HandledBy).Msg("frame vetoed")
		payload.Vetoed = true
		payload.HookName = args.HandledBy
		r.emit(ctx, events.EventPacketVetoed, payload)
		return nil, nil
	}

	out := frame
	if args.Message != nil && (args.Message != msg || args.Message.IsDirty()) {
		encoded, err := r.codec.Encode(args.Message, pctx)
		if err != nil {
			r.stats.RecordError(stats.ErrorEncode)
			reason := "encode"
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				reason = "too_large"
			}
			r.stats.RecordDropped(reason)
			s.logger.Warn().Err(err).Str("name", name).Msg("dropping frame that failed to re-encode")
			return nil, nil
		}
		out = encoded
		r.stats.RecordReencode(dir, id, name)
		payload.Rewritten = true
		payload.Size = len(out)
		r.emit(ctx, events.EventPacketRewrite, payload)
	}

	r.emit(ctx, events.EventPacket, payload)
	return out, nil
}

func (r *Relay) desync(ctx context.Context, s *Session, dir protocol.Direction, id protocol.MessageType, frame []byte, err error) {
	s.logger.Warn().
		Err(err).
		Str("dir", dir.String()).
		Stringer("type", id).
		Msg("frame desync, closing session")

	if frame != nil {
		r.capture(ctx, s, dir, id, frame, capture.ReasonDesync, err.Error())
	}
	r.emit(ctx, events.EventFrameDesync, events.DesyncPayload{
		SessionID: s.id,
		Direction: dir.String(),
		TypeID:    uint8(id),
		Error:     err.Error(),
	})
}

func (r *Relay) capture(ctx context.Context, s *Session, dir protocol.Direction, id protocol.MessageType, frame []byte, reason capture.Reason, detail string) {
	if r.recorder == nil {
		return
	}

	_, err := r.recorder.Save(context.WithoutCancel(ctx), capture.Record{
		SessionID: s.id,
		Direction: dir.String(),
		TypeID:    uint8(id),
		Reason:    reason,
		Error:     detail,
		Size:      len(frame),
		Payload:   frame,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to capture frame")
		return
	}

	r.stats.RecordCapture(string(reason))
	r.emit(ctx, events.EventFrameCaptured, events.CapturePayload{
		SessionID: s.id,
		Direction: dir.String(),
		TypeID:    uint8(id),
		Reason:    string(reason),
		Size:      len(frame),
	})
}

func (r *Relay) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(ctx, events.Event{Type: t, Source: "relay", Payload: payload})
}
