package signal

import (
	"context"
	"time"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	period := ctl.Opts.PingPeriod
	if period <= 0 {
		period = DefaultOptions().PingPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Logger()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				logger.Debug().Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn().Err(err).Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := ctl.ping(c); err != nil {
				logger.Warn().Err(err).Msg("writePump ping error")
				c.Close()
				return
			}
		}
	}
}

// readPump dispatches inbound frames one at a time, which keeps the
// messages of one connection in order.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.disconnect(sid)
	}()

	ctl.keepAlive(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, sid, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, data []byte) {
	msg, err := protocol.DecodeInbound(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad message")
		ctl.sendJSON(sid, protocol.Error{Message: err.Error()})
		return
	}

	if _, ok := msg.(protocol.JoinRoom); ok && ctl.Limiter != nil && !ctl.Limiter.Allow(sid.UserID()) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendJSON(sid, protocol.Error{Request: protocol.EventJoinRoom, Message: ErrRateLimited.Error()})
		return
	}

	// Failures are reported to the client by the orchestrator.
	_ = ctl.Orch.Handle(ctx, sid, msg)
}

func (ctl *SignalWSController) sendJSON(sid core.SessionID, msg protocol.Outbound) {
	if err := ctl.Hub.Send(sid, msg); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("sendJSON failed")
	}
}
