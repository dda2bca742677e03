package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

// keepAlive arms the read deadline and extends it on every pong.
func (ctl *SignalWSController) keepAlive(c *WsSignalConn) {
	if ctl.Opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	}
	if ctl.Opts.PongWait <= 0 {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	})
}

func (ctl *SignalWSController) ping(c *WsSignalConn) error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Opts.WriteWait))
}
