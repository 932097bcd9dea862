package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/bolasblack/multihack/internal/protocol"
)

const (
	writeWait         = 10 * time.Second
	pingPeriod        = 30 * time.Second
	defaultSendBuffer = 256
)

// RoomURL turns a relay hostname (http or https) into the websocket URL of a room.
func RoomURL(hostname, room, peerID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(hostname, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", hostname, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid hostname %q: unsupported scheme %q", hostname, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid hostname %q: missing host", hostname)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/rooms/" + url.PathEscape(room)
	u.RawQuery = url.Values{"peer": []string{peerID}}.Encode()
	return u.String(), nil
}

// WebsocketDialer joins rooms on a relay server over websocket.
type WebsocketDialer struct {
	Dialer     *websocket.Dialer // nil uses websocket.DefaultDialer
	SendBuffer int               // outgoing frames queued before Send fails
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, hostname, room, peerID string) (Binding, error) {
	target, err := RoomURL(hostname, room, peerID)
	if err != nil {
		return nil, err
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to join room %s: %w", room, err)
	}

	size := d.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	b := &wsBinding{
		handlerSet: newHandlerSet(),
		conn:       conn,
		room:       room,
		peerID:     peerID,
		send:       make(chan []byte, size),
		done:       make(chan struct{}),
	}
	go b.readPump()
	go b.writePump()
	return b, nil
}

type wsBinding struct {
	*handlerSet
	conn   *websocket.Conn
	room   string
	peerID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (b *wsBinding) Send(ctx context.Context, env protocol.Envelope) error {
	env.Room = b.room
	env.From = b.peerID
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", env.Type, err)
	}

	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	select {
	case b.send <- data:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *wsBinding) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = b.conn.Close()
	})
	return err
}

func (b *wsBinding) readPump() {
	defer func() { _ = b.Close() }()
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Warningf("room %s: connection lost: %v", b.room, err)
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			glog.Warningf("room %s: dropping undecodable frame: %v", b.room, err)
			continue
		}
		if env.From == b.peerID || !env.AddressedTo(b.peerID) {
			continue
		}
		if !b.dispatch(env) {
			glog.V(2).Infof("room %s: no handler for %s", b.room, env.Type)
		}
	}
}

func (b *wsBinding) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case data := <-b.send:
			_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				glog.Warningf("room %s: write failed: %v", b.room, err)
				_ = b.Close()
				return
			}
		case <-ticker.C:
			_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = b.Close()
				return
			}
		}
	}
}
