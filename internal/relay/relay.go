// Package relay implements the room server peers connect to. Every frame a
// peer sends is fanned out to the other peers of its room, or to the single
// peer named in the envelope's To field.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/bolasblack/multihack/internal/protocol"
)

const (
	// DefaultMaxMessageBytes bounds a single frame. A provideFile frame carries
	// a whole file, so this is also the largest file a peer can send.
	DefaultMaxMessageBytes = 32 << 20

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	peerSendBuffer = 256
)

// Backplane distributes frames between relay instances serving the same rooms.
type Backplane interface {
	Publish(ctx context.Context, room string, data []byte) error
	Subscribe(ctx context.Context, room string, deliver func(data []byte)) (unsubscribe func() error, err error)
}

// Options configures a Server.
type Options struct {
	MaxMessageBytes int64
	// Backplane is optional; without it frames only reach peers on this instance.
	Backplane Backplane
}

// Server is the websocket room relay.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	name        string
	peers       map[*peer]struct{}
	unsubscribe func() error
}

type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// NewServer creates a relay.
func NewServer(opts Options) *Server {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
	}
}

// Handler returns the HTTP handler. GET /rooms/{room}?peer=<id> joins a
// room; GET /rooms lists the rooms that have peers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms", s.listRooms)
	mux.HandleFunc("GET /rooms/{room}", s.serveRoom)
	return mux
}

func (s *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.RoomNames()); err != nil {
		glog.Warningf("relay: failed to write room list: %v", err)
	}
}

// Rooms returns the number of connected peers per room.
func (s *Server) Rooms() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.rooms))
	for name, r := range s.rooms {
		out[name] = len(r.peers)
	}
	return out
}

// RoomNames returns the sorted names of rooms with at least one peer.
func (s *Server) RoomNames() []string {
	rooms := s.Rooms()
	names := make([]string, 0, len(rooms))
	for name := range rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) serveRoom(w http.ResponseWriter, r *http.Request) {
	roomName := r.PathValue("room")
	peerID := r.URL.Query().Get("peer")
	if roomName == "" || peerID == "" {
		http.Error(w, "room and peer are required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("relay: upgrade failed: %v", err)
		return
	}
	p := &peer{
		id:   peerID,
		conn: conn,
		send: make(chan []byte, peerSendBuffer),
		done: make(chan struct{}),
	}
	if err := s.join(roomName, p); err != nil {
		glog.Warningf("relay: peer %s could not join %s: %v", peerID, roomName, err)
		p.close()
		return
	}
	glog.Infof("relay: peer %s joined %s", peerID, roomName)

	go s.writePump(p)
	s.readPump(roomName, p)

	s.leave(roomName, p)
	glog.Infof("relay: peer %s left %s", peerID, roomName)
}

func (s *Server) join(name string, p *peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[name]
	if !ok {
		r = &room{name: name, peers: make(map[*peer]struct{})}
		if s.opts.Backplane != nil {
			unsubscribe, err := s.opts.Backplane.Subscribe(context.Background(), name, func(data []byte) {
				s.deliver(name, data)
			})
			if err != nil {
				return err
			}
			r.unsubscribe = unsubscribe
		}
		s.rooms[name] = r
	}
	r.peers[p] = struct{}{}
	return nil
}

func (s *Server) leave(name string, p *peer) {
	p.close()

	s.mu.Lock()
	r, ok := s.rooms[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(r.peers, p)
	var unsubscribe func() error
	if len(r.peers) == 0 {
		delete(s.rooms, name)
		unsubscribe = r.unsubscribe
	}
	s.mu.Unlock()

	if unsubscribe != nil {
		if err := unsubscribe(); err != nil {
			glog.Warningf("relay: unsubscribe %s: %v", name, err)
		}
	}
}

func (s *Server) readPump(roomName string, p *peer) {
	p.conn.SetReadLimit(s.opts.MaxMessageBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPingHandler(func(appData string) error {
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return p.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			glog.Warningf("relay: dropping undecodable frame from %s: %v", p.id, err)
			continue
		}
		// Peers cannot speak for someone else or another room.
		env.From = p.id
		env.Room = roomName
		out, err := json.Marshal(env)
		if err != nil {
			continue
		}

		if s.opts.Backplane != nil {
			if err := s.opts.Backplane.Publish(context.Background(), roomName, out); err != nil {
				glog.Warningf("relay: publish to %s failed: %v", roomName, err)
			}
			continue
		}
		s.fanout(roomName, env, out)
	}
}

// deliver handles a frame arriving from the backplane.
func (s *Server) deliver(roomName string, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		glog.Warningf("relay: dropping undecodable backplane frame: %v", err)
		return
	}
	s.fanout(roomName, env, data)
}

func (s *Server) fanout(roomName string, env protocol.Envelope, data []byte) {
	s.mu.Lock()
	r, ok := s.rooms[roomName]
	var targets []*peer
	if ok {
		for p := range r.peers {
			if p.id == env.From || !env.AddressedTo(p.id) {
				continue
			}
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()

	for _, p := range targets {
		select {
		case p.send <- data:
		case <-p.done:
		default:
			glog.Warningf("relay: peer %s in %s is too slow, disconnecting", p.id, roomName)
			p.close()
		}
	}
}

func (s *Server) writePump(p *peer) {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.close()
				return
			}
		}
	}
}
