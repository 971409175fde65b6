// Package callroom relays WebRTC signaling messages between the participants of a mentoring call.
//
// A single goroutine owns every room; connections talk to it through commands.
package callroom

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/services/metrics"
)

// Envelope types
const (
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeChat      = "chat"
	TypeLeave     = "leave"
	TypeJoin      = "join"
	TypeError     = "error"
)

// Participant roles
const (
	RoleMentor = "mentor"
	RoleMentee = "mentee"
	RoleAdmin  = "admin"
)

const (
	DefaultMaxPeers = 8
	maxMessageSize  = 64 << 10
	commandTimeout  = 5 * time.Second
)

var (
	ErrRoomFull   = errors.New("the call is full")
	ErrHubStopped = errors.New("call hub stopped")
)

// relayed lists the envelope types a peer may send.
var relayed = map[string]bool{
	TypeOffer:     true,
	TypeAnswer:    true,
	TypeCandidate: true,
	TypeChat:      true,
	TypeLeave:     true,
}

type Envelope struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Participant struct {
	PeerID string `json:"peer_id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Roster is the payload of join and leave announcements.
type Roster struct {
	Peer         Participant   `json:"peer"`
	Participants []Participant `json:"participants"`
}

type Options struct {
	MaxPeers     int
	PingInterval time.Duration
	// PongWait is how long a silent peer is kept. Must be longer than PingInterval.
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (o *Options) setDefaults() {
	if o.MaxPeers <= 0 {
		o.MaxPeers = DefaultMaxPeers
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
}

type (
	peer struct {
		info   Participant
		conn   *websocket.Conn
		send   chan []byte
		reason string // close reason, set before send is closed
	}

	room struct {
		peers []*peer // in join order
	}

	joinCmd struct {
		roomID string
		peer   *peer
		reply  chan error
	}

	leaveCmd struct {
		roomID string
		peerID string
		reason string
	}

	relayCmd struct {
		roomID string
		env    Envelope
	}

	peersCmd struct {
		roomID string
		reply  chan []Participant
	}

	stopCmd struct{}
)

func (r *room) find(peerID string) (int, *peer) {
	for i, p := range r.peers {
		if p.info.PeerID == peerID {
			return i, p
		}
	}
	return -1, nil
}

func (r *room) participants() []Participant {
	list := make([]Participant, len(r.peers))
	for i, p := range r.peers {
		list[i] = p.info
	}
	return list
}

type Hub struct {
	clock  clockwork.Clock
	logger core.Logger
	opts   Options
	cmds   chan interface{}
	done   chan struct{}
	rooms  map[string]*room // owned by run
}

func NewHub(clock clockwork.Clock, logger core.Logger, opts Options) *Hub {
	opts.setDefaults()
	h := &Hub{
		clock:  clock,
		logger: logger,
		opts:   opts,
		cmds:   make(chan interface{}, 64),
		done:   make(chan struct{}),
		rooms:  make(map[string]*room),
	}
	go h.run()
	return h
}

func (h *Hub) submit(cmd interface{}) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.cmds <- cmd:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Serve adds conn to the room and relays its messages until the peer leaves, the connection
// breaks or ctx is done. p.PeerID is generated.
func (h *Hub) Serve(ctx context.Context, roomID string, conn *websocket.Conn, p Participant) error {
	p.PeerID = uuid.New().String()
	pr := &peer{info: p, conn: conn, send: make(chan []byte, h.opts.SendBuffer)}

	reply := make(chan error, 1)
	if err := h.submit(joinCmd{roomID: roomID, peer: pr, reply: reply}); err != nil {
		h.reject(conn, err)
		return err
	}
	timer := h.clock.NewTimer(commandTimeout)
	select {
	case err := <-reply:
		timer.Stop()
		if err != nil {
			h.reject(conn, err)
			return err
		}
	case <-h.done:
		h.reject(conn, ErrHubStopped)
		return ErrHubStopped
	case <-timer.Chan():
		h.reject(conn, ErrHubStopped)
		return errors.Errorf("join timed out after %v", commandTimeout)
	}

	go h.writePump(pr)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	reason := h.readPump(roomID, pr)
	_ = h.submit(leaveCmd{roomID: roomID, peerID: p.PeerID, reason: reason})
	return nil
}

// reject closes a connection that never joined a room.
func (h *Hub) reject(conn *websocket.Conn, err error) {
	if err == ErrRoomFull {
		metrics.CallPeersRejected.WithLabelValues("room_full").Inc()
	}
	_ = conn.SetWriteDeadline(h.clock.Now().Add(h.opts.WriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
	_ = conn.Close()
}

// readPump returns the reason the peer stopped reading.
func (h *Hub) readPump(roomID string, p *peer) string {
	conn := p.conn
	conn.SetReadLimit(maxMessageSize)
	extend := func() error { return conn.SetReadDeadline(h.clock.Now().Add(h.opts.PongWait)) }
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				metrics.CallPeersRejected.WithLabelValues("idle").Inc()
				return "idle"
			}
			return "disconnected"
		}
		_ = extend()

		var env Envelope
		if err = json.Unmarshal(data, &env); err != nil || !relayed[env.Type] {
			h.logger.Debug(fmt.Sprintf("call room %s: dropping invalid message from %s", roomID, p.info.PeerID))
			continue
		}
		if env.Type == TypeLeave {
			return "left"
		}
		env.From = p.info.PeerID
		if err = h.submit(relayCmd{roomID: roomID, env: env}); err != nil {
			return "stopped"
		}
	}
}

func (h *Hub) writePump(p *peer) {
	ticker := h.clock.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	defer func() { _ = p.conn.Close() }()

	for {
		select {
		case msg, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(h.clock.Now().Add(h.opts.WriteWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, p.reason))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.Chan():
			_ = p.conn.SetWriteDeadline(h.clock.Now().Add(h.opts.WriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Peers lists the participants connected to a room, in join order.
func (h *Hub) Peers(roomID string) []Participant {
	reply := make(chan []Participant, 1)
	if err := h.submit(peersCmd{roomID: roomID, reply: reply}); err != nil {
		return nil
	}
	select {
	case list := <-reply:
		return list
	case <-h.done:
		return nil
	}
}

// Stop disconnects every peer and stops the hub.
func (h *Hub) Stop() {
	if err := h.submit(stopCmd{}); err != nil {
		return
	}
	<-h.done
}

func (h *Hub) run() {
	defer close(h.done)
	for cmd := range h.cmds {
		switch c := cmd.(type) {
		case joinCmd:
			c.reply <- h.handleJoin(c)
		case leaveCmd:
			h.handleLeave(c.roomID, c.peerID, c.reason)
		case relayCmd:
			h.handleRelay(c)
		case peersCmd:
			var list []Participant
			if r, ok := h.rooms[c.roomID]; ok {
				list = r.participants()
			}
			c.reply <- list
		case stopCmd:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleJoin(c joinCmd) error {
	r, ok := h.rooms[c.roomID]
	if !ok {
		r = new(room)
		h.rooms[c.roomID] = r
	}
	if len(r.peers) >= h.opts.MaxPeers {
		return ErrRoomFull
	}
	r.peers = append(r.peers, c.peer)
	metrics.CallPeersCurrent.Inc()
	metrics.CallRoomsActive.Set(float64(len(h.rooms)))

	h.announce(c.roomID, r, nil, TypeJoin, c.peer.info)
	return nil
}

func (h *Hub) handleLeave(roomID, peerID, reason string) {
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	i, p := r.find(peerID)
	if p == nil {
		return
	}
	r.peers = append(r.peers[:i], r.peers[i+1:]...)
	p.reason = reason
	close(p.send)
	metrics.CallPeersCurrent.Dec()

	if len(r.peers) == 0 {
		delete(h.rooms, roomID)
		metrics.CallRoomsActive.Set(float64(len(h.rooms)))
		return
	}
	h.announce(roomID, r, p, TypeLeave, p.info)
}

func (h *Hub) handleRelay(c relayCmd) {
	r, ok := h.rooms[c.roomID]
	if !ok {
		return
	}
	if _, sender := r.find(c.env.From); sender == nil {
		return
	}
	msg, err := json.Marshal(c.env)
	if err != nil {
		h.logger.Error("encoding call envelope", err)
		return
	}
	metrics.CallMessagesRelayed.WithLabelValues(c.env.Type).Inc()

	var targets []*peer
	for _, p := range r.peers {
		if p.info.PeerID == c.env.From {
			continue
		}
		if c.env.To == "" || c.env.To == p.info.PeerID {
			targets = append(targets, p)
		}
	}
	h.deliver(c.roomID, targets, msg)
}

// announce sends a roster change to every peer of r except skip.
func (h *Hub) announce(roomID string, r *room, skip *peer, typ string, who Participant) {
	payload, err := json.Marshal(Roster{Peer: who, Participants: r.participants()})
	if err != nil {
		h.logger.Error("encoding call roster", err)
		return
	}
	msg, err := json.Marshal(Envelope{Type: typ, From: who.PeerID, Payload: payload})
	if err != nil {
		h.logger.Error("encoding call envelope", err)
		return
	}

	var targets []*peer
	for _, p := range r.peers {
		if p != skip {
			targets = append(targets, p)
		}
	}
	h.deliver(roomID, targets, msg)
}

// deliver queues msg for each target; peers whose buffer is full are evicted.
func (h *Hub) deliver(roomID string, targets []*peer, msg []byte) {
	var slow []*peer
	for _, p := range targets {
		select {
		case p.send <- msg:
		default:
			slow = append(slow, p)
		}
	}
	for _, p := range slow {
		metrics.CallPeersRejected.WithLabelValues("slow").Inc()
		h.logger.Warn(fmt.Sprintf("call room %s: evicting slow peer %s", roomID, p.info.PeerID))
		h.handleLeave(roomID, p.info.PeerID, "too slow")
	}
}

func (h *Hub) handleStop() {
	for id, r := range h.rooms {
		for _, p := range r.peers {
			p.reason = "server shutting down"
			close(p.send)
			metrics.CallPeersCurrent.Dec()
		}
		delete(h.rooms, id)
	}
	metrics.CallRoomsActive.Set(0)
}
