// Package gameserver hosts one authoritative match: it owns the world
// simulation, the client sessions on the game port and the control
// dialogue with the matchmaking coordinator.
package gameserver

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ironrift/server/internal/config"
	"github.com/ironrift/server/internal/metrics"
	"github.com/ironrift/server/internal/protocol"
	"github.com/ironrift/server/internal/udp"
	"github.com/ironrift/server/internal/world"
)

// Server is a dedicated game server. All mutable state lives on the
// single Serve goroutine, по образцу остальных сервисов.
type Server struct {
	cfg      config.GameServer
	serverID uint64

	coordAddr *net.UDPAddr

	params   world.Params
	world    *world.World
	sessions *SessionManager

	// Current lobby assignment, zero lobbyID means free play.
	lobbyID         uint64
	expectedPlayers int
	roster          map[uint64]uint8 // accountID → team slot
	away            map[uint64]bool  // roster accounts gone mid-match

	accumulator float64
	uptime      float64
	heartbeat   float64
	emptySec    float64 // seconds without clients while a lobby is assigned

	w *protocol.Writer

	ep      *udp.Endpoint
	coordEP *udp.Endpoint
	mu      sync.Mutex
}

// ServerOption настраивает сервер при создании.
type ServerOption func(*Server)

// WithWorldParams overrides the simulation tuning, tests use shrunk arenas
// and fast waves.
func WithWorldParams(p world.Params) ServerOption {
	return func(s *Server) {
		s.params = p
	}
}

// NewServer creates a game server. A zero ServerID in the config is
// replaced with a random identity.
func NewServer(cfg config.GameServer, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		serverID: cfg.ServerID,
		params:   world.DefaultParams(),
		sessions: NewSessionManager(cfg.Capacity),
		w:        protocol.NewWriter(protocol.MaxDatagram),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.serverID == 0 {
		s.serverID = randomServerID()
	}
	s.world = world.New(s.params)
	return s
}

// ServerID returns the identity announced to the coordinator.
func (s *Server) ServerID() uint64 { return s.serverID }

// Addr возвращает адрес игрового endpoint'а, nil до запуска.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ep == nil {
		return nil
	}
	return s.ep.LocalAddr()
}

// Close закрывает оба endpoint'а и останавливает сервер.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	if s.ep != nil {
		first = s.ep.Close()
	}
	if s.coordEP != nil {
		if err := s.coordEP.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Run binds the game port plus an ephemeral control socket towards the
// coordinator and starts the fixed-timestep loop.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ep, err := udp.Listen(addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	coordEP, err := udp.Listen("0.0.0.0:0")
	if err != nil {
		ep.Close()
		return fmt.Errorf("binding coordinator socket: %w", err)
	}

	return s.Serve(ctx, ep, coordEP)
}

// Serve принимает готовые endpoint'ы и запускает игровой цикл.
// Используется для тестирования с произвольными портами.
func (s *Server) Serve(ctx context.Context, ep, coordEP *udp.Endpoint) error {
	coordAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.cfg.CoordinatorHost, s.cfg.CoordinatorPort))
	if err != nil {
		return fmt.Errorf("resolving coordinator address: %w", err)
	}

	s.mu.Lock()
	s.ep = ep
	s.coordEP = coordEP
	s.coordAddr = coordAddr
	s.mu.Unlock()

	s.sendRegister()
	slog.Info("game server started",
		"server", s.serverID,
		"address", ep.LocalAddr(),
		"coordinator", coordAddr,
		"tick_rate", s.cfg.TickRate)

	tickInterval := 1.0 / float64(s.cfg.TickRate)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			if s.lobbyID != 0 {
				s.endMatch("shutdown")
			}
			return s.Close()
		case d, ok := <-ep.Packets():
			if !ok {
				return nil
			}
			s.handleGamePacket(d)
			ep.Release(d)
		case d, ok := <-coordEP.Packets():
			if !ok {
				return nil
			}
			s.handleControlPacket(d)
			coordEP.Release(d)
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			s.tick(dt, tickInterval)
		}
	}
}

// tick burns down the accumulator one simulation step at a time, then
// services the slower heartbeat and match lifecycle timers.
func (s *Server) tick(dt, tickInterval float64) {
	s.uptime += dt
	s.accumulator += dt

	for s.accumulator >= tickInterval {
		s.accumulator -= tickInterval
		start := time.Now()
		s.world.Advance(tickInterval)
		s.evictSilent(tickInterval)
		s.broadcastSnapshot()
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}

	s.heartbeat += dt
	if s.heartbeat >= float64(s.cfg.HeartbeatInterval) {
		s.heartbeat = 0
		s.sendHeartbeat()
	}

	s.checkMatchEnd(dt)
	metrics.ClientsOnline.Set(float64(s.sessions.Count()))
	metrics.DatagramsDropped.WithLabelValues("gameserver").Set(float64(s.ep.Dropped()))
}

// evictSilent drops clients that stopped sending inputs.
func (s *Server) evictSilent(tickInterval float64) {
	for _, sess := range s.sessions.Tick(tickInterval, float64(s.cfg.InputTimeout)) {
		s.onSessionGone(sess, "input timeout")
	}
}

// onSessionGone handles the world and coordinator side of a departed
// session. The session is already removed from the manager.
func (s *Server) onSessionGone(sess *ClientSession, cause string) {
	s.world.RemoveClient(sess.ID)

	if s.lobbyID != 0 {
		if _, onRoster := s.roster[sess.AccountID]; onRoster {
			s.away[sess.AccountID] = true
			s.reportDisconnected(sess)
		}
	}

	slog.Info("client disconnected",
		"client", sess.ID,
		"account", sess.AccountID,
		"cause", cause,
		"online", s.sessions.Count())
}

// checkMatchEnd finishes the match when the game clock runs out or when
// everyone stayed away longer than the abandon grace.
func (s *Server) checkMatchEnd(dt float64) {
	if s.lobbyID == 0 {
		return
	}

	if s.sessions.Count() == 0 {
		s.emptySec += dt
	} else {
		s.emptySec = 0
	}

	switch {
	case s.world.GameTime() >= float64(s.cfg.MatchDuration):
		s.endMatch("time limit")
	case s.emptySec >= float64(s.cfg.AbandonedGrace):
		s.endMatch("abandoned")
	}
}

// endMatch reports GameEnded and resets the server for the next
// assignment. Client ids keep growing across matches.
func (s *Server) endMatch(cause string) {
	winning := uint8(0)
	if s.world.TeamVitality(1) > s.world.TeamVitality(0) {
		winning = 1
	}
	duration := uint32(s.world.GameTime())

	s.sendControl(protocol.MMGameEnded, s.lobbyID, protocol.GameEnded{
		ServerID:    s.serverID,
		LobbyID:     s.lobbyID,
		WinningTeam: winning,
		DurationSec: duration,
	})
	slog.Info("match ended",
		"lobby", s.lobbyID,
		"cause", cause,
		"winning_team", winning,
		"duration_sec", duration)

	for _, sess := range s.sessions.All() {
		s.sessions.Remove(sess.ID)
	}
	s.lobbyID = 0
	s.expectedPlayers = 0
	s.roster = nil
	s.away = nil
	s.emptySec = 0
	s.world = world.New(s.params)
}

func (s *Server) handleControlPacket(d udp.Datagram) {
	hdr, payload, err := protocol.ParseMM(d.Data)
	if err != nil {
		slog.Debug("dropping malformed control datagram", "from", d.Addr, "error", err)
		return
	}

	switch hdr.Type {
	case protocol.MMAssignLobby:
		s.handleAssignLobby(payload)
	case protocol.MMError:
		var msg protocol.ErrorMessage
		if err := msg.Parse(payload); err == nil {
			slog.Warn("coordinator error", "message", msg.Message)
		}
	default:
		slog.Debug("ignoring unknown control type", "type", uint16(hdr.Type), "from", d.Addr)
	}
}

// handleAssignLobby accepts a match assignment: old sessions are dropped
// and a fresh world is built for the roster.
func (s *Server) handleAssignLobby(payload []byte) {
	var msg protocol.AssignLobby
	if err := msg.Parse(payload); err != nil {
		slog.Debug("malformed lobby assignment", "error", err)
		return
	}
	if msg.ServerID != s.serverID {
		slog.Warn("lobby assignment for another server", "got", msg.ServerID, "self", s.serverID)
		return
	}
	if msg.LobbyID == s.lobbyID && s.lobbyID != 0 {
		// Повторная доставка того же назначения.
		return
	}

	for _, sess := range s.sessions.All() {
		s.sessions.Remove(sess.ID)
	}
	s.world = world.New(s.params)

	s.lobbyID = msg.LobbyID
	s.expectedPlayers = int(msg.ExpectedPlayers)
	s.roster = make(map[uint64]uint8, len(msg.Roster))
	for _, entry := range msg.Roster {
		s.roster[entry.AccountID] = entry.TeamSlot
	}
	s.away = make(map[uint64]bool)
	s.emptySec = 0

	slog.Info("lobby assigned", "lobby", msg.LobbyID, "expected_players", msg.ExpectedPlayers)
}

// broadcastSnapshot encodes the tick snapshot once and fans it out, with
// the per-client input ack patched into the shared buffer before each send.
func (s *Server) broadcastSnapshot() {
	if s.sessions.Count() == 0 {
		return
	}

	snap := s.world.Snapshot()
	snap.ServerTime = float64(time.Now().UnixNano()) / 1e9

	s.w.Reset()
	pkt := protocol.BuildGame(s.w, protocol.GameWorldSnapshot, snap.Tick, snap)

	for _, sess := range s.sessions.All() {
		if err := protocol.PatchSnapshotAck(pkt, sess.LastInputSeq); err != nil {
			slog.Error("snapshot patch failed", "error", err)
			return
		}
		if err := s.ep.Send(sess.Addr, pkt); err != nil {
			slog.Warn("failed to send snapshot", "client", sess.ID, "error", err)
			continue
		}
		metrics.SnapshotsSent.Inc()
	}
}

// sendGame builds and fires one game packet. Send errors are логируются и
// не прерывают обработку.
func (s *Server) sendGame(addr *net.UDPAddr, typ protocol.GameMsg, seq uint32, body protocol.Body) {
	s.w.Reset()
	pkt := protocol.BuildGame(s.w, typ, seq, body)
	if err := s.ep.Send(addr, pkt); err != nil {
		slog.Warn("failed to send", "type", uint8(typ), "to", addr, "error", err)
	}
}

func (s *Server) sendControl(typ protocol.MMMsg, lobbyID uint64, body protocol.Body) {
	s.w.Reset()
	pkt := protocol.BuildMM(s.w, typ, 0, lobbyID, body)
	if err := s.coordEP.Send(s.coordAddr, pkt); err != nil {
		slog.Warn("failed to send control message", "type", uint16(typ), "error", err)
	}
}

func (s *Server) sendRegister() {
	s.sendControl(protocol.MMServerRegister, 0, protocol.ServerRegister{
		ServerID: s.serverID,
		Addr:     s.cfg.PublicHost,
		GamePort: uint16(s.ep.Port()),
		Capacity: uint16(s.cfg.Capacity),
	})
}

func (s *Server) sendHeartbeat() {
	s.sendControl(protocol.MMServerHeartbeat, 0, protocol.ServerHeartbeat{
		ServerID:       s.serverID,
		CurrentPlayers: uint16(s.sessions.Count()),
		Capacity:       uint16(s.cfg.Capacity),
		UptimeSec:      uint32(s.uptime),
	})
}

func (s *Server) reportDisconnected(sess *ClientSession) {
	s.sendControl(protocol.MMPlayerDisconnected, s.lobbyID, protocol.PlayerDisconnected{
		ServerID:  s.serverID,
		LobbyID:   s.lobbyID,
		AccountID: sess.AccountID,
		TeamSlot:  sess.TeamSlot,
		HeroName:  sess.HeroName,
	})
}

func (s *Server) reportReconnected(accountID uint64) {
	s.sendControl(protocol.MMPlayerReconnected, s.lobbyID, protocol.PlayerReconnected{
		ServerID:  s.serverID,
		LobbyID:   s.lobbyID,
		AccountID: accountID,
	})
}

func randomServerID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	id := binary.LittleEndian.Uint64(b[:])
	if id == 0 {
		id = 1
	}
	return id
}
