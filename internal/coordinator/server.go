package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ironrift/server/internal/config"
	"github.com/ironrift/server/internal/metrics"
	"github.com/ironrift/server/internal/protocol"
	"github.com/ironrift/server/internal/udp"
)

// Server is the matchmaking coordinator on port 27016. It owns the queue,
// the lobby accept protocol, the dedicated server registry and the active
// game directory, and it validates session tokens against the auth service
// over a second endpoint. All state lives on the single Serve goroutine.
type Server struct {
	cfg      config.Coordinator
	authAddr *net.UDPAddr

	registry *ServerRegistry
	games    *ActiveGameDirectory

	queue    []*queuedPlayer
	pendings []*pendingValidation
	lobbies  map[uint64]*Lobby

	nextRequestID uint32
	statusTimer   float64

	w *protocol.Writer

	ep     *udp.Endpoint
	authEP *udp.Endpoint
	mu     sync.Mutex
}

// NewServer creates a coordinator.
func NewServer(cfg config.Coordinator) *Server {
	return &Server{
		cfg:      cfg,
		registry: NewServerRegistry(float64(cfg.HeartbeatTTL)),
		games:    NewActiveGameDirectory(),
		lobbies:  make(map[uint64]*Lobby),
		w:        protocol.NewWriter(512),
	}
}

// Addr возвращает адрес, на котором слушает координатор.
// Возвращает nil если сервер ещё не запущен.
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
	if s.authEP != nil {
		if err := s.authEP.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Run binds the coordinator port plus an ephemeral port towards the auth
// service and starts the event loop.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ep, err := udp.Listen(addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	authEP, err := udp.Listen("0.0.0.0:0")
	if err != nil {
		ep.Close()
		return fmt.Errorf("binding auth socket: %w", err)
	}

	return s.Serve(ctx, ep, authEP)
}

// Serve принимает готовые endpoint'ы и запускает event loop.
// Используется для тестирования с произвольными портами.
func (s *Server) Serve(ctx context.Context, ep, authEP *udp.Endpoint) error {
	authAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.cfg.AuthHost, s.cfg.AuthPort))
	if err != nil {
		return fmt.Errorf("resolving auth service address: %w", err)
	}

	s.mu.Lock()
	s.ep = ep
	s.authEP = authEP
	s.authAddr = authAddr
	s.mu.Unlock()

	slog.Info("coordinator started", "address", ep.LocalAddr(), "auth", authAddr)

	// Таймеры матчмейкинга живут на миллисекундном тике.
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return s.Close()
		case d, ok := <-ep.Packets():
			if !ok {
				return nil
			}
			s.handlePacket(d)
			ep.Release(d)
		case d, ok := <-authEP.Packets():
			if !ok {
				return nil
			}
			s.handleAuthReply(d)
			authEP.Release(d)
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			s.tick(dt)
		}
	}
}

func (s *Server) handlePacket(d udp.Datagram) {
	hdr, payload, err := protocol.ParseMM(d.Data)
	if err != nil {
		slog.Debug("dropping malformed datagram", "from", d.Addr, "error", err)
		return
	}

	switch hdr.Type {
	case protocol.MMQueueRequest:
		s.handleQueueRequest(hdr, payload, d.Addr)
	case protocol.MMCancelQueue:
		s.handleCancelQueue(hdr)
	case protocol.MMMatchAccept:
		s.handleMatchAccept(hdr, d.Addr)
	case protocol.MMMatchDecline:
		s.handleMatchDecline(hdr, d.Addr)
	case protocol.MMCheckActiveGame:
		s.handleCheckActiveGame(hdr, d.Addr)
	case protocol.MMReconnectRequest:
		s.handleReconnectRequest(hdr, payload, d.Addr)
	case protocol.MMServerRegister:
		s.handleServerRegister(payload, d.Addr)
	case protocol.MMServerHeartbeat:
		s.handleServerHeartbeat(payload, d.Addr)
	case protocol.MMPlayerDisconnected:
		s.handlePlayerDisconnected(payload)
	case protocol.MMPlayerReconnected:
		s.handlePlayerReconnected(payload)
	case protocol.MMGameEnded:
		s.handleGameEnded(payload)
	default:
		slog.Debug("ignoring unknown matchmaking type", "type", uint16(hdr.Type), "from", d.Addr)
	}
}

// send builds and fires one matchmaking packet. Send errors are логируются
// и не прерывают обработку.
func (s *Server) send(addr *net.UDPAddr, typ protocol.MMMsg, playerID, lobbyID uint64, body protocol.Body) {
	s.w.Reset()
	pkt := protocol.BuildMM(s.w, typ, playerID, lobbyID, body)
	if err := s.ep.Send(addr, pkt); err != nil {
		slog.Warn("failed to send", "type", uint16(typ), "to", addr, "error", err)
	}
}

func (s *Server) handleQueueRequest(hdr protocol.MMHeader, payload []byte, from *net.UDPAddr) {
	var req protocol.QueueRequest
	if err := req.Parse(payload); err != nil {
		slog.Debug("malformed queue request", "from", from, "error", err)
		return
	}

	playerID := hdr.PlayerID
	if playerID == 0 {
		// Нулевой id зарезервирован (DeclinedBy=0 означает таймаут).
		return
	}

	if req.SessionToken == "" {
		s.send(from, protocol.MMQueueRejected, playerID, 0, protocol.QueueRejected{
			Reason:     "Authentication required",
			AuthFailed: true,
		})
		return
	}

	// Повторный запрос уже известного игрока игнорируется.
	if s.isQueued(playerID) || s.isPending(playerID) || s.playerLobby(playerID) != nil {
		return
	}

	s.nextRequestID++
	p := &pendingValidation{
		playerID:  playerID,
		requestID: s.nextRequestID,
		mode:      req.Mode,
		region:    req.Region,
		addr:      from,
	}
	s.pendings = append(s.pendings, p)
	s.sendValidation(p.requestID, req.SessionToken)

	slog.Debug("queue request pending validation", "player", playerID, "request_id", p.requestID)
}

// sendValidation asks the auth service to validate a session token.
func (s *Server) sendValidation(requestID uint32, token string) {
	s.w.Reset()
	pkt := protocol.BuildAuth(s.w, protocol.AuthValidateTokenRequest, 0, requestID, protocol.ValidateTokenRequest{
		SessionToken: token,
	})
	if err := s.authEP.Send(s.authAddr, pkt); err != nil {
		slog.Warn("failed to send validation request", "request_id", requestID, "error", err)
	}
}

// handleAuthReply correlates a validation response by request id and admits
// or rejects the waiting player.
func (s *Server) handleAuthReply(d udp.Datagram) {
	hdr, payload, err := protocol.ParseAuth(d.Data)
	if err != nil {
		slog.Debug("dropping malformed auth reply", "from", d.Addr, "error", err)
		return
	}
	if hdr.Type != protocol.AuthValidateTokenResponse {
		return
	}

	var resp protocol.ValidateTokenResponse
	if err := resp.Parse(payload); err != nil {
		slog.Debug("malformed validation response", "error", err)
		return
	}

	p := s.takePending(hdr.RequestID)
	if p == nil {
		// Ответ пришёл после таймаута, игрок уже получил отказ.
		return
	}

	reject := func(reason string, banned bool) {
		slog.Info("queue admission rejected", "player", p.playerID, "reason", reason)
		s.send(p.addr, protocol.MMQueueRejected, p.playerID, 0, protocol.QueueRejected{
			Reason:     reason,
			AuthFailed: true,
			IsBanned:   banned,
		})
	}

	switch {
	case resp.Result == protocol.AuthSuccess && resp.IsBanned:
		reject("Account is banned", true)
	case resp.Result == protocol.AuthSuccess:
		if s.queuedByAccount(resp.AccountID) != nil {
			reject("Account already queued", false)
			return
		}
		if rec := s.games.Lookup(resp.AccountID); rec != nil {
			reject("Account has an active game", false)
			return
		}
		s.enqueue(&queuedPlayer{
			playerID:  p.playerID,
			accountID: resp.AccountID,
			mode:      p.mode,
			region:    p.region,
			addr:      p.addr,
		})
		slog.Info("player admitted to queue", "player", p.playerID, "account", resp.AccountID, "depth", len(s.queue))
		s.tryFormLobbies()
	case resp.Result == protocol.AuthTokenExpired:
		reject("Session expired", false)
	default:
		reject("Invalid session", false)
	}
}

func (s *Server) handleCancelQueue(hdr protocol.MMHeader) {
	removed := s.removeQueued(hdr.PlayerID)
	removed = s.removePending(hdr.PlayerID) || removed
	if removed {
		slog.Info("player left the queue", "player", hdr.PlayerID, "depth", len(s.queue))
	}
}

func (s *Server) handleMatchAccept(hdr protocol.MMHeader, from *net.UDPAddr) {
	l := s.lobbies[hdr.LobbyID]
	if l == nil {
		s.send(from, protocol.MMError, hdr.PlayerID, hdr.LobbyID, protocol.ErrorMessage{Message: "Lobby no longer exists"})
		return
	}
	if !l.Has(hdr.PlayerID) {
		return
	}
	if l.Accepted[hdr.PlayerID] {
		// Повторный accept, no-op.
		return
	}

	l.Accepted[hdr.PlayerID] = true
	// Клиент мог сменить адрес между запросом очереди и accept'ом.
	l.AddrByPlayer[hdr.PlayerID] = from

	slog.Info("match accepted", "lobby", l.ID, "player", hdr.PlayerID, "accepted", l.AcceptedCount(), "required", len(l.Players))
	s.broadcastAcceptStatus(l)

	if l.AllAccepted() {
		s.startMatch(l)
	}
}

func (s *Server) handleMatchDecline(hdr protocol.MMHeader, from *net.UDPAddr) {
	l := s.lobbies[hdr.LobbyID]
	if l == nil {
		s.send(from, protocol.MMError, hdr.PlayerID, hdr.LobbyID, protocol.ErrorMessage{Message: "Lobby no longer exists"})
		return
	}
	if !l.Has(hdr.PlayerID) {
		return
	}

	slog.Info("match declined", "lobby", l.ID, "player", hdr.PlayerID)
	s.cancelLobby(l, "Declined by player", hdr.PlayerID, true, "declined")
}

// startMatch reserves a server, assigns the lobby to it, records active
// games and points every player at the server.
func (s *Server) startMatch(l *Lobby) {
	entry := s.registry.Pick()
	if entry == nil {
		slog.Warn("no servers available for lobby", "lobby", l.ID)
		s.cancelLobby(l, "No servers available", 0, false, "no_servers")
		return
	}

	roster := make([]protocol.RosterEntry, 0, len(l.Players))
	for i, pid := range l.Players {
		roster = append(roster, protocol.RosterEntry{
			AccountID: l.AccountByPlayer[pid],
			TeamSlot:  uint8(i),
		})
	}
	s.send(entry.ControlAddr, protocol.MMAssignLobby, 0, l.ID, protocol.AssignLobby{
		ServerID:        entry.ID,
		LobbyID:         l.ID,
		ExpectedPlayers: uint8(len(l.Players)),
		Roster:          roster,
	})

	ready := protocol.MatchReady{ServerAddr: entry.Addr, ServerPort: entry.GamePort}
	for i, pid := range l.Players {
		s.games.StartGame(l.AccountByPlayer[pid], l.ID, entry.ID, entry.Addr, entry.GamePort, uint8(i))
		s.send(l.AddrByPlayer[pid], protocol.MMMatchReady, pid, l.ID, ready)
	}

	delete(s.lobbies, l.ID)
	metrics.MatchesStarted.Inc()
	slog.Info("match started", "lobby", l.ID, "server", entry.ID, "players", len(l.Players))
}

// cancelLobby dissolves a lobby. Players who accepted return to the back
// of the queue when allowRequeue is set, except the decliner.
func (s *Server) cancelLobby(l *Lobby, reason string, declinedBy uint64, allowRequeue bool, cause string) {
	delete(s.lobbies, l.ID)

	for _, pid := range l.Players {
		requeue := allowRequeue && l.Accepted[pid] && pid != declinedBy
		s.send(l.AddrByPlayer[pid], protocol.MMMatchCancelled, pid, l.ID, protocol.MatchCancelled{
			Reason:        reason,
			DeclinedBy:    declinedBy,
			ShouldRequeue: requeue,
		})
		if requeue {
			s.enqueue(&queuedPlayer{
				playerID:  pid,
				accountID: l.AccountByPlayer[pid],
				mode:      l.Mode,
				region:    l.Region,
				addr:      l.AddrByPlayer[pid],
			})
		}
	}

	metrics.MatchesCancelled.WithLabelValues(cause).Inc()
	slog.Info("lobby cancelled", "lobby", l.ID, "reason", reason)
	s.tryFormLobbies()
}

func (s *Server) handleCheckActiveGame(hdr protocol.MMHeader, from *net.UDPAddr) {
	accountID := hdr.PlayerID
	rec := s.games.Lookup(accountID)
	if rec == nil || !rec.IsDisconnected {
		s.send(from, protocol.MMActiveGameInfo, hdr.PlayerID, 0, protocol.ActiveGameInfo{})
		return
	}

	disconnectSec := s.games.DisconnectSec(rec)
	s.send(from, protocol.MMActiveGameInfo, hdr.PlayerID, rec.LobbyID, protocol.ActiveGameInfo{
		HasGame:       true,
		LobbyID:       rec.LobbyID,
		ServerAddr:    rec.ServerAddr,
		ServerPort:    rec.ServerPort,
		TeamSlot:      rec.TeamSlot,
		HeroName:      rec.HeroName,
		GameTimeSec:   uint32(s.games.GameTime(rec)),
		DisconnectSec: uint32(disconnectSec),
		CanReconnect:  disconnectSec < float64(s.cfg.ReconnectGrace),
	})
}

func (s *Server) handleReconnectRequest(hdr protocol.MMHeader, payload []byte, from *net.UDPAddr) {
	var req protocol.ReconnectRequest
	if err := req.Parse(payload); err != nil {
		slog.Debug("malformed reconnect request", "from", from, "error", err)
		return
	}

	accountID := hdr.PlayerID
	deny := func(reason string) {
		s.send(from, protocol.MMReconnectResponse, hdr.PlayerID, req.LobbyID, protocol.ReconnectResponse{Reason: reason})
	}

	rec := s.games.Lookup(accountID)
	if rec == nil {
		deny("No active game")
		return
	}
	if rec.LobbyID != req.LobbyID {
		deny("Lobby mismatch")
		return
	}
	if rec.IsDisconnected && s.games.DisconnectSec(rec) >= float64(s.cfg.ReconnectGrace) {
		deny("Reconnect window expired")
		return
	}

	slog.Info("reconnect approved", "account", accountID, "lobby", rec.LobbyID, "server", rec.ServerID)
	s.send(from, protocol.MMReconnectResponse, hdr.PlayerID, rec.LobbyID, protocol.ReconnectResponse{
		Approved:   true,
		ServerAddr: rec.ServerAddr,
		ServerPort: rec.ServerPort,
		TeamSlot:   rec.TeamSlot,
		HeroName:   rec.HeroName,
	})
}

func (s *Server) handleServerRegister(payload []byte, from *net.UDPAddr) {
	var reg protocol.ServerRegister
	if err := reg.Parse(payload); err != nil {
		slog.Debug("malformed server register", "from", from, "error", err)
		return
	}
	if reg.ServerID == 0 {
		return
	}
	if reg.Addr == "" {
		// Сервер не объявил публичный адрес, берём адрес источника.
		reg.Addr = from.IP.String()
	}

	s.registry.Register(reg, from)
	slog.Info("game server registered", "server", reg.ServerID, "addr", reg.Addr, "port", reg.GamePort, "capacity", reg.Capacity)
}

func (s *Server) handleServerHeartbeat(payload []byte, from *net.UDPAddr) {
	var hb protocol.ServerHeartbeat
	if err := hb.Parse(payload); err != nil {
		slog.Debug("malformed heartbeat", "from", from, "error", err)
		return
	}
	if !s.registry.Heartbeat(hb) {
		slog.Debug("heartbeat from unregistered server", "server", hb.ServerID, "from", from)
	}
}

func (s *Server) handlePlayerDisconnected(payload []byte) {
	var msg protocol.PlayerDisconnected
	if err := msg.Parse(payload); err != nil {
		slog.Debug("malformed player disconnect report", "error", err)
		return
	}

	if !s.games.MarkDisconnected(msg.AccountID, msg.LobbyID, msg.TeamSlot, msg.HeroName) {
		// Координатор мог перезапуститься, восстанавливаем запись.
		entry := s.registry.Get(msg.ServerID)
		if entry == nil {
			slog.Warn("disconnect report for unknown server", "server", msg.ServerID, "account", msg.AccountID)
			return
		}
		s.games.StartGame(msg.AccountID, msg.LobbyID, msg.ServerID, entry.Addr, entry.GamePort, msg.TeamSlot)
		s.games.MarkDisconnected(msg.AccountID, msg.LobbyID, msg.TeamSlot, msg.HeroName)
	}

	slog.Info("player disconnected from game", "account", msg.AccountID, "lobby", msg.LobbyID, "hero", msg.HeroName)
}

func (s *Server) handlePlayerReconnected(payload []byte) {
	var msg protocol.PlayerReconnected
	if err := msg.Parse(payload); err != nil {
		slog.Debug("malformed player reconnect report", "error", err)
		return
	}
	if s.games.MarkReconnected(msg.AccountID, msg.LobbyID) {
		slog.Info("player reconnected to game", "account", msg.AccountID, "lobby", msg.LobbyID)
	}
}

func (s *Server) handleGameEnded(payload []byte) {
	var msg protocol.GameEnded
	if err := msg.Parse(payload); err != nil {
		slog.Debug("malformed game end report", "error", err)
		return
	}

	removed := s.games.EndGame(msg.LobbyID)
	s.registry.Release(msg.ServerID)
	slog.Info("game ended", "lobby", msg.LobbyID, "server", msg.ServerID, "winning_team", msg.WinningTeam, "duration_sec", msg.DurationSec, "records_cleared", removed)
}

// tick advances every matchmaking timer by the elapsed wall time.
func (s *Server) tick(dt float64) {
	s.tickPendings(dt)
	s.tickQueue(dt)
	s.tickLobbies(dt)
	for _, id := range s.registry.Tick(dt) {
		slog.Info("game server evicted, heartbeat timeout", "server", id)
	}
	s.games.Tick(dt)
	s.updateGauges()
}

func (s *Server) tickPendings(dt float64) {
	timeout := float64(s.cfg.ValidationTimeout)
	kept := s.pendings[:0]
	for _, p := range s.pendings {
		p.ageSec += dt
		if p.ageSec < timeout {
			kept = append(kept, p)
			continue
		}
		slog.Warn("token validation timed out", "player", p.playerID, "request_id", p.requestID)
		s.send(p.addr, protocol.MMQueueRejected, p.playerID, 0, protocol.QueueRejected{
			Reason:     "Auth timeout",
			AuthFailed: true,
		})
	}
	s.pendings = kept
}

func (s *Server) tickQueue(dt float64) {
	for _, q := range s.queue {
		q.searchSec += dt
	}

	s.statusTimer += dt
	if s.statusTimer < float64(s.cfg.QueueStatusEvery) {
		return
	}
	s.statusTimer = 0
	for i, q := range s.queue {
		s.sendQueueStatus(q, i+1)
	}
}

func (s *Server) tickLobbies(dt float64) {
	timeout := float64(s.cfg.AcceptTimeout)
	for _, l := range s.lobbies {
		l.AgeSec += dt
		if l.AgeSec >= timeout {
			slog.Info("lobby accept window expired", "lobby", l.ID, "accepted", l.AcceptedCount(), "required", len(l.Players))
			s.cancelLobby(l, "Accept timeout", 0, true, "timeout")
		}
	}
}

func (s *Server) updateGauges() {
	metrics.QueueDepth.Set(float64(len(s.queue)))
	metrics.ValidationsPending.Set(float64(len(s.pendings)))
	metrics.LobbiesForming.Set(float64(len(s.lobbies)))
	metrics.ServersOnline.Set(float64(s.registry.Count()))
	metrics.ActiveGames.Set(float64(s.games.Count()))
	metrics.DatagramsDropped.WithLabelValues("coordinator").Set(float64(s.ep.Dropped()))
}
