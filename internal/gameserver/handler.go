package gameserver

import (
	"errors"
	"log/slog"
	"net"

	"github.com/ironrift/server/internal/metrics"
	"github.com/ironrift/server/internal/protocol"
	"github.com/ironrift/server/internal/udp"
)

func (s *Server) handleGamePacket(d udp.Datagram) {
	hdr, payload, err := protocol.ParseGame(d.Data)
	if err != nil {
		slog.Debug("dropping malformed game datagram", "from", d.Addr, "error", err)
		return
	}

	switch hdr.Type {
	case protocol.GameConnectionRequest:
		s.handleConnectionRequest(payload, d.Addr)
	case protocol.GameClientInput:
		s.handleClientInput(payload, d.Addr)
	case protocol.GamePing:
		// Pong несёт тот же sequence, клиент по нему меряет RTT.
		s.sendGame(d.Addr, protocol.GamePong, hdr.Sequence, nil)
	case protocol.GameDisconnect:
		s.handleDisconnect(d.Addr)
	default:
		slog.Debug("ignoring unknown game type", "type", uint8(hdr.Type), "from", d.Addr)
	}
}

// handleConnectionRequest admits a client. When a lobby is assigned, only
// roster accounts may enter, everyone else is free to join a practice
// session.
func (s *Server) handleConnectionRequest(payload []byte, from *net.UDPAddr) {
	var req protocol.ConnectionRequest
	if err := req.Parse(payload); err != nil {
		slog.Debug("malformed connection request", "from", from, "error", err)
		return
	}

	reject := func(reason string) {
		slog.Info("connection rejected", "from", from, "account", req.AccountID, "reason", reason)
		s.sendGame(from, protocol.GameConnectionRejected, 0, protocol.ConnectionRejected{Reason: reason})
	}

	if req.AccountID == 0 {
		reject("Account id required")
		return
	}

	// Повторный запрос с известного адреса — подтверждаем ту же сессию.
	if sess := s.sessions.ByAddr(from); sess != nil {
		if sess.AccountID != req.AccountID {
			reject("Address already in use")
			return
		}
		s.ackConnection(sess)
		return
	}

	// Тот же аккаунт с нового адреса: клиент перезапустился или NAT
	// сменил порт. Сессия и герой сохраняются.
	if sess := s.sessions.ByAccount(req.AccountID); sess != nil {
		s.sessions.Rebind(sess, from)
		s.ackConnection(sess)
		slog.Info("client rebound", "client", sess.ID, "account", req.AccountID, "addr", from)
		return
	}

	var slot uint8
	if s.lobbyID != 0 {
		assigned, onRoster := s.roster[req.AccountID]
		if !onRoster {
			reject("Not on the roster")
			return
		}
		slot = assigned
	}

	sess, err := s.sessions.Admit(req.AccountID, req.Username, req.HeroName, slot, from)
	if err != nil {
		if errors.Is(err, ErrServerFull) {
			reject("Server is full")
			return
		}
		reject("Connection refused")
		return
	}

	team := s.teamForSlot(slot)
	if s.lobbyID == 0 {
		// Свободная игра: чередуем команды по порядку входа.
		team = uint8((sess.ID + 1) & 1)
	}
	sess.EntityID = s.world.AddClient(sess.ID, team)

	if s.away[req.AccountID] {
		delete(s.away, req.AccountID)
		s.reportReconnected(req.AccountID)
		slog.Info("client reconnected to match",
			"client", sess.ID,
			"account", req.AccountID,
			"lobby", s.lobbyID)
	}

	s.ackConnection(sess)
	slog.Info("client connected",
		"client", sess.ID,
		"account", req.AccountID,
		"hero", req.HeroName,
		"team", team,
		"online", s.sessions.Count())
}

func (s *Server) ackConnection(sess *ClientSession) {
	s.sendGame(sess.Addr, protocol.GameConnectionAccepted, 0, protocol.ConnectionAccepted{
		ClientID:     sess.ID,
		TickRate:     uint8(s.cfg.TickRate),
		TickInterval: float32(1.0 / float64(s.cfg.TickRate)),
	})
}

// teamForSlot splits the roster in half: the first expectedPlayers/2 slots
// are team 0, the rest team 1.
func (s *Server) teamForSlot(slot uint8) uint8 {
	half := s.expectedPlayers / 2
	if half < 1 {
		half = 1
	}
	if int(slot) < half {
		return 0
	}
	return 1
}

// handleClientInput applies one input sample. Пакеты с незнакомых адресов
// и устаревшие sequence молча отбрасываются.
func (s *Server) handleClientInput(payload []byte, from *net.UDPAddr) {
	sess := s.sessions.ByAddr(from)
	if sess == nil {
		return
	}

	var in protocol.ClientInput
	if err := in.Parse(payload); err != nil {
		slog.Debug("malformed client input", "client", sess.ID, "error", err)
		return
	}

	if !s.sessions.TouchInput(sess, in.InputSeq) {
		metrics.InputsDiscarded.Inc()
		return
	}
	s.world.ApplyInput(sess.ID, in)
}

func (s *Server) handleDisconnect(from *net.UDPAddr) {
	sess := s.sessions.ByAddr(from)
	if sess == nil {
		return
	}
	s.sessions.Remove(sess.ID)
	s.onSessionGone(sess, "disconnect request")
}
