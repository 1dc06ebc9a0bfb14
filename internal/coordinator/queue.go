package coordinator

import (
	"log/slog"
	"net"

	"github.com/ironrift/server/internal/protocol"
)

// queuedPlayer is one admitted queue entry.
type queuedPlayer struct {
	playerID  uint64
	accountID uint64
	mode      uint8
	region    uint8
	addr      *net.UDPAddr
	searchSec float64
}

// pendingValidation is a queue request parked until the auth service
// answers or the validation timeout fires.
type pendingValidation struct {
	playerID  uint64
	requestID uint32
	mode      uint8
	region    uint8
	addr      *net.UDPAddr
	ageSec    float64
}

func (s *Server) isQueued(playerID uint64) bool {
	for _, q := range s.queue {
		if q.playerID == playerID {
			return true
		}
	}
	return false
}

func (s *Server) isPending(playerID uint64) bool {
	for _, p := range s.pendings {
		if p.playerID == playerID {
			return true
		}
	}
	return false
}

func (s *Server) queuedByAccount(accountID uint64) *queuedPlayer {
	for _, q := range s.queue {
		if q.accountID == accountID {
			return q
		}
	}
	return nil
}

func (s *Server) playerLobby(playerID uint64) *Lobby {
	for _, l := range s.lobbies {
		if l.Has(playerID) {
			return l
		}
	}
	return nil
}

// enqueue appends a player to the back of the queue and reports the fresh
// position with an immediate status packet.
func (s *Server) enqueue(q *queuedPlayer) {
	q.searchSec = 0
	s.queue = append(s.queue, q)
	s.sendQueueStatus(q, len(s.queue))
}

// removeQueued drops the player's queue entry. Reports whether one existed.
func (s *Server) removeQueued(playerID uint64) bool {
	for i, q := range s.queue {
		if q.playerID == playerID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

// removePending drops the player's pending validation. Reports whether one
// existed.
func (s *Server) removePending(playerID uint64) bool {
	for i, p := range s.pendings {
		if p.playerID == playerID {
			s.pendings = append(s.pendings[:i], s.pendings[i+1:]...)
			return true
		}
	}
	return false
}

// takePending removes and returns the oldest pending validation with the
// request id, or nil. Request ids are unique, oldest-wins is a fallback.
func (s *Server) takePending(requestID uint32) *pendingValidation {
	for i, p := range s.pendings {
		if p.requestID == requestID {
			s.pendings = append(s.pendings[:i], s.pendings[i+1:]...)
			return p
		}
	}
	return nil
}

func (s *Server) sendQueueStatus(q *queuedPlayer, position int) {
	s.send(q.addr, protocol.MMQueueStatus, q.playerID, 0, protocol.QueueStatus{
		Position:       uint32(position),
		SearchSec:      uint32(q.searchSec),
		PlayersInQueue: uint32(len(s.queue)),
	})
}

// tryFormLobbies pulls complete mode+region groups out of the queue until
// none remains.
func (s *Server) tryFormLobbies() {
	for {
		group := s.matchingGroup()
		if group == nil {
			return
		}
		s.formLobby(group)
	}
}

// matchingGroup scans the queue in order and returns the first mode+region
// group that reached the lobby size. FIFO within the group.
func (s *Server) matchingGroup() []*queuedPlayer {
	need := s.cfg.PlayersPerMatch
	if need <= 0 || len(s.queue) < need {
		return nil
	}
	buckets := make(map[[2]uint8][]*queuedPlayer)
	for _, q := range s.queue {
		key := [2]uint8{q.mode, q.region}
		buckets[key] = append(buckets[key], q)
		if len(buckets[key]) == need {
			return buckets[key]
		}
	}
	return nil
}

func (s *Server) formLobby(members []*queuedPlayer) {
	for _, m := range members {
		s.removeQueued(m.playerID)
	}

	l := newLobby(newLobbyID(s.lobbies), members)
	s.lobbies[l.ID] = l

	slog.Info("lobby formed", "lobby", l.ID, "mode", l.Mode, "region", l.Region, "players", len(l.Players))

	found := protocol.MatchFound{
		RequiredPlayers:  uint8(len(l.Players)),
		AcceptTimeoutSec: uint8(s.cfg.AcceptTimeout),
	}
	for _, pid := range l.Players {
		s.send(l.AddrByPlayer[pid], protocol.MMMatchFound, pid, l.ID, found)
	}
	s.broadcastAcceptStatus(l)
}

func (s *Server) broadcastAcceptStatus(l *Lobby) {
	status := protocol.MatchAcceptStatus{
		AcceptedCount:   uint8(l.AcceptedCount()),
		RequiredPlayers: uint8(len(l.Players)),
	}
	for _, pid := range l.Players {
		s.send(l.AddrByPlayer[pid], protocol.MMMatchAcceptStatus, pid, l.ID, status)
	}
}
