package protocol

import "fmt"

// MMMsg identifies a matchmaking family packet type. Types 1-14 belong to
// the player dialogue, 20-25 to the game server control dialogue.
type MMMsg uint16

const (
	MMQueueRequest       MMMsg = 1
	MMQueueRejected      MMMsg = 2
	MMQueueStatus        MMMsg = 3
	MMCancelQueue        MMMsg = 4
	MMMatchFound         MMMsg = 5
	MMMatchAccept        MMMsg = 6
	MMMatchDecline       MMMsg = 7
	MMMatchAcceptStatus  MMMsg = 8
	MMMatchCancelled     MMMsg = 9
	MMMatchReady         MMMsg = 10
	MMCheckActiveGame    MMMsg = 11
	MMActiveGameInfo     MMMsg = 12
	MMReconnectRequest   MMMsg = 13
	MMReconnectResponse  MMMsg = 14
	MMServerRegister     MMMsg = 20
	MMServerHeartbeat    MMMsg = 21
	MMAssignLobby        MMMsg = 22
	MMPlayerDisconnected MMMsg = 23
	MMPlayerReconnected  MMMsg = 24
	MMGameEnded          MMMsg = 25
	MMError              MMMsg = 30
)

// MaxLobbyPlayers is the roster capacity of a lobby assignment. Standard
// matches fill all ten slots, slots 0-4 are team 0 and 5-9 are team 1.
const MaxLobbyPlayers = 10

// QueueRequest asks to join the matchmaking queue. The token is checked
// against the auth service before the player is admitted.
type QueueRequest struct {
	Mode         uint8
	Region       uint8
	SessionToken string
}

func (p QueueRequest) Len() int { return 1 + 1 + TokenLen }

func (p QueueRequest) Encode(w *Writer) {
	w.WriteUint8(p.Mode)
	w.WriteUint8(p.Region)
	w.WriteCString(p.SessionToken, TokenLen)
}

func (p *QueueRequest) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("queue request: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.Mode, _ = r.Uint8()
	p.Region, _ = r.Uint8()
	p.SessionToken, _ = r.CString(TokenLen)
	return nil
}

// QueueRejected tells the client it was not admitted to the queue.
type QueueRejected struct {
	Reason     string
	AuthFailed bool
	IsBanned   bool
}

func (p QueueRejected) Len() int { return ErrMsgLen + 1 + 1 }

func (p QueueRejected) Encode(w *Writer) {
	w.WriteCString(p.Reason, ErrMsgLen)
	w.WriteUint8(boolByte(p.AuthFailed))
	w.WriteUint8(boolByte(p.IsBanned))
}

func (p *QueueRejected) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("queue rejected: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.Reason, _ = r.CString(ErrMsgLen)
	af, _ := r.Uint8()
	p.AuthFailed = af != 0
	banned, _ := r.Uint8()
	p.IsBanned = banned != 0
	return nil
}

// QueueStatus is the periodic position report sent to queued players.
type QueueStatus struct {
	Position       uint32 // 1-based position in the queue
	SearchSec      uint32
	PlayersInQueue uint32
}

func (p QueueStatus) Len() int { return 4 + 4 + 4 }

func (p QueueStatus) Encode(w *Writer) {
	w.WriteUint32(p.Position)
	w.WriteUint32(p.SearchSec)
	w.WriteUint32(p.PlayersInQueue)
}

func (p *QueueStatus) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("queue status: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.Position, _ = r.Uint32()
	p.SearchSec, _ = r.Uint32()
	p.PlayersInQueue, _ = r.Uint32()
	return nil
}

// MatchFound starts the accept window for a freshly formed lobby.
type MatchFound struct {
	RequiredPlayers  uint8
	AcceptTimeoutSec uint8
}

func (p MatchFound) Len() int { return 1 + 1 }

func (p MatchFound) Encode(w *Writer) {
	w.WriteUint8(p.RequiredPlayers)
	w.WriteUint8(p.AcceptTimeoutSec)
}

func (p *MatchFound) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("match found: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.RequiredPlayers, _ = r.Uint8()
	p.AcceptTimeoutSec, _ = r.Uint8()
	return nil
}

// MatchAcceptStatus reports accept progress to everyone in the lobby.
type MatchAcceptStatus struct {
	AcceptedCount   uint8
	RequiredPlayers uint8
}

func (p MatchAcceptStatus) Len() int { return 1 + 1 }

func (p MatchAcceptStatus) Encode(w *Writer) {
	w.WriteUint8(p.AcceptedCount)
	w.WriteUint8(p.RequiredPlayers)
}

func (p *MatchAcceptStatus) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("match accept status: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.AcceptedCount, _ = r.Uint8()
	p.RequiredPlayers, _ = r.Uint8()
	return nil
}

// MatchCancelled dissolves a lobby before it reached a game server.
// ShouldRequeue is set for players who accepted in time.
type MatchCancelled struct {
	Reason        string
	DeclinedBy    uint64 // player id, 0 on timeout
	ShouldRequeue bool
}

func (p MatchCancelled) Len() int { return ErrMsgLen + 8 + 1 }

func (p MatchCancelled) Encode(w *Writer) {
	w.WriteCString(p.Reason, ErrMsgLen)
	w.WriteUint64(p.DeclinedBy)
	w.WriteUint8(boolByte(p.ShouldRequeue))
}

func (p *MatchCancelled) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("match cancelled: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.Reason, _ = r.CString(ErrMsgLen)
	p.DeclinedBy, _ = r.Uint64()
	rq, _ := r.Uint8()
	p.ShouldRequeue = rq != 0
	return nil
}

// MatchReady hands the client the address of its game server.
type MatchReady struct {
	ServerAddr string
	ServerPort uint16
}

func (p MatchReady) Len() int { return AddrLen + 2 }

func (p MatchReady) Encode(w *Writer) {
	w.WriteCString(p.ServerAddr, AddrLen)
	w.WriteUint16(p.ServerPort)
}

func (p *MatchReady) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("match ready: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.ServerAddr, _ = r.CString(AddrLen)
	p.ServerPort, _ = r.Uint16()
	return nil
}

// ActiveGameInfo answers CheckActiveGame. When HasGame is unset every
// other field is zero.
type ActiveGameInfo struct {
	HasGame       bool
	LobbyID       uint64
	ServerAddr    string
	ServerPort    uint16
	TeamSlot      uint8
	HeroName      string
	GameTimeSec   uint32
	DisconnectSec uint32
	CanReconnect  bool
}

func (p ActiveGameInfo) Len() int { return 1 + 8 + AddrLen + 2 + 1 + HeroNameLen + 4 + 4 + 1 }

func (p ActiveGameInfo) Encode(w *Writer) {
	w.WriteUint8(boolByte(p.HasGame))
	w.WriteUint64(p.LobbyID)
	w.WriteCString(p.ServerAddr, AddrLen)
	w.WriteUint16(p.ServerPort)
	w.WriteUint8(p.TeamSlot)
	w.WriteCString(p.HeroName, HeroNameLen)
	w.WriteUint32(p.GameTimeSec)
	w.WriteUint32(p.DisconnectSec)
	w.WriteUint8(boolByte(p.CanReconnect))
}

func (p *ActiveGameInfo) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("active game info: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	has, _ := r.Uint8()
	p.HasGame = has != 0
	p.LobbyID, _ = r.Uint64()
	p.ServerAddr, _ = r.CString(AddrLen)
	p.ServerPort, _ = r.Uint16()
	p.TeamSlot, _ = r.Uint8()
	p.HeroName, _ = r.CString(HeroNameLen)
	p.GameTimeSec, _ = r.Uint32()
	p.DisconnectSec, _ = r.Uint32()
	cr, _ := r.Uint8()
	p.CanReconnect = cr != 0
	return nil
}

// ReconnectRequest asks to rejoin a running game.
type ReconnectRequest struct {
	LobbyID uint64
}

func (p ReconnectRequest) Len() int { return 8 }

func (p ReconnectRequest) Encode(w *Writer) {
	w.WriteUint64(p.LobbyID)
}

func (p *ReconnectRequest) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("reconnect request: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.LobbyID, _ = r.Uint64()
	return nil
}

// ReconnectResponse approves or denies a reconnect attempt.
type ReconnectResponse struct {
	Approved   bool
	Reason     string
	ServerAddr string
	ServerPort uint16
	TeamSlot   uint8
	HeroName   string
}

func (p ReconnectResponse) Len() int { return 1 + ReasonLen + AddrLen + 2 + 1 + HeroNameLen }

func (p ReconnectResponse) Encode(w *Writer) {
	w.WriteUint8(boolByte(p.Approved))
	w.WriteCString(p.Reason, ReasonLen)
	w.WriteCString(p.ServerAddr, AddrLen)
	w.WriteUint16(p.ServerPort)
	w.WriteUint8(p.TeamSlot)
	w.WriteCString(p.HeroName, HeroNameLen)
}

func (p *ReconnectResponse) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("reconnect response: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	ok, _ := r.Uint8()
	p.Approved = ok != 0
	p.Reason, _ = r.CString(ReasonLen)
	p.ServerAddr, _ = r.CString(AddrLen)
	p.ServerPort, _ = r.Uint16()
	p.TeamSlot, _ = r.Uint8()
	p.HeroName, _ = r.CString(HeroNameLen)
	return nil
}

// ServerRegister announces a game server to the coordinator.
type ServerRegister struct {
	ServerID uint64
	Addr     string
	GamePort uint16
	Capacity uint16
}

func (p ServerRegister) Len() int { return 8 + AddrLen + 2 + 2 }

func (p ServerRegister) Encode(w *Writer) {
	w.WriteUint64(p.ServerID)
	w.WriteCString(p.Addr, AddrLen)
	w.WriteUint16(p.GamePort)
	w.WriteUint16(p.Capacity)
}

func (p *ServerRegister) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("server register: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.ServerID, _ = r.Uint64()
	p.Addr, _ = r.CString(AddrLen)
	p.GamePort, _ = r.Uint16()
	p.Capacity, _ = r.Uint16()
	return nil
}

// ServerHeartbeat keeps a registration alive and refreshes the load numbers
// used for lobby placement.
type ServerHeartbeat struct {
	ServerID       uint64
	CurrentPlayers uint16
	Capacity       uint16
	UptimeSec      uint32
}

func (p ServerHeartbeat) Len() int { return 8 + 2 + 2 + 4 }

func (p ServerHeartbeat) Encode(w *Writer) {
	w.WriteUint64(p.ServerID)
	w.WriteUint16(p.CurrentPlayers)
	w.WriteUint16(p.Capacity)
	w.WriteUint32(p.UptimeSec)
}

func (p *ServerHeartbeat) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("server heartbeat: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.ServerID, _ = r.Uint64()
	p.CurrentPlayers, _ = r.Uint16()
	p.Capacity, _ = r.Uint16()
	p.UptimeSec, _ = r.Uint32()
	return nil
}

// RosterEntry maps an account to its team slot for one lobby.
type RosterEntry struct {
	AccountID uint64
	TeamSlot  uint8
}

// AssignLobby orders a game server to host a lobby. The roster always
// occupies MaxLobbyPlayers slots on the wire, only the first
// ExpectedPlayers entries are meaningful.
type AssignLobby struct {
	ServerID        uint64
	LobbyID         uint64
	ExpectedPlayers uint8
	Roster          []RosterEntry
}

func (p AssignLobby) Len() int { return 8 + 8 + 1 + MaxLobbyPlayers*9 }

func (p AssignLobby) Encode(w *Writer) {
	w.WriteUint64(p.ServerID)
	w.WriteUint64(p.LobbyID)
	w.WriteUint8(p.ExpectedPlayers)
	for i := 0; i < MaxLobbyPlayers; i++ {
		if i < len(p.Roster) {
			w.WriteUint64(p.Roster[i].AccountID)
			w.WriteUint8(p.Roster[i].TeamSlot)
		} else {
			w.WriteUint64(0)
			w.WriteUint8(0)
		}
	}
}

func (p *AssignLobby) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("assign lobby: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.ServerID, _ = r.Uint64()
	p.LobbyID, _ = r.Uint64()
	p.ExpectedPlayers, _ = r.Uint8()
	if p.ExpectedPlayers > MaxLobbyPlayers {
		return fmt.Errorf("assign lobby: roster overflow (%d > %d)", p.ExpectedPlayers, MaxLobbyPlayers)
	}
	p.Roster = make([]RosterEntry, 0, p.ExpectedPlayers)
	for i := 0; i < MaxLobbyPlayers; i++ {
		id, _ := r.Uint64()
		slot, _ := r.Uint8()
		if i < int(p.ExpectedPlayers) {
			p.Roster = append(p.Roster, RosterEntry{AccountID: id, TeamSlot: slot})
		}
	}
	return nil
}

// PlayerDisconnected notifies the coordinator that a client went silent.
// Hero name and slot let the directory answer reconnect lookups.
type PlayerDisconnected struct {
	ServerID  uint64
	LobbyID   uint64
	AccountID uint64
	TeamSlot  uint8
	HeroName  string
}

func (p PlayerDisconnected) Len() int { return 8 + 8 + 8 + 1 + HeroNameLen }

func (p PlayerDisconnected) Encode(w *Writer) {
	w.WriteUint64(p.ServerID)
	w.WriteUint64(p.LobbyID)
	w.WriteUint64(p.AccountID)
	w.WriteUint8(p.TeamSlot)
	w.WriteCString(p.HeroName, HeroNameLen)
}

func (p *PlayerDisconnected) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("player disconnected: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.ServerID, _ = r.Uint64()
	p.LobbyID, _ = r.Uint64()
	p.AccountID, _ = r.Uint64()
	p.TeamSlot, _ = r.Uint8()
	p.HeroName, _ = r.CString(HeroNameLen)
	return nil
}

// PlayerReconnected clears a disconnect mark in the coordinator directory.
type PlayerReconnected struct {
	ServerID  uint64
	LobbyID   uint64
	AccountID uint64
}

func (p PlayerReconnected) Len() int { return 8 + 8 + 8 }

func (p PlayerReconnected) Encode(w *Writer) {
	w.WriteUint64(p.ServerID)
	w.WriteUint64(p.LobbyID)
	w.WriteUint64(p.AccountID)
}

func (p *PlayerReconnected) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("player reconnected: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.ServerID, _ = r.Uint64()
	p.LobbyID, _ = r.Uint64()
	p.AccountID, _ = r.Uint64()
	return nil
}

// GameEnded reports a finished match so the coordinator can release the
// server slot and drop the active game record.
type GameEnded struct {
	ServerID    uint64
	LobbyID     uint64
	WinningTeam uint8
	DurationSec uint32
}

func (p GameEnded) Len() int { return 8 + 8 + 1 + 4 }

func (p GameEnded) Encode(w *Writer) {
	w.WriteUint64(p.ServerID)
	w.WriteUint64(p.LobbyID)
	w.WriteUint8(p.WinningTeam)
	w.WriteUint32(p.DurationSec)
}

func (p *GameEnded) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("game ended: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.ServerID, _ = r.Uint64()
	p.LobbyID, _ = r.Uint64()
	p.WinningTeam, _ = r.Uint8()
	p.DurationSec, _ = r.Uint32()
	return nil
}

// ErrorMessage is the catch-all failure notice of the matchmaking dialogue.
type ErrorMessage struct {
	Message string
}

func (p ErrorMessage) Len() int { return ErrMsgLen }

func (p ErrorMessage) Encode(w *Writer) {
	w.WriteCString(p.Message, ErrMsgLen)
}

func (p *ErrorMessage) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("error message: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.Message, _ = r.CString(ErrMsgLen)
	return nil
}
