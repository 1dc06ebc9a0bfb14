package coordinator

// ActiveGameRecord points a player back to the match it belongs to.
// HeroName is filled in lazily from the first disconnect report, hero
// picks happen on the game server after assignment.
type ActiveGameRecord struct {
	AccountID      uint64
	LobbyID        uint64
	ServerID       uint64
	ServerAddr     string
	ServerPort     uint16
	TeamSlot       uint8
	HeroName       string
	IsDisconnected bool

	startedAt      float64
	disconnectedAt float64
}

// ActiveGameDirectory answers "where should this player go?" for reconnects.
// Keyed by account id, at most one record per account. Owned by the
// coordinator loop.
type ActiveGameDirectory struct {
	clock   float64
	records map[uint64]*ActiveGameRecord
}

// NewActiveGameDirectory creates an empty directory.
func NewActiveGameDirectory() *ActiveGameDirectory {
	return &ActiveGameDirectory{
		records: make(map[uint64]*ActiveGameRecord),
	}
}

// Tick advances the directory clock.
func (d *ActiveGameDirectory) Tick(dt float64) {
	d.clock += dt
}

// StartGame records a fresh assignment, replacing any previous record for
// the account.
func (d *ActiveGameDirectory) StartGame(accountID, lobbyID, serverID uint64, addr string, port uint16, slot uint8) {
	d.records[accountID] = &ActiveGameRecord{
		AccountID:  accountID,
		LobbyID:    lobbyID,
		ServerID:   serverID,
		ServerAddr: addr,
		ServerPort: port,
		TeamSlot:   slot,
		startedAt:  d.clock,
	}
}

// MarkDisconnected flags the account's record and remembers the hero so a
// reconnecting client can be told what it was playing. Reports false when
// no record matches the lobby.
func (d *ActiveGameDirectory) MarkDisconnected(accountID, lobbyID uint64, slot uint8, hero string) bool {
	rec := d.records[accountID]
	if rec == nil || rec.LobbyID != lobbyID {
		return false
	}
	rec.IsDisconnected = true
	rec.disconnectedAt = d.clock
	rec.TeamSlot = slot
	if hero != "" {
		rec.HeroName = hero
	}
	return true
}

// MarkReconnected clears the disconnect mark. Reports false when no record
// matches the lobby.
func (d *ActiveGameDirectory) MarkReconnected(accountID, lobbyID uint64) bool {
	rec := d.records[accountID]
	if rec == nil || rec.LobbyID != lobbyID {
		return false
	}
	rec.IsDisconnected = false
	rec.disconnectedAt = 0
	return true
}

// EndGame drops every record of the lobby. Returns the number removed.
func (d *ActiveGameDirectory) EndGame(lobbyID uint64) int {
	removed := 0
	for accountID, rec := range d.records {
		if rec.LobbyID == lobbyID {
			delete(d.records, accountID)
			removed++
		}
	}
	return removed
}

// Lookup returns the record for an account, or nil.
func (d *ActiveGameDirectory) Lookup(accountID uint64) *ActiveGameRecord {
	return d.records[accountID]
}

// GameTime returns seconds since the record's match started.
func (d *ActiveGameDirectory) GameTime(rec *ActiveGameRecord) float64 {
	return d.clock - rec.startedAt
}

// DisconnectSec returns seconds the player has been away, zero while
// connected.
func (d *ActiveGameDirectory) DisconnectSec(rec *ActiveGameRecord) float64 {
	if !rec.IsDisconnected {
		return 0
	}
	return d.clock - rec.disconnectedAt
}

// Count returns the number of tracked accounts.
func (d *ActiveGameDirectory) Count() int {
	return len(d.records)
}
