package protocol

import "fmt"

// GameMsg identifies a game family packet type.
type GameMsg uint8

const (
	GameConnectionRequest  GameMsg = 1
	GameConnectionAccepted GameMsg = 2
	GameConnectionRejected GameMsg = 3
	GameClientInput        GameMsg = 4
	GameWorldSnapshot      GameMsg = 5
	GamePing               GameMsg = 6
	GamePong               GameMsg = 7
	GameDisconnect         GameMsg = 8
)

// ClientInput button bits.
const (
	ButtonAttack uint32 = 1 << 0
	ButtonStop   uint32 = 1 << 1
)

// Entity kinds carried in snapshots.
const (
	EntityHero   uint8 = 1
	EntityMinion uint8 = 2
)

// MaxSnapshotEntities caps the entity list of one snapshot so the packet
// never outgrows MaxDatagram.
const MaxSnapshotEntities = 64

// snapshotAckOff is the byte offset of AckedInputSeq inside the snapshot
// payload. PatchSnapshotAck depends on this staying in sync with Encode.
const snapshotAckOff = 4 + 8 + 4 + 4 + 4

// entityStateLen is the encoded size of one EntityState.
const entityStateLen = 34

// ConnectionRequest opens a client session on a game server. Sending it
// again with the same account id re-acks the existing session.
type ConnectionRequest struct {
	AccountID uint64
	Username  string
	HeroName  string
}

func (p ConnectionRequest) Len() int { return 8 + UsernameLen + HeroNameLen }

func (p ConnectionRequest) Encode(w *Writer) {
	w.WriteUint64(p.AccountID)
	w.WriteCString(p.Username, UsernameLen)
	w.WriteCString(p.HeroName, HeroNameLen)
}

func (p *ConnectionRequest) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("connection request: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.AccountID, _ = r.Uint64()
	p.Username, _ = r.CString(UsernameLen)
	p.HeroName, _ = r.CString(HeroNameLen)
	return nil
}

// ConnectionAccepted confirms a session and tells the client the simulation
// rate it should interpolate against.
type ConnectionAccepted struct {
	ClientID     uint32
	TickRate     uint8
	TickInterval float32 // seconds per tick
}

func (p ConnectionAccepted) Len() int { return 4 + 1 + 4 }

func (p ConnectionAccepted) Encode(w *Writer) {
	w.WriteUint32(p.ClientID)
	w.WriteUint8(p.TickRate)
	w.WriteFloat32(p.TickInterval)
}

func (p *ConnectionAccepted) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("connection accepted: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.ClientID, _ = r.Uint32()
	p.TickRate, _ = r.Uint8()
	p.TickInterval, _ = r.Float32()
	return nil
}

// ConnectionRejected refuses a session.
type ConnectionRejected struct {
	Reason string
}

func (p ConnectionRejected) Len() int { return ReasonLen }

func (p ConnectionRejected) Encode(w *Writer) {
	w.WriteCString(p.Reason, ReasonLen)
}

func (p *ConnectionRejected) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("connection rejected: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.Reason, _ = r.CString(ReasonLen)
	return nil
}

// ClientInput is the per-frame input sample. Move is a unit-clamped intent
// vector, Aim is a world-space point.
type ClientInput struct {
	InputSeq    uint32
	MoveX       float32
	MoveY       float32
	Buttons     uint32
	AbilitySlot uint8 // 0 = none, 1-4 = ability
	AimX        float32
	AimY        float32
}

func (p ClientInput) Len() int { return 4 + 4 + 4 + 4 + 1 + 4 + 4 }

func (p ClientInput) Encode(w *Writer) {
	w.WriteUint32(p.InputSeq)
	w.WriteFloat32(p.MoveX)
	w.WriteFloat32(p.MoveY)
	w.WriteUint32(p.Buttons)
	w.WriteUint8(p.AbilitySlot)
	w.WriteFloat32(p.AimX)
	w.WriteFloat32(p.AimY)
}

func (p *ClientInput) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("client input: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.InputSeq, _ = r.Uint32()
	p.MoveX, _ = r.Float32()
	p.MoveY, _ = r.Float32()
	p.Buttons, _ = r.Uint32()
	p.AbilitySlot, _ = r.Uint8()
	p.AimX, _ = r.Float32()
	p.AimY, _ = r.Float32()
	return nil
}

// EntityState is the replicated view of one world entity.
type EntityState struct {
	NetworkID     uint32
	OwnerClientID uint32 // 0 for server-owned entities
	Kind          uint8
	Team          uint8
	HP            uint16
	MaxHP         uint16
	Mana          uint16
	MaxMana       uint16
	PosX          float32
	PosY          float32
	PosZ          float32
	Yaw           float32
}

// WorldSnapshot is the authoritative state broadcast sent every tick.
// AckedInputSeq is rewritten per receiver with PatchSnapshotAck before the
// packet goes out, everything else is shared by all receivers.
type WorldSnapshot struct {
	Tick          uint32
	ServerTime    float64 // unix seconds
	GameTime      float32 // seconds since match start
	WaveNumber    uint32
	NextWaveSec   float32
	AckedInputSeq uint32
	Entities      []EntityState
}

func (p WorldSnapshot) Len() int {
	n := len(p.Entities)
	if n > MaxSnapshotEntities {
		n = MaxSnapshotEntities
	}
	return snapshotAckOff + 4 + 2 + n*entityStateLen
}

func (p WorldSnapshot) Encode(w *Writer) {
	n := len(p.Entities)
	if n > MaxSnapshotEntities {
		n = MaxSnapshotEntities
	}
	w.WriteUint32(p.Tick)
	w.WriteFloat64(p.ServerTime)
	w.WriteFloat32(p.GameTime)
	w.WriteUint32(p.WaveNumber)
	w.WriteFloat32(p.NextWaveSec)
	w.WriteUint32(p.AckedInputSeq)
	w.WriteUint16(uint16(n))
	for i := 0; i < n; i++ {
		e := &p.Entities[i]
		w.WriteUint32(e.NetworkID)
		w.WriteUint32(e.OwnerClientID)
		w.WriteUint8(e.Kind)
		w.WriteUint8(e.Team)
		w.WriteUint16(e.HP)
		w.WriteUint16(e.MaxHP)
		w.WriteUint16(e.Mana)
		w.WriteUint16(e.MaxMana)
		w.WriteFloat32(e.PosX)
		w.WriteFloat32(e.PosY)
		w.WriteFloat32(e.PosZ)
		w.WriteFloat32(e.Yaw)
	}
}

func (p *WorldSnapshot) Parse(data []byte) error {
	const fixed = snapshotAckOff + 4 + 2
	if len(data) < fixed {
		return fmt.Errorf("world snapshot: short payload (len=%d, need=%d)", len(data), fixed)
	}
	r := NewReader(data)
	p.Tick, _ = r.Uint32()
	p.ServerTime, _ = r.Float64()
	p.GameTime, _ = r.Float32()
	p.WaveNumber, _ = r.Uint32()
	p.NextWaveSec, _ = r.Float32()
	p.AckedInputSeq, _ = r.Uint32()
	count, _ := r.Uint16()
	if count > MaxSnapshotEntities {
		return fmt.Errorf("world snapshot: entity count %d exceeds cap %d", count, MaxSnapshotEntities)
	}
	if r.Remaining() < int(count)*entityStateLen {
		return fmt.Errorf("world snapshot: short entity list (have=%d, need=%d)", r.Remaining(), int(count)*entityStateLen)
	}
	p.Entities = make([]EntityState, count)
	for i := range p.Entities {
		e := &p.Entities[i]
		e.NetworkID, _ = r.Uint32()
		e.OwnerClientID, _ = r.Uint32()
		e.Kind, _ = r.Uint8()
		e.Team, _ = r.Uint8()
		e.HP, _ = r.Uint16()
		e.MaxHP, _ = r.Uint16()
		e.Mana, _ = r.Uint16()
		e.MaxMana, _ = r.Uint16()
		e.PosX, _ = r.Float32()
		e.PosY, _ = r.Float32()
		e.PosZ, _ = r.Float32()
		e.Yaw, _ = r.Float32()
	}
	return nil
}

// PatchSnapshotAck rewrites the AckedInputSeq field of an encoded snapshot
// packet in place. pkt must start with the game header.
func PatchSnapshotAck(pkt []byte, seq uint32) error {
	off := GameHeaderLen + snapshotAckOff
	if len(pkt) < off+4 {
		return fmt.Errorf("patch snapshot ack: packet too short (len=%d)", len(pkt))
	}
	pkt[off] = byte(seq)
	pkt[off+1] = byte(seq >> 8)
	pkt[off+2] = byte(seq >> 16)
	pkt[off+3] = byte(seq >> 24)
	return nil
}
