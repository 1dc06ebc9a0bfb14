// Package protocol implements the binary datagram formats spoken by the
// auth service, the matchmaking coordinator and the game servers.
//
// All three families share the same conventions: fixed-layout payloads,
// Little-Endian byte order and NUL-padded fixed-size string fields. Each
// datagram is exactly one packet, there is no streaming or fragmentation.
//
// Auth family (24-byte header):
//
//	magic   uint32  "AUTH"
//	version uint16
//	type    uint16
//	size    uint32  payload bytes after the header
//	account uint64  0 when not yet known
//	request uint32  client-chosen id, echoed in the response
//
// Matchmaking family (28-byte header):
//
//	magic   uint32  "MMP1"
//	version uint16
//	type    uint16
//	size    uint32
//	player  uint64  client-chosen player id, account id in reconnect flows
//	lobby   uint64  0 outside lobby flows
//
// Game family (7-byte header):
//
//	type    uint8
//	seq     uint32  sender-side monotonic counter
//	size    uint16
package protocol

import (
	"errors"
	"fmt"
)

// Wire format identifiers. Magic constants are the ASCII tag read as a
// Little-Endian uint32, so the bytes on the wire spell the tag in order.
const (
	AuthMagic uint32 = 'A' | 'U'<<8 | 'T'<<16 | 'H'<<24
	MMMagic   uint32 = 'M' | 'M'<<8 | 'P'<<16 | '1'<<24

	AuthVersion uint16 = 1
	MMVersion   uint16 = 1
)

// Header sizes in bytes.
const (
	AuthHeaderLen = 24
	MMHeaderLen   = 28
	GameHeaderLen = 7
)

// Fixed string field sizes. Every field reserves one byte for the
// terminating NUL, so UsernameLen holds at most 32 visible characters.
const (
	UsernameLen     = 33
	PasswordHashLen = 65 // 64 hex chars of a SHA-256 digest plus NUL
	TokenLen        = 65
	EmailLen        = 65
	HeroNameLen     = 33
	AddrLen         = 46 // INET6_ADDRSTRLEN
	ReasonLen       = 65
	ErrMsgLen       = 129
)

// MaxDatagram is the receive buffer size used by every endpoint. The
// largest packet is a full world snapshot, which stays well under this.
const MaxDatagram = 4096

// Decode and header validation errors.
var (
	ErrTruncated  = errors.New("datagram shorter than header")
	ErrBadMagic   = errors.New("bad magic")
	ErrBadVersion = errors.New("unsupported protocol version")
	ErrBadSize    = errors.New("declared payload size exceeds datagram")
)

// Body is a packet payload with a fixed wire layout.
type Body interface {
	// Len returns the encoded size in bytes.
	Len() int
	// Encode appends the payload to w. Exactly Len() bytes are written.
	Encode(w *Writer)
}

// AuthHeader is the parsed header of an auth family datagram.
type AuthHeader struct {
	Type      AuthMsg
	Size      uint32
	AccountID uint64
	RequestID uint32
}

// MMHeader is the parsed header of a matchmaking family datagram.
type MMHeader struct {
	Type     MMMsg
	Size     uint32
	PlayerID uint64
	LobbyID  uint64
}

// GameHeader is the parsed header of a game family datagram.
type GameHeader struct {
	Type     GameMsg
	Sequence uint32
	Size     uint16
}

func bodyLen(body Body) int {
	if body == nil {
		return 0
	}
	return body.Len()
}

func encodeBody(w *Writer, body Body) {
	if body != nil {
		body.Encode(w)
	}
}

// BuildAuth encodes an auth family packet into w and returns the wire bytes.
// The returned slice aliases w and is valid until the next Reset or Put.
func BuildAuth(w *Writer, typ AuthMsg, accountID uint64, requestID uint32, body Body) []byte {
	w.WriteUint32(AuthMagic)
	w.WriteUint16(AuthVersion)
	w.WriteUint16(uint16(typ))
	w.WriteUint32(uint32(bodyLen(body)))
	w.WriteUint64(accountID)
	w.WriteUint32(requestID)
	encodeBody(w, body)
	return w.Bytes()
}

// BuildMM encodes a matchmaking family packet into w and returns the wire bytes.
func BuildMM(w *Writer, typ MMMsg, playerID, lobbyID uint64, body Body) []byte {
	w.WriteUint32(MMMagic)
	w.WriteUint16(MMVersion)
	w.WriteUint16(uint16(typ))
	w.WriteUint32(uint32(bodyLen(body)))
	w.WriteUint64(playerID)
	w.WriteUint64(lobbyID)
	encodeBody(w, body)
	return w.Bytes()
}

// BuildGame encodes a game family packet into w and returns the wire bytes.
func BuildGame(w *Writer, typ GameMsg, seq uint32, body Body) []byte {
	w.WriteUint8(uint8(typ))
	w.WriteUint32(seq)
	w.WriteUint16(uint16(bodyLen(body)))
	encodeBody(w, body)
	return w.Bytes()
}

// ParseAuth validates an auth family datagram and splits it into header and
// payload. The payload slice aliases data.
func ParseAuth(data []byte) (AuthHeader, []byte, error) {
	var hdr AuthHeader
	if len(data) < AuthHeaderLen {
		return hdr, nil, fmt.Errorf("auth packet: %w (len=%d)", ErrTruncated, len(data))
	}
	r := NewReader(data)
	magic, _ := r.Uint32()
	if magic != AuthMagic {
		return hdr, nil, fmt.Errorf("auth packet: %w (0x%08x)", ErrBadMagic, magic)
	}
	version, _ := r.Uint16()
	if version != AuthVersion {
		return hdr, nil, fmt.Errorf("auth packet: %w (%d)", ErrBadVersion, version)
	}
	typ, _ := r.Uint16()
	hdr.Type = AuthMsg(typ)
	hdr.Size, _ = r.Uint32()
	hdr.AccountID, _ = r.Uint64()
	hdr.RequestID, _ = r.Uint32()
	if int(hdr.Size) > len(data)-AuthHeaderLen {
		return hdr, nil, fmt.Errorf("auth packet: %w (size=%d, have=%d)", ErrBadSize, hdr.Size, len(data)-AuthHeaderLen)
	}
	return hdr, data[AuthHeaderLen : AuthHeaderLen+int(hdr.Size)], nil
}

// ParseMM validates a matchmaking family datagram and splits it into header
// and payload. The payload slice aliases data.
func ParseMM(data []byte) (MMHeader, []byte, error) {
	var hdr MMHeader
	if len(data) < MMHeaderLen {
		return hdr, nil, fmt.Errorf("mm packet: %w (len=%d)", ErrTruncated, len(data))
	}
	r := NewReader(data)
	magic, _ := r.Uint32()
	if magic != MMMagic {
		return hdr, nil, fmt.Errorf("mm packet: %w (0x%08x)", ErrBadMagic, magic)
	}
	version, _ := r.Uint16()
	if version != MMVersion {
		return hdr, nil, fmt.Errorf("mm packet: %w (%d)", ErrBadVersion, version)
	}
	typ, _ := r.Uint16()
	hdr.Type = MMMsg(typ)
	hdr.Size, _ = r.Uint32()
	hdr.PlayerID, _ = r.Uint64()
	hdr.LobbyID, _ = r.Uint64()
	if int(hdr.Size) > len(data)-MMHeaderLen {
		return hdr, nil, fmt.Errorf("mm packet: %w (size=%d, have=%d)", ErrBadSize, hdr.Size, len(data)-MMHeaderLen)
	}
	return hdr, data[MMHeaderLen : MMHeaderLen+int(hdr.Size)], nil
}

// ParseGame validates a game family datagram and splits it into header and
// payload. The payload slice aliases data.
func ParseGame(data []byte) (GameHeader, []byte, error) {
	var hdr GameHeader
	if len(data) < GameHeaderLen {
		return hdr, nil, fmt.Errorf("game packet: %w (len=%d)", ErrTruncated, len(data))
	}
	r := NewReader(data)
	typ, _ := r.Uint8()
	hdr.Type = GameMsg(typ)
	hdr.Sequence, _ = r.Uint32()
	hdr.Size, _ = r.Uint16()
	if int(hdr.Size) > len(data)-GameHeaderLen {
		return hdr, nil, fmt.Errorf("game packet: %w (size=%d, have=%d)", ErrBadSize, hdr.Size, len(data)-GameHeaderLen)
	}
	return hdr, data[GameHeaderLen : GameHeaderLen+int(hdr.Size)], nil
}
