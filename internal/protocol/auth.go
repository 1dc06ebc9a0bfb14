package protocol

import "fmt"

// AuthMsg identifies an auth family packet type.
type AuthMsg uint16

const (
	AuthRegisterRequest        AuthMsg = 1
	AuthRegisterResponse       AuthMsg = 2
	AuthLoginRequest           AuthMsg = 3
	AuthLoginResponse          AuthMsg = 4
	AuthValidateTokenRequest   AuthMsg = 5
	AuthValidateTokenResponse  AuthMsg = 6
	AuthLogoutRequest          AuthMsg = 7
	AuthLogoutResponse         AuthMsg = 8
	AuthChangePasswordRequest  AuthMsg = 9
	AuthChangePasswordResponse AuthMsg = 10
)

// AuthResult is the outcome code carried by every auth response.
type AuthResult uint8

const (
	AuthSuccess AuthResult = iota
	AuthInvalidCredentials
	AuthUsernameTaken
	AuthInvalidUsername
	AuthPasswordTooShort
	AuthAccountLocked
	AuthAccountBanned
	AuthTokenExpired
	AuthTokenInvalid
	AuthRateLimited
	AuthServerError
	// 2FA is reserved on the wire, no mechanism behind it yet.
	AuthRequires2FA
	AuthInvalid2FACode
)

func (r AuthResult) String() string {
	switch r {
	case AuthSuccess:
		return "success"
	case AuthInvalidCredentials:
		return "invalid_credentials"
	case AuthUsernameTaken:
		return "username_taken"
	case AuthInvalidUsername:
		return "invalid_username"
	case AuthPasswordTooShort:
		return "password_too_short"
	case AuthAccountLocked:
		return "account_locked"
	case AuthAccountBanned:
		return "account_banned"
	case AuthTokenExpired:
		return "token_expired"
	case AuthTokenInvalid:
		return "token_invalid"
	case AuthRateLimited:
		return "rate_limited"
	case AuthServerError:
		return "server_error"
	case AuthRequires2FA:
		return "requires_2fa"
	case AuthInvalid2FACode:
		return "invalid_2fa_code"
	default:
		return fmt.Sprintf("auth_result(%d)", uint8(r))
	}
}

// RegisterRequest creates a new account. PasswordHash is the hex SHA-256
// digest the client derives from the plaintext, never the plaintext itself.
type RegisterRequest struct {
	Username     string
	PasswordHash string
	Email        string
}

func (p RegisterRequest) Len() int { return UsernameLen + PasswordHashLen + EmailLen }

func (p RegisterRequest) Encode(w *Writer) {
	w.WriteCString(p.Username, UsernameLen)
	w.WriteCString(p.PasswordHash, PasswordHashLen)
	w.WriteCString(p.Email, EmailLen)
}

func (p *RegisterRequest) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("register request: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.Username, _ = r.CString(UsernameLen)
	p.PasswordHash, _ = r.CString(PasswordHashLen)
	p.Email, _ = r.CString(EmailLen)
	return nil
}

// RegisterResponse reports the outcome of account creation. On success a
// fresh session token is issued so the client is logged in immediately.
type RegisterResponse struct {
	Result       AuthResult
	AccountID    uint64
	SessionToken string
}

func (p RegisterResponse) Len() int { return 1 + 8 + TokenLen }

func (p RegisterResponse) Encode(w *Writer) {
	w.WriteUint8(uint8(p.Result))
	w.WriteUint64(p.AccountID)
	w.WriteCString(p.SessionToken, TokenLen)
}

func (p *RegisterResponse) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("register response: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	res, _ := r.Uint8()
	p.Result = AuthResult(res)
	p.AccountID, _ = r.Uint64()
	p.SessionToken, _ = r.CString(TokenLen)
	return nil
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Username     string
	PasswordHash string
}

func (p LoginRequest) Len() int { return UsernameLen + PasswordHashLen }

func (p LoginRequest) Encode(w *Writer) {
	w.WriteCString(p.Username, UsernameLen)
	w.WriteCString(p.PasswordHash, PasswordHashLen)
}

func (p *LoginRequest) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("login request: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.Username, _ = r.CString(UsernameLen)
	p.PasswordHash, _ = r.CString(PasswordHashLen)
	return nil
}

// LoginResponse carries the session token on success. For banned accounts
// the ban reason and expiry travel back so the client can show them.
type LoginResponse struct {
	Result       AuthResult
	AccountID    uint64
	SessionToken string
	Requires2FA  bool
	BanReason    string
	BanUntil     int64 // unix seconds, 0 when not banned
}

func (p LoginResponse) Len() int { return 1 + 8 + TokenLen + 1 + ErrMsgLen + 8 }

func (p LoginResponse) Encode(w *Writer) {
	w.WriteUint8(uint8(p.Result))
	w.WriteUint64(p.AccountID)
	w.WriteCString(p.SessionToken, TokenLen)
	w.WriteUint8(boolByte(p.Requires2FA))
	w.WriteCString(p.BanReason, ErrMsgLen)
	w.WriteInt64(p.BanUntil)
}

func (p *LoginResponse) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("login response: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	res, _ := r.Uint8()
	p.Result = AuthResult(res)
	p.AccountID, _ = r.Uint64()
	p.SessionToken, _ = r.CString(TokenLen)
	fa, _ := r.Uint8()
	p.Requires2FA = fa != 0
	p.BanReason, _ = r.CString(ErrMsgLen)
	p.BanUntil, _ = r.Int64()
	return nil
}

// ValidateTokenRequest asks whether a session token is currently valid.
// Sent by the matchmaking coordinator, not by game clients.
type ValidateTokenRequest struct {
	SessionToken string
}

func (p ValidateTokenRequest) Len() int { return TokenLen }

func (p ValidateTokenRequest) Encode(w *Writer) {
	w.WriteCString(p.SessionToken, TokenLen)
}

func (p *ValidateTokenRequest) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("validate token request: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.SessionToken, _ = r.CString(TokenLen)
	return nil
}

// ValidateTokenResponse answers a ValidateTokenRequest. AccountID is only
// meaningful when Result is AuthSuccess.
type ValidateTokenResponse struct {
	Result    AuthResult
	AccountID uint64
	IsBanned  bool
	ExpiresAt int64 // unix seconds
}

func (p ValidateTokenResponse) Len() int { return 1 + 8 + 1 + 8 }

func (p ValidateTokenResponse) Encode(w *Writer) {
	w.WriteUint8(uint8(p.Result))
	w.WriteUint64(p.AccountID)
	w.WriteUint8(boolByte(p.IsBanned))
	w.WriteInt64(p.ExpiresAt)
}

func (p *ValidateTokenResponse) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("validate token response: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	res, _ := r.Uint8()
	p.Result = AuthResult(res)
	p.AccountID, _ = r.Uint64()
	banned, _ := r.Uint8()
	p.IsBanned = banned != 0
	p.ExpiresAt, _ = r.Int64()
	return nil
}

// LogoutRequest ends the session named by the token. With AllSessions set
// every session of the owning account is ended.
type LogoutRequest struct {
	SessionToken string
	AllSessions  bool
}

func (p LogoutRequest) Len() int { return TokenLen + 1 }

func (p LogoutRequest) Encode(w *Writer) {
	w.WriteCString(p.SessionToken, TokenLen)
	w.WriteUint8(boolByte(p.AllSessions))
}

func (p *LogoutRequest) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("logout request: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.SessionToken, _ = r.CString(TokenLen)
	all, _ := r.Uint8()
	p.AllSessions = all != 0
	return nil
}

// LogoutResponse reports how many sessions were ended.
type LogoutResponse struct {
	Result        AuthResult
	SessionsEnded uint32
}

func (p LogoutResponse) Len() int { return 1 + 4 }

func (p LogoutResponse) Encode(w *Writer) {
	w.WriteUint8(uint8(p.Result))
	w.WriteUint32(p.SessionsEnded)
}

func (p *LogoutResponse) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("logout response: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	res, _ := r.Uint8()
	p.Result = AuthResult(res)
	p.SessionsEnded, _ = r.Uint32()
	return nil
}

// ChangePasswordRequest swaps the account password. The old hash must match;
// on success every session of the account is ended and the client signs in
// again with the new password.
type ChangePasswordRequest struct {
	SessionToken    string
	OldPasswordHash string
	NewPasswordHash string
}

func (p ChangePasswordRequest) Len() int { return TokenLen + PasswordHashLen + PasswordHashLen }

func (p ChangePasswordRequest) Encode(w *Writer) {
	w.WriteCString(p.SessionToken, TokenLen)
	w.WriteCString(p.OldPasswordHash, PasswordHashLen)
	w.WriteCString(p.NewPasswordHash, PasswordHashLen)
}

func (p *ChangePasswordRequest) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("change password request: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	p.SessionToken, _ = r.CString(TokenLen)
	p.OldPasswordHash, _ = r.CString(PasswordHashLen)
	p.NewPasswordHash, _ = r.CString(PasswordHashLen)
	return nil
}

// ChangePasswordResponse reports the outcome and how many sessions were
// invalidated.
type ChangePasswordResponse struct {
	Result        AuthResult
	SessionsEnded uint32
}

func (p ChangePasswordResponse) Len() int { return 1 + 4 }

func (p ChangePasswordResponse) Encode(w *Writer) {
	w.WriteUint8(uint8(p.Result))
	w.WriteUint32(p.SessionsEnded)
}

func (p *ChangePasswordResponse) Parse(data []byte) error {
	if len(data) < p.Len() {
		return fmt.Errorf("change password response: short payload (len=%d, need=%d)", len(data), p.Len())
	}
	r := NewReader(data)
	res, _ := r.Uint8()
	p.Result = AuthResult(res)
	p.SessionsEnded, _ = r.Uint32()
	return nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
