package auth

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/ironrift/server/internal/config"
	"github.com/ironrift/server/internal/db"
	"github.com/ironrift/server/internal/metrics"
	"github.com/ironrift/server/internal/model"
	"github.com/ironrift/server/internal/protocol"
)

// Handler processes auth datagrams. Singleton — один на сервер, живёт в
// одной горутине service loop.
type Handler struct {
	accounts AccountRepository
	sessions SessionRepository
	failures LoginFailureRepository
	cfg      config.AuthServer
	w        *protocol.Writer
	now      func() time.Time
}

// NewHandler creates a packet handler.
func NewHandler(accounts AccountRepository, sessions SessionRepository, failures LoginFailureRepository, cfg config.AuthServer) *Handler {
	return &Handler{
		accounts: accounts,
		sessions: sessions,
		failures: failures,
		cfg:      cfg,
		w:        protocol.NewWriter(512),
		now:      time.Now,
	}
}

// failWindow is the sliding window inside which login failures count
// towards the rate limit.
func (h *Handler) failWindow() time.Duration {
	return time.Duration(h.cfg.LoginBlockAfterBan) * time.Second
}

// Handle dispatches one parsed datagram and returns the response packet.
// The returned slice aliases the handler's write buffer and is valid until
// the next Handle call. Returns nil when the datagram should be dropped.
func (h *Handler) Handle(ctx context.Context, hdr protocol.AuthHeader, payload []byte, from *net.UDPAddr) []byte {
	metrics.AuthPackets.WithLabelValues(authMsgLabel(hdr.Type)).Inc()

	switch hdr.Type {
	case protocol.AuthRegisterRequest:
		return h.handleRegister(ctx, hdr, payload, from)
	case protocol.AuthLoginRequest:
		return h.handleLogin(ctx, hdr, payload, from)
	case protocol.AuthValidateTokenRequest:
		return h.handleValidateToken(ctx, hdr, payload)
	case protocol.AuthLogoutRequest:
		return h.handleLogout(ctx, hdr, payload)
	case protocol.AuthChangePasswordRequest:
		return h.handleChangePassword(ctx, hdr, payload, from)
	default:
		slog.Warn("unknown auth packet type", "type", uint16(hdr.Type), "from", from)
		return nil
	}
}

func (h *Handler) respond(typ protocol.AuthMsg, accountID uint64, requestID uint32, body protocol.Body) []byte {
	h.w.Reset()
	return protocol.BuildAuth(h.w, typ, accountID, requestID, body)
}

func (h *Handler) handleRegister(ctx context.Context, hdr protocol.AuthHeader, payload []byte, from *net.UDPAddr) []byte {
	fail := func(result protocol.AuthResult) []byte {
		metrics.AuthResults.WithLabelValues("register", result.String()).Inc()
		return h.respond(protocol.AuthRegisterResponse, 0, hdr.RequestID, protocol.RegisterResponse{Result: result})
	}

	var req protocol.RegisterRequest
	if err := req.Parse(payload); err != nil {
		slog.Debug("malformed register request", "from", from, "error", err)
		return nil
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.TrimSpace(req.Email)
	if !validUsername(username) {
		return fail(protocol.AuthInvalidUsername)
	}
	if !validClientHash(req.PasswordHash) {
		return fail(protocol.AuthPasswordTooShort)
	}
	if !validEmail(email) {
		return fail(protocol.AuthInvalidUsername)
	}

	passwordHash, err := db.HashPassword(req.PasswordHash)
	if err != nil {
		slog.Error("password hashing failed", "error", err)
		return fail(protocol.AuthServerError)
	}

	acc, err := h.accounts.Create(ctx, username, passwordHash, email)
	if err != nil {
		slog.Error("account create failed", "username", username, "error", err)
		return fail(protocol.AuthServerError)
	}
	if acc == nil {
		slog.Info("register rejected, name taken", "username", username, "from", from)
		return fail(protocol.AuthUsernameTaken)
	}

	token, err := h.openSession(ctx, acc.ID, from.IP.String())
	if err != nil {
		slog.Error("session open failed", "account", acc.ID, "error", err)
		return fail(protocol.AuthServerError)
	}

	slog.Info("account registered", "username", username, "account", acc.ID, "from", from)
	metrics.AuthResults.WithLabelValues("register", "success").Inc()
	return h.respond(protocol.AuthRegisterResponse, uint64(acc.ID), hdr.RequestID, protocol.RegisterResponse{
		Result:       protocol.AuthSuccess,
		AccountID:    uint64(acc.ID),
		SessionToken: token,
	})
}

func (h *Handler) handleLogin(ctx context.Context, hdr protocol.AuthHeader, payload []byte, from *net.UDPAddr) []byte {
	fail := func(result protocol.AuthResult) []byte {
		metrics.AuthResults.WithLabelValues("login", result.String()).Inc()
		return h.respond(protocol.AuthLoginResponse, 0, hdr.RequestID, protocol.LoginResponse{Result: result})
	}

	var req protocol.LoginRequest
	if err := req.Parse(payload); err != nil {
		slog.Debug("malformed login request", "from", from, "error", err)
		return nil
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.PasswordHash == "" {
		return fail(protocol.AuthInvalidCredentials)
	}

	now := h.now()
	ip := from.IP.String()

	acc, err := h.accounts.ByUsername(ctx, username)
	if err != nil {
		slog.Error("database error during login", "username", username, "error", err)
		return fail(protocol.AuthServerError)
	}
	if acc == nil {
		// Same answer as a wrong password so usernames can't be probed.
		slog.Info("login failed, no such account", "username", username, "from", from)
		return fail(protocol.AuthInvalidCredentials)
	}

	if acc.IsBanned {
		if acc.BanActive(now) {
			slog.Info("login rejected, banned", "username", username, "until", acc.BanExpiresAt)
			metrics.AuthResults.WithLabelValues("login", protocol.AuthAccountBanned.String()).Inc()
			return h.respond(protocol.AuthLoginResponse, uint64(acc.ID), hdr.RequestID, protocol.LoginResponse{
				Result:    protocol.AuthAccountBanned,
				AccountID: uint64(acc.ID),
				BanReason: acc.BanReason,
				BanUntil:  banUntilUnix(acc),
			})
		}
		// срок бана истёк, снимаем его лениво
		if err := h.accounts.ClearBan(ctx, acc.ID); err != nil {
			slog.Error("clearing lapsed ban failed", "account", acc.ID, "error", err)
		}
	}

	if h.cfg.LoginTryBeforeBan > 0 {
		recent, err := h.failures.CountRecent(ctx, username, ip, now.Add(-h.failWindow()))
		if err != nil {
			slog.Error("database error counting login failures", "username", username, "error", err)
			return fail(protocol.AuthServerError)
		}
		if recent >= int64(h.cfg.LoginTryBeforeBan) {
			slog.Warn("login rate limited", "username", username, "from", from, "recent_failures", recent)
			return fail(protocol.AuthRateLimited)
		}
	}

	if !db.CheckPassword(acc.PasswordHash, req.PasswordHash) {
		slog.Info("login failed, wrong password", "username", username, "from", from)
		if h.cfg.LoginTryBeforeBan > 0 {
			if err := h.failures.Record(ctx, username, ip, now); err != nil {
				slog.Error("recording login failure failed", "username", username, "error", err)
			}
		}
		return fail(protocol.AuthInvalidCredentials)
	}

	if _, err := h.failures.DeleteFor(ctx, username, ip); err != nil {
		slog.Error("clearing login failures failed", "username", username, "error", err)
	}

	token, err := h.openSession(ctx, acc.ID, ip)
	if err != nil {
		slog.Error("session open failed", "account", acc.ID, "error", err)
		return fail(protocol.AuthServerError)
	}

	if err := h.accounts.UpdateLastLogin(ctx, acc.ID); err != nil {
		slog.Error("failed to update last login", "account", acc.ID, "error", err)
	}

	slog.Info("login success", "username", username, "account", acc.ID, "from", from)
	metrics.AuthResults.WithLabelValues("login", "success").Inc()
	return h.respond(protocol.AuthLoginResponse, uint64(acc.ID), hdr.RequestID, protocol.LoginResponse{
		Result:       protocol.AuthSuccess,
		AccountID:    uint64(acc.ID),
		SessionToken: token,
	})
}

func (h *Handler) handleValidateToken(ctx context.Context, hdr protocol.AuthHeader, payload []byte) []byte {
	fail := func(result protocol.AuthResult) []byte {
		metrics.AuthResults.WithLabelValues("validate", result.String()).Inc()
		return h.respond(protocol.AuthValidateTokenResponse, 0, hdr.RequestID, protocol.ValidateTokenResponse{Result: result})
	}

	var req protocol.ValidateTokenRequest
	if err := req.Parse(payload); err != nil {
		return nil
	}

	if !validToken(req.SessionToken) {
		return fail(protocol.AuthTokenInvalid)
	}

	sess, err := h.sessions.ByToken(ctx, req.SessionToken)
	if err != nil {
		slog.Error("database error during validation", "error", err)
		return fail(protocol.AuthServerError)
	}
	if sess == nil {
		return fail(protocol.AuthTokenInvalid)
	}

	now := h.now()
	if sess.Expired(now) {
		if _, err := h.sessions.Delete(ctx, sess.Token); err != nil {
			slog.Error("deleting expired session failed", "error", err)
		}
		return fail(protocol.AuthTokenExpired)
	}

	acc, err := h.accounts.ByID(ctx, sess.AccountID)
	if err != nil {
		slog.Error("database error during validation", "account", sess.AccountID, "error", err)
		return fail(protocol.AuthServerError)
	}
	if acc == nil {
		// аккаунт удалён, сессия осиротела
		if _, err := h.sessions.Delete(ctx, sess.Token); err != nil {
			slog.Error("deleting orphan session failed", "error", err)
		}
		return fail(protocol.AuthTokenInvalid)
	}

	banned := acc.IsBanned
	if banned && !acc.BanActive(now) {
		if err := h.accounts.ClearBan(ctx, acc.ID); err != nil {
			slog.Error("clearing lapsed ban failed", "account", acc.ID, "error", err)
		}
		banned = false
	}

	metrics.AuthResults.WithLabelValues("validate", "success").Inc()
	return h.respond(protocol.AuthValidateTokenResponse, uint64(acc.ID), hdr.RequestID, protocol.ValidateTokenResponse{
		Result:    protocol.AuthSuccess,
		AccountID: uint64(acc.ID),
		IsBanned:  banned,
		ExpiresAt: sess.ExpiresAt.Unix(),
	})
}

func (h *Handler) handleLogout(ctx context.Context, hdr protocol.AuthHeader, payload []byte) []byte {
	fail := func(result protocol.AuthResult) []byte {
		metrics.AuthResults.WithLabelValues("logout", result.String()).Inc()
		return h.respond(protocol.AuthLogoutResponse, 0, hdr.RequestID, protocol.LogoutResponse{Result: result})
	}

	var req protocol.LogoutRequest
	if err := req.Parse(payload); err != nil {
		return nil
	}

	if !validToken(req.SessionToken) {
		return fail(protocol.AuthTokenInvalid)
	}

	sess, err := h.sessions.ByToken(ctx, req.SessionToken)
	if err != nil {
		slog.Error("database error during logout", "error", err)
		return fail(protocol.AuthServerError)
	}
	if sess == nil {
		return fail(protocol.AuthTokenInvalid)
	}

	var ended int64
	if req.AllSessions {
		ended, err = h.sessions.DeleteByAccount(ctx, sess.AccountID)
	} else {
		var deleted bool
		deleted, err = h.sessions.Delete(ctx, sess.Token)
		if deleted {
			ended = 1
		}
	}
	if err != nil {
		slog.Error("session delete failed", "account", sess.AccountID, "error", err)
		return fail(protocol.AuthServerError)
	}

	slog.Info("logout", "account", sess.AccountID, "ended", ended, "all", req.AllSessions)
	metrics.AuthResults.WithLabelValues("logout", "success").Inc()
	return h.respond(protocol.AuthLogoutResponse, uint64(sess.AccountID), hdr.RequestID, protocol.LogoutResponse{
		Result:        protocol.AuthSuccess,
		SessionsEnded: uint32(ended),
	})
}

func (h *Handler) handleChangePassword(ctx context.Context, hdr protocol.AuthHeader, payload []byte, from *net.UDPAddr) []byte {
	fail := func(result protocol.AuthResult) []byte {
		metrics.AuthResults.WithLabelValues("change_password", result.String()).Inc()
		return h.respond(protocol.AuthChangePasswordResponse, 0, hdr.RequestID, protocol.ChangePasswordResponse{Result: result})
	}

	var req protocol.ChangePasswordRequest
	if err := req.Parse(payload); err != nil {
		return nil
	}

	if !validToken(req.SessionToken) {
		return fail(protocol.AuthTokenInvalid)
	}
	if !validClientHash(req.NewPasswordHash) {
		return fail(protocol.AuthPasswordTooShort)
	}

	sess, err := h.sessions.ByToken(ctx, req.SessionToken)
	if err != nil {
		slog.Error("database error during password change", "error", err)
		return fail(protocol.AuthServerError)
	}
	if sess == nil {
		return fail(protocol.AuthTokenInvalid)
	}
	if sess.Expired(h.now()) {
		if _, err := h.sessions.Delete(ctx, sess.Token); err != nil {
			slog.Error("deleting expired session failed", "error", err)
		}
		return fail(protocol.AuthTokenExpired)
	}

	acc, err := h.accounts.ByID(ctx, sess.AccountID)
	if err != nil {
		slog.Error("database error during password change", "account", sess.AccountID, "error", err)
		return fail(protocol.AuthServerError)
	}
	if acc == nil {
		return fail(protocol.AuthTokenInvalid)
	}

	if !db.CheckPassword(acc.PasswordHash, req.OldPasswordHash) {
		slog.Warn("password change rejected, wrong old password", "account", acc.ID, "from", from)
		return fail(protocol.AuthInvalidCredentials)
	}

	newHash, err := db.HashPassword(req.NewPasswordHash)
	if err != nil {
		slog.Error("password hashing failed", "error", err)
		return fail(protocol.AuthServerError)
	}
	if err := h.accounts.SetPassword(ctx, acc.ID, newHash); err != nil {
		slog.Error("password update failed", "account", acc.ID, "error", err)
		return fail(protocol.AuthServerError)
	}

	// гасим все сессии аккаунта, включая текущую — клиент логинится заново
	ended, err := h.sessions.DeleteByAccount(ctx, acc.ID)
	if err != nil {
		slog.Error("ending sessions failed", "account", acc.ID, "error", err)
		return fail(protocol.AuthServerError)
	}

	slog.Info("password changed", "account", acc.ID, "sessions_ended", ended)
	metrics.AuthResults.WithLabelValues("change_password", "success").Inc()
	return h.respond(protocol.AuthChangePasswordResponse, uint64(acc.ID), hdr.RequestID, protocol.ChangePasswordResponse{
		Result:        protocol.AuthSuccess,
		SessionsEnded: uint32(ended),
	})
}

// openSession issues a fresh token and stores the session.
func (h *Handler) openSession(ctx context.Context, accountID int64, ip string) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	now := h.now()
	s := &model.Session{
		Token:      token,
		AccountID:  accountID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Duration(h.cfg.SessionTTL) * time.Second),
		LastSeenIP: ip,
	}
	if err := h.sessions.Create(ctx, s); err != nil {
		return "", err
	}
	return token, nil
}

func banUntilUnix(acc *model.Account) int64 {
	if acc.BanExpiresAt.IsZero() {
		return 0
	}
	return acc.BanExpiresAt.Unix()
}

func authMsgLabel(t protocol.AuthMsg) string {
	switch t {
	case protocol.AuthRegisterRequest:
		return "register"
	case protocol.AuthLoginRequest:
		return "login"
	case protocol.AuthValidateTokenRequest:
		return "validate"
	case protocol.AuthLogoutRequest:
		return "logout"
	case protocol.AuthChangePasswordRequest:
		return "change_password"
	default:
		return "unknown"
	}
}
