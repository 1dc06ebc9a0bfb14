package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ironrift/server/internal/protocol"
	"github.com/ironrift/server/internal/testutil"
)

// schemaCounter provides unique schema names for parallel suites.
var schemaCounter atomic.Uint32

// acquireSchema creates an isolated PostgreSQL schema and returns DSN with search_path.
// Schema is automatically dropped via t.Cleanup.
func acquireSchema(t testing.TB) string {
	t.Helper()
	ctx := context.Background()

	schemaName := fmt.Sprintf("test_%d", schemaCounter.Add(1))

	conn, err := pgx.Connect(ctx, sharedPGBaseDSN)
	if err != nil {
		t.Fatalf("connect to shared postgres: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE SCHEMA "+schemaName); err != nil {
		t.Fatalf("create schema %s: %v", schemaName, err)
	}

	t.Cleanup(func() {
		cleanCtx := context.Background()
		cleanConn, err := pgx.Connect(cleanCtx, sharedPGBaseDSN)
		if err != nil {
			t.Logf("cleanup: connect failed: %v", err)
			return
		}
		defer cleanConn.Close(cleanCtx)
		if _, err := cleanConn.Exec(cleanCtx, "DROP SCHEMA "+schemaName+" CASCADE"); err != nil {
			t.Logf("cleanup: drop schema %s: %v", schemaName, err)
		}
	})

	// Append search_path to DSN
	sep := "&"
	if !strings.Contains(sharedPGBaseDSN, "?") {
		sep = "?"
	}
	return sharedPGBaseDSN + sep + "search_path=" + schemaName
}

// requestCounter выдаёт уникальные request id для auth пакетов, чтобы
// сопоставлять ответы независимо от порядка доставки.
var requestCounter atomic.Uint32

func nextRequestID() uint32 {
	return requestCounter.Add(1)
}

// clientHash имитирует клиентский hex SHA-256 дайджест пароля.
func clientHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func buildAuthPkt(typ protocol.AuthMsg, accountID uint64, requestID uint32, body protocol.Body) []byte {
	return protocol.BuildAuth(protocol.NewWriter(512), typ, accountID, requestID, body)
}

func buildMMPkt(typ protocol.MMMsg, playerID, lobbyID uint64, body protocol.Body) []byte {
	return protocol.BuildMM(protocol.NewWriter(512), typ, playerID, lobbyID, body)
}

func buildGamePkt(typ protocol.GameMsg, seq uint32, body protocol.Body) []byte {
	return protocol.BuildGame(protocol.NewWriter(512), typ, seq, body)
}

// awaitAuth читает сокет до ответа auth-сервиса с нужным типом и request id.
func awaitAuth(t testing.TB, c *testutil.UDPClient, typ protocol.AuthMsg, requestID uint32, timeout time.Duration) (protocol.AuthHeader, []byte) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt := c.TryRecv(time.Until(deadline))
		if pkt == nil {
			break
		}
		hdr, payload, err := protocol.ParseAuth(pkt)
		if err != nil {
			continue
		}
		if hdr.Type == typ && hdr.RequestID == requestID {
			return hdr, payload
		}
	}
	t.Fatalf("no auth message of type %d (request %d) within %v", typ, requestID, timeout)
	return protocol.AuthHeader{}, nil
}

// awaitMM читает сокет до матчмейкинг-сообщения нужного типа, пропуская
// статусы очереди и прочий шум.
func awaitMM(t testing.TB, c *testutil.UDPClient, typ protocol.MMMsg, timeout time.Duration) (protocol.MMHeader, []byte) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt := c.TryRecv(time.Until(deadline))
		if pkt == nil {
			break
		}
		hdr, payload, err := protocol.ParseMM(pkt)
		if err != nil {
			continue
		}
		if hdr.Type == typ {
			return hdr, payload
		}
	}
	t.Fatalf("no matchmaking message of type %d within %v", typ, timeout)
	return protocol.MMHeader{}, nil
}

// awaitPeerMM делает то же самое для слушающей заглушки.
func awaitPeerMM(t testing.TB, peer *testutil.UDPPeer, typ protocol.MMMsg, timeout time.Duration) (protocol.MMHeader, []byte) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt, _ := peer.TryRecvFrom(time.Until(deadline))
		if pkt == nil {
			break
		}
		hdr, payload, err := protocol.ParseMM(pkt)
		if err != nil {
			continue
		}
		if hdr.Type == typ {
			return hdr, payload
		}
	}
	t.Fatalf("no matchmaking message of type %d within %v", typ, timeout)
	return protocol.MMHeader{}, nil
}

// awaitGame читает сокет до игрового сообщения нужного типа.
func awaitGame(t testing.TB, c *testutil.UDPClient, typ protocol.GameMsg, timeout time.Duration) (protocol.GameHeader, []byte) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt := c.TryRecv(time.Until(deadline))
		if pkt == nil {
			break
		}
		hdr, payload, err := protocol.ParseGame(pkt)
		if err != nil {
			continue
		}
		if hdr.Type == typ {
			return hdr, payload
		}
	}
	t.Fatalf("no game message of type %d within %v", typ, timeout)
	return protocol.GameHeader{}, nil
}

// registerAccount регистрирует свежий аккаунт через реальный auth-сервис.
func registerAccount(t testing.TB, authAddr net.Addr, username string) (accountID uint64, token string) {
	t.Helper()

	c := testutil.NewUDPClient(t, authAddr)
	defer c.Close()

	reqID := nextRequestID()
	c.Send(t, buildAuthPkt(protocol.AuthRegisterRequest, 0, reqID, protocol.RegisterRequest{
		Username:     username,
		PasswordHash: clientHash(username + "-pass"),
		Email:        username + "@example.com",
	}))

	_, payload := awaitAuth(t, c, protocol.AuthRegisterResponse, reqID, 3*time.Second)
	var resp protocol.RegisterResponse
	if err := resp.Parse(payload); err != nil {
		t.Fatalf("parsing register response: %v", err)
	}
	if resp.Result != protocol.AuthSuccess {
		t.Fatalf("registering %q: %s", username, resp.Result)
	}
	return resp.AccountID, resp.SessionToken
}
