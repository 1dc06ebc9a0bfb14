package coordinator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ironrift/server/internal/config"
	"github.com/ironrift/server/internal/protocol"
	"github.com/ironrift/server/internal/testutil"
	"github.com/ironrift/server/internal/udp"
)

// testConfig wires the coordinator to a stub auth service on loopback.
// Таймеры остаются дефолтными, каждый тест ужимает только нужный ему.
func testConfig(auth *net.UDPAddr) config.Coordinator {
	cfg := config.DefaultCoordinator()
	cfg.BindAddress = "127.0.0.1"
	cfg.AuthHost = "127.0.0.1"
	cfg.AuthPort = auth.Port
	cfg.PlayersPerMatch = 2
	return cfg
}

func startCoordinator(t *testing.T, cfg config.Coordinator) (*Server, *net.UDPAddr) {
	t.Helper()

	srv := NewServer(cfg)

	ep, err := udp.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("binding coordinator endpoint: %v", err)
	}
	authEP, err := udp.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("binding auth-side endpoint: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, ep, authEP)

	return srv, ep.LocalAddr()
}

func sendMM(t *testing.T, client *testutil.UDPClient, typ protocol.MMMsg, playerID, lobbyID uint64, body protocol.Body) {
	t.Helper()
	w := protocol.NewWriter(256)
	client.Send(t, protocol.BuildMM(w, typ, playerID, lobbyID, body))
}

// waitMM reads the client socket until a matchmaking message of the wanted
// type arrives, пропуская статусы очереди и прочий шум.
func waitMM(t *testing.T, client *testutil.UDPClient, typ protocol.MMMsg, timeout time.Duration) (protocol.MMHeader, []byte) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt := client.TryRecv(time.Until(deadline))
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

// waitPeerMM делает то же самое для слушающей заглушки.
func waitPeerMM(t *testing.T, peer *testutil.UDPPeer, typ protocol.MMMsg, timeout time.Duration) (protocol.MMHeader, []byte) {
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

// answerValidation отвечает на следующий запрос валидации токена,
// долетевший до заглушки auth-сервиса.
func answerValidation(t *testing.T, auth *testutil.UDPPeer, accountID uint64, result protocol.AuthResult, banned bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pkt, from := auth.TryRecvFrom(time.Until(deadline))
		if pkt == nil {
			break
		}
		hdr, _, err := protocol.ParseAuth(pkt)
		if err != nil || hdr.Type != protocol.AuthValidateTokenRequest {
			continue
		}
		w := protocol.NewWriter(128)
		auth.SendTo(t, from, protocol.BuildAuth(w, protocol.AuthValidateTokenResponse, accountID, hdr.RequestID, protocol.ValidateTokenResponse{
			Result:    result,
			AccountID: accountID,
			IsBanned:  banned,
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		}))
		return
	}
	t.Fatal("no validation request reached the auth stub")
}

// queuePlayer проводит игрока через токен-валидацию до первого статуса очереди.
func queuePlayer(t *testing.T, client *testutil.UDPClient, auth *testutil.UDPPeer, playerID, accountID uint64) {
	t.Helper()
	sendMM(t, client, protocol.MMQueueRequest, playerID, 0, protocol.QueueRequest{
		Mode:         1,
		Region:       1,
		SessionToken: "session-token",
	})
	answerValidation(t, auth, accountID, protocol.AuthSuccess, false)
	waitMM(t, client, protocol.MMQueueStatus, 2*time.Second)
}

// registerGameServer регистрирует заглушку игрового сервера и дожидается,
// пока координатор её обработает: пробный lookup служит барьером, ответы
// с одного сокета приходят в порядке отправки.
func registerGameServer(t *testing.T, peer *testutil.UDPPeer, coord *net.UDPAddr, serverID uint64, gamePort uint16) {
	t.Helper()
	w := protocol.NewWriter(256)
	peer.SendTo(t, coord, protocol.BuildMM(w, protocol.MMServerRegister, 0, 0, protocol.ServerRegister{
		ServerID: serverID,
		Addr:     "127.0.0.1",
		GamePort: gamePort,
		Capacity: 16,
	}))
	w.Reset()
	peer.SendTo(t, coord, protocol.BuildMM(w, protocol.MMCheckActiveGame, serverID, 0, nil))
	waitPeerMM(t, peer, protocol.MMActiveGameInfo, 2*time.Second)
}

// waitAcceptCount ждёт статус принятия с нужным счётчиком.
func waitAcceptCount(t *testing.T, client *testutil.UDPClient, want uint8, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_, payload := waitMM(t, client, protocol.MMMatchAcceptStatus, time.Until(deadline))
		var st protocol.MatchAcceptStatus
		if err := st.Parse(payload); err != nil {
			t.Fatalf("parsing accept status: %v", err)
		}
		if st.AcceptedCount == want {
			return
		}
	}
	t.Fatalf("no accept status with count %d within %v", want, timeout)
}

// matchTwo проводит двух игроков от очереди до найденного лобби.
func matchTwo(t *testing.T, a, b *testutil.UDPClient, auth *testutil.UDPPeer, accA, accB uint64) uint64 {
	t.Helper()
	queuePlayer(t, a, auth, 1, accA)
	queuePlayer(t, b, auth, 2, accB)

	foundA, _ := waitMM(t, a, protocol.MMMatchFound, 2*time.Second)
	foundB, _ := waitMM(t, b, protocol.MMMatchFound, 2*time.Second)
	if foundA.LobbyID == 0 || foundA.LobbyID != foundB.LobbyID {
		t.Fatalf("lobby ids %d and %d, want one shared non-zero id", foundA.LobbyID, foundB.LobbyID)
	}
	return foundA.LobbyID
}

func TestServer_QueueAdmissionReportsPosition(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	client := testutil.NewUDPClient(t, addr)

	sendMM(t, client, protocol.MMQueueRequest, 101, 0, protocol.QueueRequest{
		Mode: 1, Region: 1, SessionToken: "tok",
	})
	answerValidation(t, auth, 1001, protocol.AuthSuccess, false)

	hdr, payload := waitMM(t, client, protocol.MMQueueStatus, 2*time.Second)
	if hdr.PlayerID != 101 {
		t.Errorf("PlayerID = %d, want 101", hdr.PlayerID)
	}
	var st protocol.QueueStatus
	if err := st.Parse(payload); err != nil {
		t.Fatalf("parsing status: %v", err)
	}
	if st.Position != 1 || st.PlayersInQueue != 1 {
		t.Errorf("status = %+v, want position 1 of 1", st)
	}
}

func TestServer_QueueRequiresToken(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	client := testutil.NewUDPClient(t, addr)

	sendMM(t, client, protocol.MMQueueRequest, 7, 0, protocol.QueueRequest{Mode: 1, Region: 1})

	hdr, payload := waitMM(t, client, protocol.MMQueueRejected, 2*time.Second)
	if hdr.PlayerID != 7 {
		t.Errorf("PlayerID = %d, want 7", hdr.PlayerID)
	}
	var rej protocol.QueueRejected
	if err := rej.Parse(payload); err != nil {
		t.Fatalf("parsing rejection: %v", err)
	}
	if !rej.AuthFailed || rej.Reason != "Authentication required" {
		t.Errorf("rejection = %+v", rej)
	}
}

func TestServer_BannedAccountRejected(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	client := testutil.NewUDPClient(t, addr)

	sendMM(t, client, protocol.MMQueueRequest, 8, 0, protocol.QueueRequest{
		Mode: 1, Region: 1, SessionToken: "tok",
	})
	answerValidation(t, auth, 2002, protocol.AuthSuccess, true)

	_, payload := waitMM(t, client, protocol.MMQueueRejected, 2*time.Second)
	var rej protocol.QueueRejected
	if err := rej.Parse(payload); err != nil {
		t.Fatalf("parsing rejection: %v", err)
	}
	if !rej.IsBanned || !rej.AuthFailed {
		t.Errorf("rejection = %+v, want banned auth failure", rej)
	}
	if rej.Reason != "Account is banned" {
		t.Errorf("Reason = %q", rej.Reason)
	}
}

func TestServer_ExpiredSessionRejected(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	client := testutil.NewUDPClient(t, addr)

	sendMM(t, client, protocol.MMQueueRequest, 9, 0, protocol.QueueRequest{
		Mode: 1, Region: 1, SessionToken: "stale",
	})
	answerValidation(t, auth, 0, protocol.AuthTokenExpired, false)

	_, payload := waitMM(t, client, protocol.MMQueueRejected, 2*time.Second)
	var rej protocol.QueueRejected
	if err := rej.Parse(payload); err != nil {
		t.Fatalf("parsing rejection: %v", err)
	}
	if rej.Reason != "Session expired" || rej.IsBanned {
		t.Errorf("rejection = %+v", rej)
	}
}

func TestServer_ValidationTimeout(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	cfg := testConfig(auth.Addr())
	cfg.ValidationTimeout = 1
	_, addr := startCoordinator(t, cfg)
	client := testutil.NewUDPClient(t, addr)

	// Заглушка auth молчит, очередь должна отказать сама.
	sendMM(t, client, protocol.MMQueueRequest, 10, 0, protocol.QueueRequest{
		Mode: 1, Region: 1, SessionToken: "tok",
	})

	_, payload := waitMM(t, client, protocol.MMQueueRejected, 3*time.Second)
	var rej protocol.QueueRejected
	if err := rej.Parse(payload); err != nil {
		t.Fatalf("parsing rejection: %v", err)
	}
	if rej.Reason != "Auth timeout" || !rej.AuthFailed {
		t.Errorf("rejection = %+v", rej)
	}
}

func TestServer_DuplicateAccountRejected(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	cfg := testConfig(auth.Addr())
	cfg.PlayersPerMatch = 3 // очередь не должна опустеть до второго запроса
	_, addr := startCoordinator(t, cfg)
	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)

	queuePlayer(t, a, auth, 1, 500)

	sendMM(t, b, protocol.MMQueueRequest, 2, 0, protocol.QueueRequest{
		Mode: 1, Region: 1, SessionToken: "tok",
	})
	answerValidation(t, auth, 500, protocol.AuthSuccess, false)

	_, payload := waitMM(t, b, protocol.MMQueueRejected, 2*time.Second)
	var rej protocol.QueueRejected
	if err := rej.Parse(payload); err != nil {
		t.Fatalf("parsing rejection: %v", err)
	}
	if rej.Reason != "Account already queued" {
		t.Errorf("Reason = %q", rej.Reason)
	}
}

func TestServer_CancelQueueStopsStatusUpdates(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	cfg := testConfig(auth.Addr())
	cfg.QueueStatusEvery = 1
	_, addr := startCoordinator(t, cfg)
	client := testutil.NewUDPClient(t, addr)

	queuePlayer(t, client, auth, 11, 600)

	sendMM(t, client, protocol.MMCancelQueue, 11, 0, nil)

	// Гасим статусы, которые могли быть в полёте до отмены.
	for client.TryRecv(300*time.Millisecond) != nil {
	}
	if pkt := client.TryRecv(1500 * time.Millisecond); pkt != nil {
		t.Fatalf("unexpected packet after leaving the queue: % x", pkt)
	}
}

func TestServer_MatchStartFlow(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	gameSrv := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	registerGameServer(t, gameSrv, addr, 9, 28100)

	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)
	lobbyID := matchTwo(t, a, b, auth, 11, 22)

	sendMM(t, a, protocol.MMMatchAccept, 1, lobbyID, nil)
	sendMM(t, b, protocol.MMMatchAccept, 2, lobbyID, nil)

	// Сервер получает состав лобби в порядке очереди.
	asgHdr, payload := waitPeerMM(t, gameSrv, protocol.MMAssignLobby, 2*time.Second)
	var assign protocol.AssignLobby
	if err := assign.Parse(payload); err != nil {
		t.Fatalf("parsing assignment: %v", err)
	}
	if asgHdr.LobbyID != lobbyID || assign.LobbyID != lobbyID {
		t.Errorf("assignment lobby = %d/%d, want %d", asgHdr.LobbyID, assign.LobbyID, lobbyID)
	}
	if assign.ServerID != 9 || assign.ExpectedPlayers != 2 {
		t.Errorf("assignment = %+v", assign)
	}
	if len(assign.Roster) != 2 ||
		assign.Roster[0].AccountID != 11 || assign.Roster[0].TeamSlot != 0 ||
		assign.Roster[1].AccountID != 22 || assign.Roster[1].TeamSlot != 1 {
		t.Errorf("roster = %+v, want accounts 11/22 in slots 0/1", assign.Roster)
	}

	// Оба игрока получают адрес игрового сервера.
	for _, c := range []*testutil.UDPClient{a, b} {
		_, payload := waitMM(t, c, protocol.MMMatchReady, 2*time.Second)
		var ready protocol.MatchReady
		if err := ready.Parse(payload); err != nil {
			t.Fatalf("parsing match ready: %v", err)
		}
		if ready.ServerAddr != "127.0.0.1" || ready.ServerPort != 28100 {
			t.Errorf("match ready = %+v", ready)
		}
	}
}

func TestServer_DeclineRequeuesOnlyAcceptors(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)
	lobbyID := matchTwo(t, a, b, auth, 11, 22)

	sendMM(t, a, protocol.MMMatchAccept, 1, lobbyID, nil)
	// Decline уходит только после того, как accept первого обработан.
	waitAcceptCount(t, b, 1, 2*time.Second)
	sendMM(t, b, protocol.MMMatchDecline, 2, lobbyID, nil)

	_, payloadA := waitMM(t, a, protocol.MMMatchCancelled, 2*time.Second)
	var cancelledA protocol.MatchCancelled
	if err := cancelledA.Parse(payloadA); err != nil {
		t.Fatalf("parsing cancellation: %v", err)
	}
	if cancelledA.DeclinedBy != 2 || !cancelledA.ShouldRequeue {
		t.Errorf("acceptor cancellation = %+v, want requeue blamed on player 2", cancelledA)
	}

	_, payloadB := waitMM(t, b, protocol.MMMatchCancelled, 2*time.Second)
	var cancelledB protocol.MatchCancelled
	if err := cancelledB.Parse(payloadB); err != nil {
		t.Fatalf("parsing cancellation: %v", err)
	}
	if cancelledB.ShouldRequeue {
		t.Error("decliner must not be requeued")
	}

	// Принявший вернулся в хвост очереди.
	_, payload := waitMM(t, a, protocol.MMQueueStatus, 2*time.Second)
	var st protocol.QueueStatus
	if err := st.Parse(payload); err != nil {
		t.Fatalf("parsing status: %v", err)
	}
	if st.Position != 1 || st.PlayersInQueue != 1 {
		t.Errorf("status after requeue = %+v, want position 1 of 1", st)
	}
}

func TestServer_AcceptTimeoutRequeuesAcceptors(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	cfg := testConfig(auth.Addr())
	cfg.AcceptTimeout = 1
	_, addr := startCoordinator(t, cfg)
	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)
	lobbyID := matchTwo(t, a, b, auth, 11, 22)

	// Первый принимает, второй молчит до конца окна.
	sendMM(t, a, protocol.MMMatchAccept, 1, lobbyID, nil)

	_, payloadA := waitMM(t, a, protocol.MMMatchCancelled, 3*time.Second)
	var cancelledA protocol.MatchCancelled
	if err := cancelledA.Parse(payloadA); err != nil {
		t.Fatalf("parsing cancellation: %v", err)
	}
	if cancelledA.Reason != "Accept timeout" || cancelledA.DeclinedBy != 0 {
		t.Errorf("cancellation = %+v", cancelledA)
	}
	if !cancelledA.ShouldRequeue {
		t.Error("acceptor must requeue after a timeout")
	}

	_, payloadB := waitMM(t, b, protocol.MMMatchCancelled, 3*time.Second)
	var cancelledB protocol.MatchCancelled
	if err := cancelledB.Parse(payloadB); err != nil {
		t.Fatalf("parsing cancellation: %v", err)
	}
	if cancelledB.ShouldRequeue {
		t.Error("silent player must not be requeued")
	}

	waitMM(t, a, protocol.MMQueueStatus, 2*time.Second)
}

func TestServer_NoServersCancelsMatch(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)
	lobbyID := matchTwo(t, a, b, auth, 11, 22)

	sendMM(t, a, protocol.MMMatchAccept, 1, lobbyID, nil)
	sendMM(t, b, protocol.MMMatchAccept, 2, lobbyID, nil)

	for _, c := range []*testutil.UDPClient{a, b} {
		_, payload := waitMM(t, c, protocol.MMMatchCancelled, 2*time.Second)
		var cancelled protocol.MatchCancelled
		if err := cancelled.Parse(payload); err != nil {
			t.Fatalf("parsing cancellation: %v", err)
		}
		if cancelled.Reason != "No servers available" {
			t.Errorf("Reason = %q", cancelled.Reason)
		}
		if cancelled.ShouldRequeue {
			t.Error("players must not silently requeue when no server exists")
		}
	}
}

func TestServer_HeartbeatTimeoutEvictsServer(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	gameSrv := testutil.NewUDPPeer(t)
	cfg := testConfig(auth.Addr())
	cfg.HeartbeatTTL = 1
	_, addr := startCoordinator(t, cfg)
	registerGameServer(t, gameSrv, addr, 5, 28200)

	// Сервер замолкает и протухает.
	time.Sleep(1500 * time.Millisecond)

	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)
	lobbyID := matchTwo(t, a, b, auth, 11, 22)
	sendMM(t, a, protocol.MMMatchAccept, 1, lobbyID, nil)
	sendMM(t, b, protocol.MMMatchAccept, 2, lobbyID, nil)

	_, payload := waitMM(t, a, protocol.MMMatchCancelled, 2*time.Second)
	var cancelled protocol.MatchCancelled
	if err := cancelled.Parse(payload); err != nil {
		t.Fatalf("parsing cancellation: %v", err)
	}
	if cancelled.Reason != "No servers available" {
		t.Errorf("Reason = %q, want the evicted server to be gone", cancelled.Reason)
	}
}

func TestServer_AcceptUnknownLobby(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	client := testutil.NewUDPClient(t, addr)

	sendMM(t, client, protocol.MMMatchAccept, 1, 424242, nil)

	_, payload := waitMM(t, client, protocol.MMError, 2*time.Second)
	var msg protocol.ErrorMessage
	if err := msg.Parse(payload); err != nil {
		t.Fatalf("parsing error message: %v", err)
	}
	if msg.Message != "Lobby no longer exists" {
		t.Errorf("Message = %q", msg.Message)
	}
}

// pollActiveGame опрашивает directory, пока не увидит нужное состояние.
func pollActiveGame(t *testing.T, client *testutil.UDPClient, accountID uint64, wantGame bool, timeout time.Duration) protocol.ActiveGameInfo {
	t.Helper()
	var info protocol.ActiveGameInfo
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		sendMM(t, client, protocol.MMCheckActiveGame, accountID, 0, nil)
		pkt := client.TryRecv(200 * time.Millisecond)
		if pkt == nil {
			continue
		}
		hdr, payload, err := protocol.ParseMM(pkt)
		if err != nil || hdr.Type != protocol.MMActiveGameInfo {
			continue
		}
		if err := info.Parse(payload); err != nil {
			t.Fatalf("parsing active game info: %v", err)
		}
		if info.HasGame == wantGame {
			return info
		}
	}
	t.Fatalf("directory never reported HasGame=%v for account %d", wantGame, accountID)
	return info
}

func TestServer_DisconnectReconnectFlow(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	gameSrv := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	registerGameServer(t, gameSrv, addr, 9, 28100)

	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)
	lobbyID := matchTwo(t, a, b, auth, 42, 22)
	sendMM(t, a, protocol.MMMatchAccept, 1, lobbyID, nil)
	sendMM(t, b, protocol.MMMatchAccept, 2, lobbyID, nil)
	waitMM(t, a, protocol.MMMatchReady, 2*time.Second)
	waitMM(t, b, protocol.MMMatchReady, 2*time.Second)

	// Игрок отвалился посреди матча, сервер отчитывается координатору.
	w := protocol.NewWriter(256)
	gameSrv.SendTo(t, addr, protocol.BuildMM(w, protocol.MMPlayerDisconnected, 0, lobbyID, protocol.PlayerDisconnected{
		ServerID:  9,
		LobbyID:   lobbyID,
		AccountID: 42,
		TeamSlot:  0,
		HeroName:  "Warrior",
	}))

	// Клиент перезапустился: новый сокет, запрос активной игры.
	rc := testutil.NewUDPClient(t, addr)
	info := pollActiveGame(t, rc, 42, true, 2*time.Second)
	if !info.CanReconnect {
		t.Error("CanReconnect = false inside the grace window")
	}
	if info.LobbyID != lobbyID || info.ServerAddr != "127.0.0.1" || info.ServerPort != 28100 {
		t.Errorf("active game info = %+v", info)
	}
	if info.TeamSlot != 0 || info.HeroName != "Warrior" {
		t.Errorf("hero identity = slot %d %q, want slot 0 Warrior", info.TeamSlot, info.HeroName)
	}

	// Чужое лобби отклоняется.
	sendMM(t, rc, protocol.MMReconnectRequest, 42, 0, protocol.ReconnectRequest{LobbyID: lobbyID + 1})
	_, payload := waitMM(t, rc, protocol.MMReconnectResponse, 2*time.Second)
	var deny protocol.ReconnectResponse
	if err := deny.Parse(payload); err != nil {
		t.Fatalf("parsing reconnect response: %v", err)
	}
	if deny.Approved || deny.Reason != "Lobby mismatch" {
		t.Errorf("response = %+v, want a lobby mismatch denial", deny)
	}

	// Правильный запрос одобряется и ведёт на тот же сервер.
	sendMM(t, rc, protocol.MMReconnectRequest, 42, lobbyID, protocol.ReconnectRequest{LobbyID: lobbyID})
	_, payload = waitMM(t, rc, protocol.MMReconnectResponse, 2*time.Second)
	var approved protocol.ReconnectResponse
	if err := approved.Parse(payload); err != nil {
		t.Fatalf("parsing reconnect response: %v", err)
	}
	if !approved.Approved {
		t.Fatalf("response = %+v, want approval", approved)
	}
	if approved.ServerAddr != "127.0.0.1" || approved.ServerPort != 28100 {
		t.Errorf("server endpoint = %s:%d", approved.ServerAddr, approved.ServerPort)
	}
	if approved.TeamSlot != 0 || approved.HeroName != "Warrior" {
		t.Errorf("hero identity = slot %d %q", approved.TeamSlot, approved.HeroName)
	}

	// Сервер отчитался о возвращении, directory гасит запись.
	w.Reset()
	gameSrv.SendTo(t, addr, protocol.BuildMM(w, protocol.MMPlayerReconnected, 0, lobbyID, protocol.PlayerReconnected{
		ServerID:  9,
		LobbyID:   lobbyID,
		AccountID: 42,
	}))
	pollActiveGame(t, rc, 42, false, 2*time.Second)
}

func TestServer_ReconnectWindowExpires(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	gameSrv := testutil.NewUDPPeer(t)
	cfg := testConfig(auth.Addr())
	cfg.ReconnectGrace = 1
	_, addr := startCoordinator(t, cfg)
	registerGameServer(t, gameSrv, addr, 9, 28100)

	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)
	lobbyID := matchTwo(t, a, b, auth, 11, 22)
	sendMM(t, a, protocol.MMMatchAccept, 1, lobbyID, nil)
	sendMM(t, b, protocol.MMMatchAccept, 2, lobbyID, nil)
	waitMM(t, a, protocol.MMMatchReady, 2*time.Second)

	w := protocol.NewWriter(256)
	gameSrv.SendTo(t, addr, protocol.BuildMM(w, protocol.MMPlayerDisconnected, 0, lobbyID, protocol.PlayerDisconnected{
		ServerID:  9,
		LobbyID:   lobbyID,
		AccountID: 11,
		TeamSlot:  0,
		HeroName:  "Warrior",
	}))

	// Пересиживаем окно реконнекта.
	time.Sleep(1500 * time.Millisecond)

	rc := testutil.NewUDPClient(t, addr)
	info := pollActiveGame(t, rc, 11, true, 2*time.Second)
	if info.CanReconnect {
		t.Error("CanReconnect = true after the grace window")
	}

	sendMM(t, rc, protocol.MMReconnectRequest, 11, lobbyID, protocol.ReconnectRequest{LobbyID: lobbyID})
	_, payload := waitMM(t, rc, protocol.MMReconnectResponse, 2*time.Second)
	var deny protocol.ReconnectResponse
	if err := deny.Parse(payload); err != nil {
		t.Fatalf("parsing reconnect response: %v", err)
	}
	if deny.Approved || deny.Reason != "Reconnect window expired" {
		t.Errorf("response = %+v, want an expiry denial", deny)
	}
}

func TestServer_ActiveGameBlocksRequeue(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	gameSrv := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	registerGameServer(t, gameSrv, addr, 9, 28100)

	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)
	lobbyID := matchTwo(t, a, b, auth, 11, 22)
	sendMM(t, a, protocol.MMMatchAccept, 1, lobbyID, nil)
	sendMM(t, b, protocol.MMMatchAccept, 2, lobbyID, nil)
	waitMM(t, a, protocol.MMMatchReady, 2*time.Second)

	// Аккаунт в активной игре не пускают в очередь заново.
	c := testutil.NewUDPClient(t, addr)
	sendMM(t, c, protocol.MMQueueRequest, 3, 0, protocol.QueueRequest{
		Mode: 1, Region: 1, SessionToken: "tok",
	})
	answerValidation(t, auth, 11, protocol.AuthSuccess, false)

	_, payload := waitMM(t, c, protocol.MMQueueRejected, 2*time.Second)
	var rej protocol.QueueRejected
	if err := rej.Parse(payload); err != nil {
		t.Fatalf("parsing rejection: %v", err)
	}
	if rej.Reason != "Account has an active game" {
		t.Errorf("Reason = %q", rej.Reason)
	}
}

func TestServer_GameEndedFreesServerAndDirectory(t *testing.T) {
	auth := testutil.NewUDPPeer(t)
	gameSrv := testutil.NewUDPPeer(t)
	_, addr := startCoordinator(t, testConfig(auth.Addr()))
	registerGameServer(t, gameSrv, addr, 9, 28100)

	a := testutil.NewUDPClient(t, addr)
	b := testutil.NewUDPClient(t, addr)
	lobbyID := matchTwo(t, a, b, auth, 11, 22)
	sendMM(t, a, protocol.MMMatchAccept, 1, lobbyID, nil)
	sendMM(t, b, protocol.MMMatchAccept, 2, lobbyID, nil)
	waitMM(t, a, protocol.MMMatchReady, 2*time.Second)
	waitMM(t, b, protocol.MMMatchReady, 2*time.Second)

	// Матч закончился, сервер отчитывается и снова свободен.
	w := protocol.NewWriter(256)
	gameSrv.SendTo(t, addr, protocol.BuildMM(w, protocol.MMGameEnded, 0, lobbyID, protocol.GameEnded{
		ServerID:    9,
		LobbyID:     lobbyID,
		WinningTeam: 1,
		DurationSec: 60,
	}))
	// Барьер: дожидаемся обработки отчёта.
	w.Reset()
	gameSrv.SendTo(t, addr, protocol.BuildMM(w, protocol.MMCheckActiveGame, 12345, 0, nil))
	waitPeerMM(t, gameSrv, protocol.MMActiveGameInfo, 2*time.Second)

	// Те же аккаунты проходят матчмейкинг ещё раз: directory очищена,
	// резервация сервера снята.
	c := testutil.NewUDPClient(t, addr)
	d := testutil.NewUDPClient(t, addr)
	queuePlayer(t, c, auth, 3, 11)
	queuePlayer(t, d, auth, 4, 22)

	foundC, _ := waitMM(t, c, protocol.MMMatchFound, 2*time.Second)
	waitMM(t, d, protocol.MMMatchFound, 2*time.Second)
	sendMM(t, c, protocol.MMMatchAccept, 3, foundC.LobbyID, nil)
	sendMM(t, d, protocol.MMMatchAccept, 4, foundC.LobbyID, nil)

	_, payload := waitMM(t, c, protocol.MMMatchReady, 2*time.Second)
	var ready protocol.MatchReady
	if err := ready.Parse(payload); err != nil {
		t.Fatalf("parsing match ready: %v", err)
	}
	if ready.ServerPort != 28100 {
		t.Errorf("ServerPort = %d, want the same released server", ready.ServerPort)
	}
}
