package testutil

import (
	"context"
	"net"
	"testing"
	"time"
)

// WaitForAddr ждёт пока сервер опубликует свой адрес (polling с timeout).
// Используется вместо time.Sleep для синхронизации в integration тестах.
//
// Пример:
//
//	go srv.Run(ctx)
//	addr := testutil.WaitForAddr(t, srv.Addr, 5*time.Second)
func WaitForAddr(t testing.TB, addr func() net.Addr, timeout time.Duration) net.Addr {
	t.Helper()

	var got net.Addr
	WaitForCondition(t, func() bool {
		got = addr()
		return got != nil
	}, timeout)
	return got
}

// WaitForCondition ждёт пока condition будет выполнено (polling с timeout).
//
// Пример:
//
//	client.Close()
//	testutil.WaitForCondition(t, func() bool {
//	    return srv.ClientCount() == 0
//	}, 5*time.Second)
func WaitForCondition(t testing.TB, check func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("timeout: condition not met within %v", timeout)
		case <-ticker.C:
			if check() {
				return
			}
		}
	}
}
