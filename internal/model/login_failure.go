package model

import "time"

// LoginFailure — одна неудачная попытка входа. Счётчик ведётся по паре
// (username, ip), поэтому блокировка с одного адреса не задевает
// владельца аккаунта за другим.
type LoginFailure struct {
	Username string
	IP       string
	FailedAt time.Time
}
