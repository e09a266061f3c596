package health

import (
	"context"
	"errors"
)

// Pinger is anything that can probe its backing dependency, such as the
// Postgres leaderboard store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps a Pinger as a named [Checker].
func PingChecker(name string, p Pinger) Checker {
	return Checker{
		Name:  name,
		Check: p.Ping,
	}
}

// BoolChecker wraps a boolean probe, such as a circuit breaker's admit state,
// as a named [Checker].
func BoolChecker(name string, healthy func() bool) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !healthy() {
				return errors.New("unavailable")
			}
			return nil
		},
	}
}
