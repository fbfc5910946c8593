// Package notify delivers fire-and-forget notifications out of the sync pipeline.
package notify

import (
	"github.com/kelsos/ledger-sync/internal/logger"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notification struct {
	Level       Level
	ChainID     string
	Title       string
	Description string
}

// Notifier must not block and must not fail
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to a Notifier
type Func func(n Notification)

func (f Func) Notify(n Notification) {
	f(n)
}

// Nop drops every notification
type Nop struct{}

func (Nop) Notify(Notification) {}

// Log writes notifications to the application log
type Log struct{}

func (Log) Notify(n Notification) {
	switch n.Level {
	case LevelError:
		logger.Error("[%s] %s: %s", n.ChainID, n.Title, n.Description)
	case LevelWarning:
		logger.Warn("[%s] %s: %s", n.ChainID, n.Title, n.Description)
	default:
		logger.Info("[%s] %s: %s", n.ChainID, n.Title, n.Description)
	}
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}
