// internal/app/system/eventlog/eventlog.go
// Package eventlog records negotiation events. Every entry goes to zap as a
// structured line and, depending on the configured mode, to the auth_events
// collection in MongoDB.
package eventlog

// Terminology: Identifiers
//   - LoginID / loginID / login_id: The opaque id of one authentication attempt (a login record)
//   - Username / username: The human-readable string users type to log in
//   - PrincipalID / principal_id: The verified user's id (user _id as hex)

import (
	"context"
	"time"

	"github.com/dalemusser/strataauth/internal/app/store/audit"
	"go.uber.org/zap"
)

// Modes for Config.Mode.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off" // disabled
)

// Entry is one event plus the context it happened in.
type Entry struct {
	Event       string
	LoginID     string
	SessionID   string
	IP          string
	Username    string
	PrincipalID string
	SchemeID    string
	Success     bool
	Reason      string
	At          time.Time
}

// Sink persists entries. *audit.Store satisfies it.
type Sink interface {
	Log(ctx context.Context, event audit.Event) error
}

// Config holds event logging configuration.
type Config struct {
	// Mode is one of "all", "db", "log", or "off". Empty means "all".
	Mode string
}

// Logger writes entries to zap and the sink.
// A nil *Logger is valid and discards everything.
type Logger struct {
	sink   Sink
	zapLog *zap.Logger
	mode   string
}

// New creates an event Logger. sink may be nil, in which case only zap is used.
func New(sink Sink, zapLog *zap.Logger, cfg Config) *Logger {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeAll
	}
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{sink: sink, zapLog: zapLog, mode: mode}
}

// fields builds the structured context for one entry. The slice is local to
// the call, so nothing carries over into the next entry.
func (e Entry) fields() []zap.Field {
	fields := []zap.Field{
		zap.String("event", e.Event),
		zap.String("login_id", e.LoginID),
		zap.Bool("success", e.Success),
	}
	if e.SessionID != "" {
		fields = append(fields, zap.String("session_id", e.SessionID))
	}
	if e.IP != "" {
		fields = append(fields, zap.String("ip", e.IP))
	}
	if e.Username != "" {
		fields = append(fields, zap.String("username", e.Username))
	}
	if e.PrincipalID != "" {
		fields = append(fields, zap.String("principal_id", e.PrincipalID))
	}
	if e.SchemeID != "" {
		fields = append(fields, zap.String("scheme_id", e.SchemeID))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	return fields
}

// Log records an entry according to the configured mode.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if l == nil || l.mode == ModeOff {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	if l.mode == ModeAll || l.mode == ModeLog {
		if e.Success {
			l.zapLog.Info("auth event", e.fields()...)
		} else {
			l.zapLog.Warn("auth event", e.fields()...)
		}
	}

	if (l.mode == ModeAll || l.mode == ModeDB) && l.sink != nil {
		err := l.sink.Log(ctx, audit.Event{
			CreatedAt:     e.At,
			EventType:     e.Event,
			LoginID:       e.LoginID,
			SessionID:     e.SessionID,
			IP:            e.IP,
			Username:      e.Username,
			PrincipalID:   e.PrincipalID,
			SchemeID:      e.SchemeID,
			Success:       e.Success,
			FailureReason: e.Reason,
		})
		if err != nil {
			l.zapLog.Error("failed to store auth event",
				zap.Error(err),
				zap.String("event", e.Event),
				zap.String("login_id", e.LoginID))
		}
	}
}
