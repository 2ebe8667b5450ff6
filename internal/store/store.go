// Package store provides the out-of-scope collaborator interfaces the
// session core depends on (connection lookup, audit log persistence) plus
// a SQLite-backed implementation of the audit side.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/sshgw/internal/domain"
)

// ErrConnectionNotFound is returned by ConnectionStore.LoadConnection when
// the (user_id, connection_id) pair does not resolve to a credential
// record.
var ErrConnectionNotFound = errors.New("connection not found")

// ConnectionStore resolves a credential record for a connection id, scoped
// to the owning user. The concrete implementation (backed by the
// connections CRUD surface) is out of scope for this module.
type ConnectionStore interface {
	LoadConnection(ctx context.Context, userID, connectionID string) (domain.CredentialRecord, error)
}

// AuditStore opens and closes the session-log row for a terminal session.
type AuditStore interface {
	// OpenSessionLog creates a row and returns its id. A failure here must
	// not prevent the SSH session from running; callers treat session_log_id
	// as optional.
	OpenSessionLog(ctx context.Context, userID, connectionID, host, username string, start time.Time) (int64, error)

	// CloseSessionLog writes end_time and the (JSON-encoded) command list
	// for an open session-log row.
	CloseSessionLog(ctx context.Context, sessionLogID int64, end time.Time, commands []domain.CommandEntry) error
}
