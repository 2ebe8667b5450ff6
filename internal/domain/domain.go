// Package domain holds the plain data types shared between the session
// core and its external collaborators.
package domain

import "time"

// AuthMethod is how a credential record authenticates to the remote host.
type AuthMethod string

const (
	AuthPassword   AuthMethod = "password"
	AuthPrivateKey AuthMethod = "private_key"
)

// CredentialRecord is the read-only view of a connection returned by the
// (out-of-scope) connection store.
type CredentialRecord struct {
	Host       string
	Port       int
	Username   string
	Method     AuthMethod
	Secret     string // password, or private key PEM blob
	Passphrase string // optional, private-key only
}

// CommandEntry is one line appended to a session's command log whenever a
// newline is fed to the SSH input stream.
type CommandEntry struct {
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditRow is the persisted record of one terminal session, written by the
// audit adapter at open and close time.
type AuditRow struct {
	ID               int64
	UserID           string
	ConnectionID     string
	Type             string
	Host             string
	Username         string
	StartTime        time.Time
	EndTime          *time.Time
	DurationSeconds  *int64
	CommandsExecuted []CommandEntry
}
