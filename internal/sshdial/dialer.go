// Package sshdial establishes outbound SSH connections and opens the PTY
// channel a Session pumps bytes over.
package sshdial

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/ashureev/sshgw/internal/domain"
)

// ErrKind classifies a dial failure the way §4.3 requires.
type ErrKind string

const (
	ErrAuthFailed ErrKind = "auth_failed"
	ErrTimeout    ErrKind = "timeout"
	ErrNetwork    ErrKind = "network"
	ErrProtocol   ErrKind = "protocol"
	ErrOther      ErrKind = "other"
)

// authFailedMessage is the literal text surfaced to the browser on an
// authentication failure, taken from the original implementation's error
// mapping.
const authFailedMessage = "认证失败：用户名或密码/密钥错误"

// DialError wraps a dial failure with its classification.
type DialError struct {
	Kind    ErrKind
	Message string
}

func (e *DialError) Error() string { return e.Message }

// PTYCols and PTYRows are the initial terminal dimensions opened for every
// dialed session.
const (
	PTYCols = 120
	PTYRows = 30
)

// Channel is the duplex PTY channel a Session pumps bytes over: Write
// sends keystrokes, Read receives shell output, WindowChange resizes the
// PTY, Close tears down the SSH session and transport together.
type Channel struct {
	sess   *ssh.Session
	client *ssh.Client
	stdin  io.WriteCloser
	stdout io.Reader
}

func (c *Channel) Write(p []byte) (int, error) { return c.stdin.Write(p) }
func (c *Channel) Read(p []byte) (int, error)  { return c.stdout.Read(p) }

func (c *Channel) WindowChange(rows, cols int) error {
	return c.sess.WindowChange(rows, cols)
}

func (c *Channel) Close() error {
	sessErr := c.sess.Close()
	clientErr := c.client.Close()
	if sessErr != nil {
		return sessErr
	}
	return clientErr
}

// Dialer opens SSH transports per the resolved credential record.
type Dialer struct {
	// Timeout bounds the TCP+handshake dial. Defaults to 10s.
	Timeout time.Duration
	// HostKeyCallback verifies the remote host key. Defaults to
	// ssh.InsecureIgnoreHostKey — host-key verification is disabled by
	// default (a development posture); production deployments should set
	// this to a real known_hosts-backed callback.
	HostKeyCallback ssh.HostKeyCallback
}

// NewDialer builds a Dialer with the given timeout. A zero timeout uses
// the 10-second default.
func NewDialer(timeout time.Duration) *Dialer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dialer{Timeout: timeout, HostKeyCallback: ssh.InsecureIgnoreHostKey()}
}

// Dial connects to cred's host, authenticates, and opens an interactive
// PTY shell sized 120x30 with xterm-256color.
func (d *Dialer) Dial(cred domain.CredentialRecord) (*Channel, error) {
	authMethods, cleanup, err := d.authMethods(cred)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            authMethods,
		HostKeyCallback: d.HostKeyCallback,
		Timeout:         d.Timeout,
	}

	addr := fmt.Sprintf("%s:%d", cred.Host, cred.Port)
	conn, err := net.DialTimeout("tcp", addr, d.Timeout)
	if err != nil {
		return nil, classifyDialError(err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, classifyDialError(err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, &DialError{Kind: ErrProtocol, Message: err.Error()}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm-256color", PTYRows, PTYCols, modes); err != nil {
		_ = sess.Close()
		_ = client.Close()
		return nil, &DialError{Kind: ErrProtocol, Message: fmt.Sprintf("request pty: %v", err)}
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		_ = client.Close()
		return nil, &DialError{Kind: ErrProtocol, Message: fmt.Sprintf("stdin pipe: %v", err)}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		_ = client.Close()
		return nil, &DialError{Kind: ErrProtocol, Message: fmt.Sprintf("stdout pipe: %v", err)}
	}

	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		_ = client.Close()
		return nil, &DialError{Kind: ErrProtocol, Message: fmt.Sprintf("start shell: %v", err)}
	}

	return &Channel{sess: sess, client: client, stdin: stdin, stdout: stdout}, nil
}

// authMethods builds the ssh.AuthMethod list for cred. For private-key
// auth it materialises the key to a 0400 temp file. If parsing fails the
// file is removed before returning; otherwise the returned cleanup removes
// it, which Dial defers until the dial has finished.
func (d *Dialer) authMethods(cred domain.CredentialRecord) ([]ssh.AuthMethod, func(), error) {
	switch cred.Method {
	case domain.AuthPassword:
		return []ssh.AuthMethod{ssh.Password(cred.Secret)}, nil, nil

	case domain.AuthPrivateKey:
		keyFile, err := os.CreateTemp("", "sshgw-key-*")
		if err != nil {
			return nil, nil, &DialError{Kind: ErrOther, Message: fmt.Sprintf("create temp key file: %v", err)}
		}
		path := keyFile.Name()
		cleanup := func() { _ = os.Remove(path) }

		if _, err := keyFile.WriteString(cred.Secret); err != nil {
			_ = keyFile.Close()
			cleanup()
			return nil, nil, &DialError{Kind: ErrOther, Message: fmt.Sprintf("write temp key file: %v", err)}
		}
		if err := keyFile.Close(); err != nil {
			cleanup()
			return nil, nil, &DialError{Kind: ErrOther, Message: fmt.Sprintf("close temp key file: %v", err)}
		}
		if err := os.Chmod(path, 0400); err != nil {
			cleanup()
			return nil, nil, &DialError{Kind: ErrOther, Message: fmt.Sprintf("chmod temp key file: %v", err)}
		}

		// The key is parsed from cred.Secret directly below; the 0400 file
		// above exists only to satisfy the materialise-to-disk posture, not
		// because ssh.ParsePrivateKey needs a path.
		keyBytes := []byte(cred.Secret)
		var signer ssh.Signer
		if cred.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(cred.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			cleanup()
			return nil, nil, &DialError{Kind: ErrAuthFailed, Message: authFailedMessage}
		}

		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, cleanup, nil

	default:
		return nil, nil, &DialError{Kind: ErrOther, Message: fmt.Sprintf("unsupported auth method: %s", cred.Method)}
	}
}

// classifyDialError maps a low-level dial/auth error to the error-kind
// taxonomy in §7/§4.3.
func classifyDialError(err error) *DialError {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "auth"):
		return &DialError{Kind: ErrAuthFailed, Message: authFailedMessage}
	case netErr(err) != nil && netErr(err).Timeout():
		return &DialError{Kind: ErrTimeout, Message: "连接超时（10秒）"}
	case strings.Contains(msg, "ssh: "):
		return &DialError{Kind: ErrProtocol, Message: msg}
	default:
		return &DialError{Kind: ErrNetwork, Message: msg}
	}
}

func netErr(err error) net.Error {
	if ne, ok := err.(net.Error); ok {
		return ne
	}
	return nil
}
