package connector

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-zoox/logger"

	"txcproxy/protocol"
)

// Upstream relays commands to the trade server named in the connect command.
// It speaks the same wire format as the control channel: NUL-terminated XML
// documents in both directions. Documents the upstream pushes on its own are
// handed to the session callback, which streams them to the data channel.
type Upstream struct {
	sessionID string
	logFile   *os.File

	mu       sync.Mutex
	conn     net.Conn
	callback func(msg []byte) error

	dialTimeout time.Duration
}

// NewUpstream is the default session backend factory.
func NewUpstream(sessionID, logDir string) (Connector, error) {
	logFile, err := os.OpenFile(
		filepath.Join(logDir, "commands.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0o644,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open session command log: %v", err)
	}

	return &Upstream{
		sessionID:   sessionID,
		logFile:     logFile,
		dialTimeout: 10 * time.Second,
	}, nil
}

func (u *Upstream) SetCallback(fn func(msg []byte) error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.callback = fn
}

func (u *Upstream) Send(doc []byte) ([]byte, error) {
	command, err := protocol.ParseCommand(doc)
	if err != nil {
		return nil, err
	}

	u.logCommand(doc)

	switch command.ID {
	case protocol.CommandConnect:
		err = u.connect(command, doc)
	case protocol.CommandDisconnect:
		err = u.disconnect()
	default:
		err = u.forward(doc)
	}
	if err != nil {
		return nil, err
	}

	return protocol.OK().Encode(), nil
}

func (u *Upstream) connect(command *protocol.Command, doc []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn != nil {
		return ErrAlreadyConnected
	}
	if command.Host == "" || command.Port == 0 {
		return fmt.Errorf("connect command without upstream host/port")
	}

	addr := net.JoinHostPort(command.Host, strconv.Itoa(command.Port))
	logger.Infof("[connector][session: %s] connecting upstream %s", u.sessionID, addr)

	conn, err := net.DialTimeout("tcp", addr, u.dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect upstream %s: %v", addr, err)
	}

	if err := protocol.WriteDocument(conn, doc); err != nil {
		conn.Close()
		return err
	}

	u.conn = conn
	go u.readLoop(conn)

	return nil
}

func (u *Upstream) disconnect() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return ErrNotConnected
	}

	logger.Infof("[connector][session: %s] disconnecting upstream", u.sessionID)
	u.conn.Close()
	u.conn = nil

	return nil
}

func (u *Upstream) forward(doc []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return ErrNotConnected
	}

	return protocol.WriteDocument(u.conn, doc)
}

// readLoop consumes upstream documents and feeds them to the callback until
// the upstream closes or the session disconnects.
func (u *Upstream) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		msg, err := protocol.ReadDocument(reader)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				logger.Infof("[connector][session: %s] upstream closed", u.sessionID)
			} else {
				logger.Errorf("[connector][session: %s] upstream read error: %v", u.sessionID, err)
			}

			u.mu.Lock()
			if u.conn == conn {
				u.conn.Close()
				u.conn = nil
			}
			u.mu.Unlock()
			return
		}

		u.mu.Lock()
		callback := u.callback
		u.mu.Unlock()

		if callback == nil {
			continue
		}
		if err := callback(msg); err != nil {
			logger.Errorf("[connector][session: %s] failed to deliver upstream message: %v", u.sessionID, err)
			return
		}
	}
}

func (u *Upstream) logCommand(doc []byte) {
	if u.logFile == nil {
		return
	}

	entry := append(protocol.MaskSecrets(doc), '\n')
	if _, err := u.logFile.Write(entry); err != nil {
		logger.Warnf("[connector][session: %s] failed to log command: %v", u.sessionID, err)
	}
}

func (u *Upstream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn != nil {
		u.conn.Close()
		u.conn = nil
	}
	if u.logFile != nil {
		u.logFile.Close()
		u.logFile = nil
	}

	return nil
}
