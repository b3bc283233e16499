package core

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"time"

	"github.com/go-zoox/fs"
	"github.com/go-zoox/logger"
	nanoid "github.com/matoous/go-nanoid/v2"

	"txcproxy/connector"
	"txcproxy/protocol"
)

// Session serves one control connection: announce a fresh data port, accept
// the data connection, then relay commands to the backend until the client
// goes away.
type Session struct {
	ID string

	control net.Conn
	data    net.Conn
	backend connector.Connector

	// dataHost is the bind address for the data listener. It must be the
	// host the control listener is bound on, or a remote client can reach
	// the control channel but never the announced data port.
	dataHost      string
	sessionsDir   string
	acceptTimeout time.Duration
	newBackend    connector.Factory
}

type SessionOptions struct {
	Host          string
	SessionsDir   string
	AcceptTimeout time.Duration
	NewBackend    connector.Factory
}

func NewSession(control net.Conn, opts *SessionOptions) *Session {
	id, _ := nanoid.New()

	host := opts.Host
	if host == "" {
		host = protocol.DefaultControlHost
	}

	return &Session{
		ID:            id,
		control:       control,
		dataHost:      host,
		sessionsDir:   opts.SessionsDir,
		acceptTimeout: opts.AcceptTimeout,
		newBackend:    opts.NewBackend,
	}
}

func (s *Session) Serve() error {
	defer s.teardown()

	if err := s.setup(); err != nil {
		return err
	}

	reader := bufio.NewReader(s.control)
	for {
		doc, err := protocol.ReadDocument(reader)
		if err != nil {
			if err == io.EOF {
				logger.Infof("[session: %s] control channel closed", s.ID)
				return nil
			}
			return err
		}

		resp, err := s.backend.Send(doc)
		if err != nil {
			logger.Warnf("[session: %s] command failed: %v", s.ID, err)
			resp = protocol.ErrorResult(err).Encode()
		}
		if _, err := s.control.Write(resp); err != nil {
			return fmt.Errorf("failed to write acknowledgement: %v", err)
		}
	}
}

// setup binds the data listener, announces its port on the control channel,
// waits for the data connection and starts the backend. The backend is
// created before the announcement so a broken backend fails the session
// before the client commits to a second dial.
func (s *Session) setup() error {
	listener, err := net.Listen("tcp", net.JoinHostPort(s.dataHost, "0"))
	if err != nil {
		return fmt.Errorf("failed to bind data listener: %v", err)
	}
	defer listener.Close()

	dataPort := listener.Addr().(*net.TCPAddr).Port

	logDir := filepath.Join(s.sessionsDir, s.ID)
	if err := fs.Mkdirp(logDir); err != nil {
		return fmt.Errorf("failed to create session dir: %v", err)
	}

	backend, err := s.newBackend(s.ID, logDir)
	if err != nil {
		return fmt.Errorf("failed to create backend: %v", err)
	}
	s.backend = backend

	logger.Infof("[session: %s] announcing data port %d", s.ID, dataPort)
	if err := protocol.WriteAnnouncement(s.control, dataPort); err != nil {
		return err
	}

	if s.acceptTimeout > 0 {
		listener.(*net.TCPListener).SetDeadline(time.Now().Add(s.acceptTimeout))
	}
	data, err := listener.Accept()
	if err != nil {
		if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
			return fmt.Errorf("no data connection within %s", s.acceptTimeout)
		}
		return fmt.Errorf("failed to accept data connection: %v", err)
	}
	s.data = data

	// the data channel is write-only
	if tcp, ok := data.(*net.TCPConn); ok {
		tcp.CloseRead()
	}

	s.backend.SetCallback(func(msg []byte) error {
		_, err := s.data.Write(msg)
		return err
	})

	logger.Infof("[session: %s] data channel connected from %s", s.ID, data.RemoteAddr())
	return nil
}

func (s *Session) teardown() {
	if s.backend != nil {
		s.backend.Close()
	}
	if s.data != nil {
		s.data.Close()
	}
	s.control.Close()
}
