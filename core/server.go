package core

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-zoox/logger"

	"txcproxy/connector"
	"txcproxy/manager"
)

type Server interface {
	Run() error
}

type server struct {
	Host        string
	Port        int64
	SessionsDir string

	acceptTimeout time.Duration
	newBackend    connector.Factory

	statusPort   int64
	statusSecret string

	sessions  *manager.Manager[*Session]
	startedAt time.Time
}

type ServerConfig struct {
	Host        string `config:"host"`
	Port        int64  `config:"port"`
	SessionsDir string `config:"sessions_dir"`

	// DataAcceptTimeout bounds the wait for the client's data connection
	// after the announcement, in seconds. Zero means wait forever.
	DataAcceptTimeout int64 `config:"data_accept_timeout"`

	StatusPort   int64  `config:"status_port"`
	StatusSecret string `config:"status_secret"`

	// NewBackend is not config-file settable; tests inject fakes here.
	NewBackend connector.Factory
}

func NewServer(cfg *ServerConfig) Server {
	s := &server{
		Host:          cfg.Host,
		Port:          cfg.Port,
		SessionsDir:   cfg.SessionsDir,
		acceptTimeout: time.Duration(cfg.DataAcceptTimeout) * time.Second,
		newBackend:    cfg.NewBackend,
		statusPort:    cfg.StatusPort,
		statusSecret:  cfg.StatusSecret,
		sessions:      manager.New[*Session](),
		startedAt:     time.Now(),
	}

	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.Port == 0 {
		s.Port = 5555
	}
	if s.SessionsDir == "" {
		s.SessionsDir = DefaultSessionsDir
	}
	if cfg.DataAcceptTimeout == 0 {
		s.acceptTimeout = DefaultDataAcceptTimeout * time.Second
	}
	if s.newBackend == nil {
		s.newBackend = connector.NewUpstream
	}

	return s
}

func (s *server) Run() error {
	if s.statusPort != 0 {
		go s.serveStatus()
	}

	addr := net.JoinHostPort(s.Host, strconv.FormatInt(s.Port, 10))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind control listener %s: %v", addr, err)
	}
	defer listener.Close()

	logger.Infof("[server] control channel listening on %s", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Errorf("[server] accept error: %v", err)
			continue
		}

		go s.handle(conn)
	}
}

func (s *server) handle(conn net.Conn) {
	session := NewSession(conn, &SessionOptions{
		Host:          s.Host,
		SessionsDir:   s.SessionsDir,
		AcceptTimeout: s.acceptTimeout,
		NewBackend:    s.newBackend,
	})

	logger.Infof("[server][session: %s] control channel connected from %s", session.ID, conn.RemoteAddr())

	s.sessions.Set(session.ID, session)
	defer s.sessions.Remove(session.ID)

	if err := session.Serve(); err != nil {
		logger.Errorf("[server][session: %s] session failed: %v", session.ID, err)
	}
}
