package core

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"txcproxy/connector"
	"txcproxy/protocol"
)

// fakeBackend records commands and pushes one async message when it sees a
// connect command.
type fakeBackend struct {
	callback      func([]byte) error
	docs          chan []byte
	pushOnConnect []byte
}

func (f *fakeBackend) Send(doc []byte) ([]byte, error) {
	command, err := protocol.ParseCommand(doc)
	if err != nil {
		return nil, err
	}
	f.docs <- doc

	if command.ID == "bad" {
		return nil, errors.New("boom")
	}
	if command.ID == protocol.CommandConnect && f.pushOnConnect != nil {
		if err := f.callback(f.pushOnConnect); err != nil {
			return nil, err
		}
	}

	return protocol.OK().Encode(), nil
}

func (f *fakeBackend) SetCallback(fn func([]byte) error) {
	f.callback = fn
}

func (f *fakeBackend) Close() error {
	return nil
}

func TestSessionServe(t *testing.T) {
	backend := &fakeBackend{
		docs:          make(chan []byte, 16),
		pushOnConnect: []byte("<markets/>"),
	}
	sessionsDir := t.TempDir()

	controlServer, controlClient := net.Pipe()
	session := NewSession(controlServer, &SessionOptions{
		SessionsDir:   sessionsDir,
		AcceptTimeout: 5 * time.Second,
		NewBackend: func(sessionID, logDir string) (connector.Connector, error) {
			return backend, nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- session.Serve() }()

	// the data port arrives first
	dataPort, err := protocol.ReadAnnouncement(controlClient)
	if err != nil {
		t.Fatalf("failed to read announcement %s", err)
	}

	data, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(dataPort)))
	if err != nil {
		t.Fatalf("failed to connect data channel %s", err)
	}
	defer data.Close()

	// connect command: acked on control, async message on data
	if err := protocol.WriteDocument(controlClient, protocol.DefaultConnect().Encode()); err != nil {
		t.Fatalf("failed to write command %s", err)
	}

	ack := make([]byte, protocol.MaxAckLength)
	n, err := controlClient.Read(ack)
	if err != nil {
		t.Fatalf("failed to read ack %s", err)
	}
	result, err := protocol.ParseResult(ack[:n])
	if err != nil {
		t.Fatalf("failed to parse ack %s", err)
	}
	if !result.Success {
		t.Fatalf("Success not match, expect true, but got false")
	}

	data.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	n, err = data.Read(buf)
	if err != nil {
		t.Fatalf("failed to read data channel %s", err)
	}
	if string(buf[:n]) != "<markets/>" {
		t.Fatalf("message not match, expect %q, but got %q", "<markets/>", buf[:n])
	}

	// backend failures become error results, the session stays up
	if err := protocol.WriteDocument(controlClient, []byte(`<command id="bad"/>`)); err != nil {
		t.Fatalf("failed to write command %s", err)
	}
	n, err = controlClient.Read(ack)
	if err != nil {
		t.Fatalf("failed to read ack %s", err)
	}
	result, err = protocol.ParseResult(ack[:n])
	if err != nil {
		t.Fatalf("failed to parse ack %s", err)
	}
	if result.Success {
		t.Fatalf("Success not match, expect false, but got true")
	}
	if result.Message != "boom" {
		t.Fatalf("Message not match, expect %q, but got %q", "boom", result.Message)
	}

	// control EOF tears the session down cleanly
	controlClient.Close()
	if err := <-done; err != nil {
		t.Fatalf("serve failed %s", err)
	}

	// the session work dir was created
	if _, err := os.Stat(filepath.Join(sessionsDir, session.ID)); err != nil {
		t.Fatalf("session dir missing %s", err)
	}
}

func TestSessionDataHostFollowsOptions(t *testing.T) {
	controlServer, controlClient := net.Pipe()
	defer controlServer.Close()
	defer controlClient.Close()

	session := NewSession(controlServer, &SessionOptions{
		Host:        "0.0.0.0",
		SessionsDir: t.TempDir(),
	})
	if session.dataHost != "0.0.0.0" {
		t.Fatalf("dataHost not match, expect %q, but got %q", "0.0.0.0", session.dataHost)
	}

	session = NewSession(controlServer, &SessionOptions{
		SessionsDir: t.TempDir(),
	})
	if session.dataHost != protocol.DefaultControlHost {
		t.Fatalf("dataHost not match, expect %q, but got %q", protocol.DefaultControlHost, session.dataHost)
	}
}

func TestSessionServeWildcardHost(t *testing.T) {
	backend := &fakeBackend{docs: make(chan []byte, 1)}

	controlServer, controlClient := net.Pipe()
	session := NewSession(controlServer, &SessionOptions{
		Host:          "0.0.0.0",
		SessionsDir:   t.TempDir(),
		AcceptTimeout: 5 * time.Second,
		NewBackend: func(sessionID, logDir string) (connector.Connector, error) {
			return backend, nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- session.Serve() }()

	dataPort, err := protocol.ReadAnnouncement(controlClient)
	if err != nil {
		t.Fatalf("failed to read announcement %s", err)
	}

	// the listener follows the configured host instead of loopback
	data, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(dataPort)))
	if err != nil {
		t.Fatalf("failed to connect data channel %s", err)
	}
	defer data.Close()

	controlClient.Close()
	if err := <-done; err != nil {
		t.Fatalf("serve failed %s", err)
	}
}

func TestSessionDataAcceptTimeout(t *testing.T) {
	controlServer, controlClient := net.Pipe()
	defer controlClient.Close()

	session := NewSession(controlServer, &SessionOptions{
		SessionsDir:   t.TempDir(),
		AcceptTimeout: 100 * time.Millisecond,
		NewBackend: func(sessionID, logDir string) (connector.Connector, error) {
			return &fakeBackend{docs: make(chan []byte, 1)}, nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- session.Serve() }()

	if _, err := protocol.ReadAnnouncement(controlClient); err != nil {
		t.Fatalf("failed to read announcement %s", err)
	}

	// never dial the data port
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expect timeout error, but got nil")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not time out")
	}
}
