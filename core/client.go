package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-zoox/logger"

	"txcproxy/protocol"
)

// Client is the diagnostic client: one control channel, one data channel.
//
// Run connects to the control port, reads the data port announcement, opens
// the data channel and streams its text to Output from its own goroutine,
// then sends the command and reports the acknowledgement. It returns once the
// peer closes the data channel, the context is canceled, or any step fails.
// There is no retry: a refused or reset connection fails the run.
type Client interface {
	Run(ctx context.Context) error
}

type client struct {
	Host string
	Port int

	// Command is the document sent on the control channel, without the
	// terminator.
	Command []byte

	// Timeout guards every blocking read and the dials. Zero disables all
	// deadlines, which is the historical behavior.
	Timeout time.Duration

	Output io.Writer
}

type ClientConfig struct {
	Host    string
	Port    int
	Command []byte
	Timeout time.Duration
	Output  io.Writer
}

func NewClient(cfg *ClientConfig) Client {
	c := &client{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Command: cfg.Command,
		Timeout: cfg.Timeout,
		Output:  cfg.Output,
	}

	if c.Host == "" {
		c.Host = protocol.DefaultControlHost
	}
	if c.Port == 0 {
		c.Port = protocol.DefaultControlPort
	}
	if c.Command == nil {
		c.Command = protocol.DefaultConnect().Encode()
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}

	return c
}

func (c *client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	logger.Infof("[control] connecting to %s", addr)

	control, err := c.dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect control channel: %v", err)
	}
	defer control.Close()

	c.setDeadline(control)
	dataPort, err := protocol.ReadAnnouncement(control)
	if err != nil {
		return err
	}
	logger.Infof("[control] data channel announced on port %d", dataPort)

	dataAddr := net.JoinHostPort(c.Host, strconv.Itoa(dataPort))
	logger.Infof("[data] connecting to %s", dataAddr)

	data, err := c.dial(dataAddr)
	if err != nil {
		return fmt.Errorf("failed to connect data channel: %v", err)
	}
	defer data.Close()

	// The reader goroutine is owned: cancellation closes its socket and Run
	// joins it before returning.
	var wg sync.WaitGroup
	streamErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		streamErr <- c.consume(data)
	}()
	go func() {
		<-ctx.Done()
		data.Close()
		control.Close()
	}()

	logger.Infof("[control] sending %s command", commandName(c.Command))
	if err := protocol.WriteDocument(control, c.Command); err != nil {
		cancel()
		wg.Wait()
		return err
	}

	ack := make([]byte, protocol.MaxAckLength)
	c.setDeadline(control)
	n, err := control.Read(ack)
	if err != nil {
		cancel()
		wg.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to read acknowledgement: %v", err)
	}
	c.report(ack[:n])

	err = <-streamErr
	wg.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}

// consume renders the data channel until the peer closes it. The stream is
// text by contract: every chunk must be valid UTF-8, and a broken sequence is
// surfaced instead of garbling the output. A multi-byte rune may straddle a
// read boundary, so up to utf8.UTFMax-1 trailing bytes of an incomplete rune
// are held back and validated with the next chunk.
func (c *client) consume(conn net.Conn) error {
	buf := make([]byte, protocol.DataChunkLength)
	var pending []byte

	for {
		c.setDeadline(conn)
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append(pending, buf[:n]...)
			tail := incompleteTail(chunk)
			done := chunk[:len(chunk)-tail]
			if !utf8.Valid(done) {
				return fmt.Errorf("data channel sent invalid utf-8 in a %d byte chunk", n)
			}
			if _, werr := c.Output.Write(done); werr != nil {
				return fmt.Errorf("failed to render data chunk: %v", werr)
			}
			// buf is reused on the next read, so the held-back bytes
			// need their own backing.
			pending = append(pending[:0], chunk[len(chunk)-tail:]...)
		}
		if err != nil {
			if err == io.EOF {
				if len(pending) > 0 {
					return fmt.Errorf("data channel closed mid-rune after %d trailing byte(s)", len(pending))
				}
				logger.Infof("[data] stream closed by peer")
				return nil
			}
			return err
		}
	}
}

// incompleteTail reports how many trailing bytes of p start a multi-byte rune
// that is not yet complete. It is zero when p ends on a rune boundary, and
// never exceeds utf8.UTFMax-1.
func incompleteTail(p []byte) int {
	for back := 1; back < utf8.UTFMax && back <= len(p); back++ {
		b := p[len(p)-back]
		if b < utf8.RuneSelf {
			return 0
		}
		if b&0xC0 == 0xC0 { // lead byte
			if runeLen(b) > back {
				return back
			}
			return 0
		}
	}
	return 0
}

func runeLen(lead byte) int {
	switch {
	case lead&0xF8 == 0xF0:
		return 4
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xE0 == 0xC0:
		return 2
	}
	return 1
}

func (c *client) dial(addr string) (net.Conn, error) {
	if c.Timeout > 0 {
		return net.DialTimeout("tcp", addr, c.Timeout)
	}
	return net.Dial("tcp", addr)
}

func (c *client) setDeadline(conn net.Conn) {
	if c.Timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.Timeout))
	}
}

// report logs the acknowledgement, decoding it as a result document when it
// parses as one. The format is not guaranteed, so raw bytes are kept as the
// fallback.
func (c *client) report(ack []byte) {
	result, err := protocol.ParseResult(ack)
	if err != nil {
		logger.Infof("[control] ack: %q", ack)
		return
	}

	if result.Success {
		logger.Infof("[control] command accepted")
	} else {
		logger.Warnf("[control] command rejected: %s", result.Message)
	}
}

func commandName(doc []byte) string {
	command, err := protocol.ParseCommand(doc)
	if err != nil {
		return "raw"
	}
	return command.ID
}
