package protocol

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
)

// Command is a typed view of a connector command document.
//
// Encode renders the document through a fixed template, so a Command with the
// historical defaults produces exactly the bytes the original diagnostic
// client sent.
type Command struct {
	ID           string `xml:"id,attr"`
	Login        string `xml:"login"`
	Password     string `xml:"password"`
	Milliseconds bool   `xml:"milliseconds"`
	Autopos      bool   `xml:"autopos"`
	RQDelay      int    `xml:"rqdelay"`
	Host         string `xml:"host"`
	Port         int    `xml:"port"`
}

const (
	CommandConnect    = "connect"
	CommandDisconnect = "disconnect"
)

const (
	DefaultUpstreamHost = "tr1.finam.ru"
	DefaultUpstreamPort = 3900
	DefaultRQDelay      = 10
)

const connectTemplate = `<command id="%s">
  <login>%s</login>
  <password>%s</password>
  <milliseconds>%t</milliseconds>
  <autopos>%t</autopos>
  <rqdelay>%d</rqdelay>
  <host>%s</host>
  <port>%d</port>
</command>`

// DefaultConnect is the connect command with the historical field values:
// empty credentials, millisecond timestamps, no autopos, 10ms poll delay,
// upstream tr1.finam.ru:3900.
func DefaultConnect() *Command {
	return &Command{
		ID:           CommandConnect,
		Milliseconds: true,
		Autopos:      false,
		RQDelay:      DefaultRQDelay,
		Host:         DefaultUpstreamHost,
		Port:         DefaultUpstreamPort,
	}
}

func (c *Command) Encode() []byte {
	return []byte(fmt.Sprintf(
		connectTemplate,
		xmlEscape(c.ID),
		xmlEscape(c.Login),
		xmlEscape(c.Password),
		c.Milliseconds,
		c.Autopos,
		c.RQDelay,
		xmlEscape(c.Host),
		c.Port,
	))
}

// xmlEscape keeps substituted field values from breaking the document. The
// historical defaults contain nothing to escape, so the byte-exact default
// encoding is unaffected.
func xmlEscape(s string) string {
	buf := bytes.NewBuffer(nil)
	_ = xml.EscapeText(buf, []byte(s))
	return buf.String()
}

// ParseCommand decodes a command document. Unknown elements are ignored, so
// documents other than connect still yield their id.
func ParseCommand(raw []byte) (*Command, error) {
	doc := bytes.TrimRight(raw, "\x00")

	command := struct {
		XMLName xml.Name `xml:"command"`
		Command
	}{}
	if err := xml.Unmarshal(doc, &command); err != nil {
		return nil, fmt.Errorf("failed to parse command: %v", err)
	}
	if command.ID == "" {
		return nil, fmt.Errorf("command without id")
	}

	return &command.Command, nil
}

var passwordRe = regexp.MustCompile(`(?s)<password>.*?</password>`)

// MaskSecrets replaces the password field of a command document, for logs.
func MaskSecrets(raw []byte) []byte {
	return passwordRe.ReplaceAll(raw, []byte("<password>***</password>"))
}
