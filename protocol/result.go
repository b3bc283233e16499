package protocol

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Result is the synchronous acknowledgement the connector produces for every
// command on the control channel.
type Result struct {
	Success bool
	Message string
}

func OK() *Result {
	return &Result{Success: true}
}

func ErrorResult(err error) *Result {
	return &Result{Success: false, Message: err.Error()}
}

func (r *Result) Encode() []byte {
	if r.Success {
		return []byte(`<result success="true"/>`)
	}

	buf := bytes.NewBufferString(`<result success="false"><message>`)
	_ = xml.EscapeText(buf, []byte(r.Message))
	buf.WriteString(`</message></result>`)
	return buf.Bytes()
}

// ParseResult decodes an acknowledgement. The upstream format is not pinned
// down, so parsing is lenient: trailing NULs are stripped and unknown
// elements ignored.
func ParseResult(raw []byte) (*Result, error) {
	doc := bytes.TrimRight(raw, "\x00")

	result := struct {
		XMLName xml.Name `xml:"result"`
		Success bool     `xml:"success,attr"`
		Message string   `xml:"message"`
	}{}
	if err := xml.Unmarshal(doc, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %v", err)
	}

	return &Result{Success: result.Success, Message: result.Message}, nil
}
