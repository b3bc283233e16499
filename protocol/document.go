package protocol

import (
	"bufio"
	"fmt"
	"io"
)

// ReadDocument reads one NUL-terminated document from the control channel.
// The terminator is stripped. io.EOF is returned only on a clean boundary;
// bytes followed by EOF without a terminator are an unexpected EOF.
func ReadDocument(r *bufio.Reader) ([]byte, error) {
	raw, err := r.ReadBytes(Terminator)
	if err != nil {
		if err == io.EOF {
			if len(raw) == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read document: %v", err)
	}

	return raw[:len(raw)-1], nil
}

// WriteDocument writes one document followed by the NUL terminator.
func WriteDocument(w io.Writer, doc []byte) error {
	framed := make([]byte, 0, len(doc)+1)
	framed = append(framed, doc...)
	framed = append(framed, Terminator)

	if _, err := w.Write(framed); err != nil {
		return fmt.Errorf("failed to write document: %v", err)
	}

	return nil
}
