package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrIncompleteAnnouncement is returned when the control channel closes
// before all 4 bytes of the port announcement arrive.
var ErrIncompleteAnnouncement = errors.New("incomplete port announcement")

// ReadAnnouncement reads the data port announcement: 4 bytes, little-endian
// unsigned 32-bit integer, sent once on the control channel right after the
// session is set up.
func ReadAnnouncement(r io.Reader) (int, error) {
	buf := make([]byte, AnnouncementLength)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, fmt.Errorf("%w: got %d of %d bytes", ErrIncompleteAnnouncement, n, AnnouncementLength)
		}
		return 0, fmt.Errorf("failed to read port announcement: %v", err)
	}

	port := binary.LittleEndian.Uint32(buf)
	if port == 0 || port > 65535 {
		return 0, fmt.Errorf("announced port %d out of range", port)
	}

	return int(port), nil
}

// WriteAnnouncement writes the data port announcement.
func WriteAnnouncement(w io.Writer, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}

	buf := make([]byte, AnnouncementLength)
	binary.LittleEndian.PutUint32(buf, uint32(port))
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write port announcement: %v", err)
	}

	return nil
}
