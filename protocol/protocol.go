package protocol

const (
	// Terminator ends every XML document on the control channel and on the
	// upstream connection.
	Terminator = 0x00

	// AnnouncementLength is the size of the data port announcement.
	AnnouncementLength = 4

	// MaxAckLength bounds the acknowledgement read on the control channel.
	MaxAckLength = 256

	// DataChunkLength is the read buffer size for the data channel.
	DataChunkLength = 1 << 20
)

const (
	DefaultControlHost = "127.0.0.1"
	DefaultControlPort = 5555
)
