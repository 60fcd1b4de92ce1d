package protocol

import (
	"encoding/binary"
	"fmt"
)

// Wire constants for the PCM ingest datagram format
const (
	// Magic bytes at the start of every frame
	Magic0 = 'P'
	Magic1 = 'E'

	// Supported protocol version
	Version = 0x01

	// Audio formats
	FormatPCM16LEMono = 0x01

	// Frame structure sizes
	HeaderSize = 10 // 2 + 1 + 1 + 4 + 2 bytes

	// Largest sample count a single frame may carry. At 16kHz this is
	// about a second of audio, well above what any sane sender batches.
	MaxSamplesPerFrame = 16384
)

// Header represents the 10-byte audio frame header.
// Layout: [Magic:2][Version:1][Format:1][Seq:4][SampleCount:2], big-endian.
type Header struct {
	Version     uint8  // Protocol version, currently 0x01
	Format      uint8  // 0x01 = PCM16 little-endian mono
	Seq         uint32 // Monotonic frame sequence number
	SampleCount uint16 // Number of PCM16 samples in the payload
}

// Frame represents a fully parsed ingest datagram
type Frame struct {
	Header  *Header
	Payload []byte // Raw little-endian PCM16 sample bytes
}

// ParseFrame parses a raw UDP datagram into a frame. It validates the magic,
// version, format, and that the payload length matches the declared sample
// count exactly.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	if data[0] != Magic0 || data[1] != Magic1 {
		return nil, fmt.Errorf("invalid magic bytes: 0x%02x 0x%02x", data[0], data[1])
	}

	header := &Header{
		Version:     data[2],
		Format:      data[3],
		Seq:         binary.BigEndian.Uint32(data[4:8]),
		SampleCount: binary.BigEndian.Uint16(data[8:10]),
	}

	if header.Version != Version {
		return nil, fmt.Errorf("unsupported protocol version: 0x%02x", header.Version)
	}

	if header.Format != FormatPCM16LEMono {
		return nil, fmt.Errorf("unsupported audio format: 0x%02x", header.Format)
	}

	payload := data[HeaderSize:]
	expected := int(header.SampleCount) * 2
	if len(payload) != expected {
		return nil, fmt.Errorf("payload length mismatch: header declares %d samples (%d bytes), got %d bytes",
			header.SampleCount, expected, len(payload))
	}

	return &Frame{
		Header:  header,
		Payload: payload,
	}, nil
}

// EncodeFrame builds a wire-format datagram from a sequence number and raw
// little-endian PCM16 payload bytes. Used by test senders and loopback tools.
func EncodeFrame(seq uint32, payload []byte) ([]byte, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("payload length must be even, got %d bytes", len(payload))
	}

	sampleCount := len(payload) / 2
	if sampleCount > MaxSamplesPerFrame {
		return nil, fmt.Errorf("too many samples per frame: %d (max %d)", sampleCount, MaxSamplesPerFrame)
	}

	data := make([]byte, HeaderSize+len(payload))
	data[0] = Magic0
	data[1] = Magic1
	data[2] = Version
	data[3] = FormatPCM16LEMono
	binary.BigEndian.PutUint32(data[4:8], seq)
	binary.BigEndian.PutUint16(data[8:10], uint16(sampleCount))
	copy(data[HeaderSize:], payload)

	return data, nil
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	return fmt.Sprintf("Frame{Version: 0x%02x, Format: 0x%02x, Seq: %d, Samples: %d}",
		h.Version, h.Format, h.Seq, h.SampleCount)
}
