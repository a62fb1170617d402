package rpc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrFrameTooLarge is returned by ReadFrame when a frame's length prefix
// exceeds maxFrameBytes. Oversize frames are treated as corruption:
// fatal for the connection, not for the process.
var ErrFrameTooLarge = fmt.Errorf("rpc: frame exceeds maximum size")

// WriteFrame encodes v as msgpack and writes it to w as
// | u32_le length | length bytes of msgpack body |.
func WriteFrame(w io.Writer, v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpc: marshal frame: %w", err)
	}
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("rpc: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("rpc: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed msgpack frame from r and decodes it
// into v. maxFrameBytes of 0 uses MaxFrameBytes.
func ReadFrame(r io.Reader, maxFrameBytes uint32, v any) error {
	if maxFrameBytes == 0 {
		maxFrameBytes = MaxFrameBytes
	}
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return err // includes io.EOF on clean close
	}
	length := binary.LittleEndian.Uint32(header)
	if length > maxFrameBytes {
		return ErrFrameTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("rpc: read frame body: %w", err)
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("rpc: unmarshal frame: %w", err)
	}
	return nil
}
