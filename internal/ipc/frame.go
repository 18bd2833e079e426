package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Opcodes understood by the Discord IPC socket.
const (
	OpHandshake uint32 = 0
	OpFrame     uint32 = 1
	OpClose     uint32 = 2
)

// frameHeaderLength is opcode plus payload length, both uint32 little-endian.
const frameHeaderLength = 8

// maxPayloadLength bounds a single frame before the body is allocated.
const maxPayloadLength = 16 * 1024 * 1024

// OpcodeName returns a readable label for log lines and metric labels.
func OpcodeName(op uint32) string {
	switch op {
	case OpHandshake:
		return "handshake"
	case OpFrame:
		return "frame"
	case OpClose:
		return "close"
	default:
		return fmt.Sprintf("op%d", op)
	}
}

// EncodeFrame serialises payload as compact JSON and prefixes it with the
// frame header. The result is meant to be written in a single call.
func EncodeFrame(opcode uint32, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode frame payload: %w", err)
	}
	if len(body) > maxPayloadLength {
		return nil, &ProtocolError{Reason: fmt.Sprintf("payload length %d exceeds maximum %d", len(body), maxPayloadLength)}
	}
	frame := make([]byte, frameHeaderLength+len(body))
	binary.LittleEndian.PutUint32(frame[0:4], opcode)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(body)))
	copy(frame[frameHeaderLength:], body)
	return frame, nil
}

// ReadFrame reads one frame from r and returns its opcode and raw JSON body.
// A stream that ends inside the header or the body yields a ProtocolError.
func ReadFrame(r io.Reader) (uint32, []byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if isShortRead(err) {
			return 0, nil, &ProtocolError{Reason: "short header", Err: err}
		}
		return 0, nil, fmt.Errorf("read frame header: %w", err)
	}
	opcode := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > maxPayloadLength {
		return 0, nil, &ProtocolError{Reason: fmt.Sprintf("payload length %d exceeds maximum %d", length, maxPayloadLength)}
	}
	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			if isShortRead(err) {
				return 0, nil, &ProtocolError{Reason: "short payload", Err: err}
			}
			return 0, nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return opcode, body, nil
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
