// Package wire implements the framed, batched request/reply protocol
// spoken between a client and a storage daemon: a fixed header, an
// ordered payload of primitive fields, and zero or more out-of-band
// sub-sends appended after the framed body.
/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Type is the low-order tag of a message header's type field.
type Type uint32

const (
	TypeNone Type = iota
	TypeCreate
	TypeDelete
	TypeRead
	TypeWrite
	TypeStatus
	TypeStatistics
	TypeReply
)

// Modifier flags occupy the high-order bits of the header's type field.
type Modifier uint32

const (
	// ModifierMask isolates the modifier bits from the type tag.
	ModifierMask Modifier = 0xFFFF0000

	// SafetyNetwork asks the daemon to acknowledge the batch with a reply.
	SafetyNetwork Modifier = 1 << 16
	// SafetyStorage asks the daemon to issue a backend sync after a write batch.
	SafetyStorage Modifier = 1 << 17
)

const typeBits = 16

// ErrClosed is returned by Read on a short read of the header or payload;
// a clean EOF before any byte of the header is read is reported as (false, nil).
var ErrClosed = errors.New("wire: connection closed mid-message")

// ErrMalformed is returned when a NUL-terminated string field has no
// terminator within the remaining payload, or decodes as invalid UTF-8.
var ErrMalformed = errors.New("wire: malformed payload")

// Message is an in-memory, mutable envelope for one batched request or reply.
//
// A freshly constructed Message is a writer: Append* methods build up the
// payload and AddSend attaches sub-sends. After Read, a Message is a
// reader: Read* methods consume the payload in the order they were
// written by the sender. The two modes are never mixed on one instance.
type Message struct {
	Type     Type
	Modifier Modifier
	Count    uint32

	payload bytes.Buffer
	cursor  []byte // unread remainder of payload, valid after Read

	subsends [][]byte
}

// New creates an empty outgoing message of the given type and modifier.
func New(t Type, mod Modifier) *Message {
	return &Message{Type: t, Modifier: mod}
}

// NewReply derives an empty reply from req. operation_count starts at zero;
// AddOperation increments it once per appended operation.
func NewReply(req *Message) *Message {
	_ = req
	return New(TypeReply, 0)
}

// AddOperation increments the operation count and reserves n bytes in the
// payload buffer (a hint only; the payload grows as fields are appended).
func (m *Message) AddOperation(n int) {
	m.Count++
	m.payload.Grow(n)
}

// AddSend appends an out-of-band sub-send of exactly len(buf) bytes. Sends
// are emitted, in attachment order, immediately after the framed payload.
func (m *Message) AddSend(buf []byte) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	m.subsends = append(m.subsends, cp)
}

// Sends returns the sub-sends attached to this message, in order.
func (m *Message) Sends() [][]byte { return m.subsends }

func (m *Message) AppendU8(v uint8)   { m.payload.WriteByte(v) }
func (m *Message) AppendU32(v uint32) { binary.Write(&m.payload, binary.LittleEndian, v) } //nolint:errcheck
func (m *Message) AppendU64(v uint64) { binary.Write(&m.payload, binary.LittleEndian, v) } //nolint:errcheck

// AppendString appends s followed by a NUL terminator.
func (m *Message) AppendString(s string) {
	m.payload.WriteString(s)
	m.payload.WriteByte(0)
}

func (m *Message) headerType() uint32 {
	return uint32(m.Type) | uint32(m.Modifier)
}

// Write emits header, payload, then every sub-send, in that order.
func (m *Message) Write(w io.Writer) error {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(m.payload.Len()))
	binary.LittleEndian.PutUint32(hdr[4:8], m.headerType())
	binary.LittleEndian.PutUint32(hdr[8:12], m.Count)

	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "wire: write header")
	}
	if _, err := w.Write(m.payload.Bytes()); err != nil {
		return errors.Wrap(err, "wire: write payload")
	}
	for _, s := range m.subsends {
		if _, err := w.Write(s); err != nil {
			return errors.Wrap(err, "wire: write sub-send")
		}
	}
	return nil
}

// Read decodes one message's header and payload from r. It reports
// (false, nil) on a clean EOF before any header byte is read, (false,
// ErrClosed) on a short read mid-header or mid-payload, and does not
// consume any sub-sends: callers read those explicitly via the stream
// after Read returns, using the length fields they decoded from the
// payload.
func Read(r io.Reader) (*Message, bool, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, ErrClosed
	}

	length := binary.LittleEndian.Uint32(hdr[0:4])
	rawType := binary.LittleEndian.Uint32(hdr[4:8])
	count := binary.LittleEndian.Uint32(hdr[8:12])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, false, ErrClosed
		}
	}

	m := &Message{
		Type:     Type(rawType &^ uint32(ModifierMask)),
		Modifier: Modifier(rawType) & ModifierMask,
		Count:    count,
		cursor:   payload,
	}
	return m, true, nil
}

func (m *Message) need(n int) error {
	if len(m.cursor) < n {
		return ErrClosed
	}
	return nil
}

// ReadU8 reads the next byte of the payload.
func (m *Message) ReadU8() (uint8, error) {
	if err := m.need(1); err != nil {
		return 0, err
	}
	v := m.cursor[0]
	m.cursor = m.cursor[1:]
	return v, nil
}

// ReadU32 reads the next little-endian uint32 of the payload.
func (m *Message) ReadU32() (uint32, error) {
	if err := m.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(m.cursor[:4])
	m.cursor = m.cursor[4:]
	return v, nil
}

// ReadU64 reads the next little-endian uint64 of the payload.
func (m *Message) ReadU64() (uint64, error) {
	if err := m.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(m.cursor[:8])
	m.cursor = m.cursor[8:]
	return v, nil
}

// ReadString scans the payload for the next NUL-terminated UTF-8 string.
func (m *Message) ReadString() (string, error) {
	idx := bytes.IndexByte(m.cursor, 0)
	if idx < 0 {
		return "", ErrMalformed
	}
	s := m.cursor[:idx]
	if !utf8.Valid(s) {
		return "", ErrMalformed
	}
	m.cursor = m.cursor[idx+1:]
	return string(s), nil
}
