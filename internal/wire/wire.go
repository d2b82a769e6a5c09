/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package wire implements the peer-to-peer framing described in
spec.md §6: a 4-byte big-endian length prefix followed by that many
bytes of payload, where the payload is a JSON encoding of a single
raft.Message. A one-byte flags field ahead of the length records
whether the payload is compressed: a message of any type whose JSON
encoding is at least the compressor's MinSize travels compressed, and
smaller ones travel as plain JSON.

Message Format:
===============

	+--------+--------+--------+--------+--------+--------+...
	| Magic  | Version| Flags  |      Length (4B)          | Payload...
	+--------+--------+--------+--------+--------+--------+...
*/
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	raftderrors "raftd/internal/errors"
	"raftd/internal/compression"
	"raftd/internal/raft"
)

// Protocol constants.
const (
	MagicByte      byte = 0xAF
	ProtocolVersion byte = 0x01

	// MaxMessageSize bounds a single frame's payload (16 MiB).
	MaxMessageSize = 16 * 1024 * 1024

	// HeaderSize is Magic + Version + Flags + Length.
	HeaderSize = 7
)

// Flag is a bit in the header's flags byte.
type Flag byte

const (
	FlagNone       Flag = 0x00
	FlagCompressed Flag = 0x01
)

// Header is the fixed-size frame header preceding every payload.
type Header struct {
	Magic   byte
	Version byte
	Flags   Flag
	Length  uint32
}

var (
	ErrInvalidMagic    = errors.New("wire: invalid magic byte")
	ErrInvalidVersion  = errors.New("wire: unsupported protocol version")
	ErrMessageTooLarge = errors.New("wire: message exceeds maximum size")
)

func writeHeader(w io.Writer, h Header) error {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Magic
	buf[1] = h.Version
	buf[2] = byte(h.Flags)
	binary.BigEndian.PutUint32(buf[3:], h.Length)
	_, err := w.Write(buf)
	return err
}

func readHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}
	h := Header{
		Magic:   buf[0],
		Version: buf[1],
		Flags:   Flag(buf[2]),
		Length:  binary.BigEndian.Uint32(buf[3:]),
	}
	if h.Magic != MagicByte {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != ProtocolVersion {
		return Header{}, ErrInvalidVersion
	}
	if h.Length > MaxMessageSize {
		return Header{}, ErrMessageTooLarge
	}
	return h, nil
}

// Codec encodes/decodes raft.Message values over a stream connection,
// optionally compressing payloads above the compressor's MinSize.
type Codec struct {
	compressor *compression.Compressor
}

// NewCodec returns a Codec. A nil compressor disables compression.
func NewCodec(compressor *compression.Compressor) *Codec {
	return &Codec{compressor: compressor}
}

// WriteMessage encodes msg as JSON, optionally compresses it, and
// writes one length-prefixed frame to w.
func (c *Codec) WriteMessage(w io.Writer, msg raft.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return raftderrors.DecodeFailure("failed to encode message", err)
	}

	flags := FlagNone
	if c.compressor != nil && c.compressor.ShouldCompress(payload) {
		compressed, err := c.compressor.Compress(payload)
		if err != nil {
			return fmt.Errorf("wire: compress payload: %w", err)
		}
		payload = compressed
		flags = FlagCompressed
	}

	if err := writeHeader(w, Header{Magic: MagicByte, Version: ProtocolVersion, Flags: flags, Length: uint32(len(payload))}); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadMessage reads one length-prefixed frame from r, decompresses it
// if flagged, and decodes it as a raft.Message. A decode error here is
// fatal for the connection it arrived on, not for the node (spec.md §7).
func (c *Codec) ReadMessage(r io.Reader) (*raft.Message, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	if h.Flags&FlagCompressed != 0 {
		if c.compressor == nil {
			return nil, raftderrors.DecodeFailure("received compressed frame with compression disabled", nil)
		}
		decompressed, err := c.compressor.Decompress(payload)
		if err != nil {
			return nil, raftderrors.DecodeFailure("failed to decompress payload", err)
		}
		payload = decompressed
	}

	var msg raft.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, raftderrors.DecodeFailure("failed to decode message", err)
	}
	return &msg, nil
}
