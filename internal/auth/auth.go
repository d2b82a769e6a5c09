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
Package auth implements an optional shared-secret handshake peers run
immediately after a raft TCP connection is established, before any
framed raft.Message is exchanged. It exists for deployments that run
peer traffic over an untrusted network without TLS client certs.
*/
package auth

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret produces a bcrypt hash of secret suitable for storage in
// configuration; comparison at handshake time is against this hash.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret reports whether candidate matches the bcrypt hash.
func VerifySecret(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// handshakeOK is the acceptor's fixed-length acknowledgement of a
// verified secret. Like the secret line itself it is newline-terminated,
// ahead of the length-prefixed raft wire protocol that takes over on the
// same connection.
const handshakeOK = "OK\n"

// WriteHandshake sends secret as a single newline-terminated line and
// blocks for the acceptor's fixed-length "OK\n" acknowledgement,
// reading it byte-exact so no bytes belonging to the first framed
// raft.Message are consumed. Callers dial, call WriteHandshake, then
// hand the connection to the wire codec.
func WriteHandshake(rw interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
}, secret string) error {
	if _, err := rw.Write([]byte(secret + "\n")); err != nil {
		return err
	}
	ack := make([]byte, len(handshakeOK))
	if _, err := io.ReadFull(readerFunc(rw.Read), ack); err != nil {
		return fmt.Errorf("auth: read handshake ack: %w", err)
	}
	if string(ack) != handshakeOK {
		return fmt.Errorf("auth: handshake rejected")
	}
	return nil
}

// VerifyHandshake reads one newline-terminated line from rw and checks
// it against hash, replying with "OK\n" on success. It uses a
// constant-time comparison-friendly verification path via bcrypt,
// which already resists timing attacks internally.
func VerifyHandshake(rw interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
}, hash string) (bool, error) {
	reader := bufio.NewReader(readerFunc(rw.Read))
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("auth: read handshake: %w", err)
	}
	secret := line[:len(line)-1]
	if !VerifySecret(hash, secret) {
		return false, nil
	}
	if _, err := rw.Write([]byte(handshakeOK)); err != nil {
		return false, err
	}
	return true, nil
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// constantTimeEqual is retained for callers that compare raw tokens
// (e.g. a client bearer token) rather than a bcrypt hash.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
