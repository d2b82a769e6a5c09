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

package wire

import (
	"bytes"
	"strings"
	"testing"

	"raftd/internal/compression"
	"raftd/internal/raft"
	"raftd/internal/raftlog"
)

func TestRoundTripEveryEventVariant(t *testing.T) {
	codec := NewCodec(nil)

	msgs := []raft.Message{
		{Term: 3, From: raft.Peer("n1"), To: raft.Peer("n2"), Event: raft.Event{Type: raft.EventHeartbeat, CommitIndex: 5, CommitTerm: 2}},
		{Term: 3, From: raft.Peer("n1"), To: raft.Peers(), Event: raft.Event{Type: raft.EventSolicitVote, LastIndex: 7, LastTerm: 3}},
		{Term: 3, From: raft.Peer("n2"), To: raft.Peer("n1"), Event: raft.Event{Type: raft.EventGrantVote}},
		{Term: 3, From: raft.Peer("n1"), To: raft.Peer("n2"), Event: raft.Event{Type: raft.EventConfirmLeader, CommitIndex: 5, HasCommitted: true}},
		{Term: 3, From: raft.Peer("n1"), To: raft.Peer("n2"), Event: raft.Event{
			Type:      raft.EventReplicateEntries,
			BaseIndex: 4,
			BaseTerm:  2,
			Entries:   []raftlog.Entry{{Index: 5, Term: 3, Command: []byte("put a 1")}},
		}},
		{Term: 3, From: raft.Peer("n2"), To: raft.Peer("n1"), Event: raft.Event{Type: raft.EventAcceptEntries, AcceptedLastIndex: 5}},
		{Term: 3, From: raft.Peer("n2"), To: raft.Peer("n1"), Event: raft.Event{Type: raft.EventRejectEntries}},
		{From: raft.Client(), To: raft.Peer("n1"), Event: raft.Event{Type: raft.EventClientRequest, RequestID: "req-1", Payload: []byte("hello")}},
		{From: raft.Local(), To: raft.Client(), Event: raft.Event{Type: raft.EventClientResponse, RequestID: "req-1", Result: []byte("ok")}},
		{From: raft.Client(), To: raft.Peer("n1"), Event: raft.Event{Type: raft.EventStatusRequest, RequestID: "req-2"}},
		{Term: 3, From: raft.Local(), To: raft.Client(), Event: raft.Event{Type: raft.EventStatusResponse, RequestID: "req-2", Role: "leader", CommitIndex: 5, LastIndex: 6, LeaderHint: "n1"}},
		{From: raft.Client(), To: raft.Peer("n1"), Event: raft.Event{Type: raft.EventQueryRequest, RequestID: "req-3", Payload: []byte("get a")}},
		{From: raft.Local(), To: raft.Client(), Event: raft.Event{Type: raft.EventQueryResponse, RequestID: "req-3", Result: []byte("1")}},
	}

	for _, want := range msgs {
		var buf bytes.Buffer
		if err := codec.WriteMessage(&buf, want); err != nil {
			t.Fatalf("WriteMessage(%v): %v", want.Event.Type, err)
		}
		got, err := codec.ReadMessage(&buf)
		if err != nil {
			t.Fatalf("ReadMessage(%v): %v", want.Event.Type, err)
		}
		if got.Event.Type != want.Event.Type {
			t.Fatalf("Type = %v, want %v", got.Event.Type, want.Event.Type)
		}
		if got.Term != want.Term {
			t.Fatalf("Term = %d, want %d", got.Term, want.Term)
		}
		if len(got.Event.Entries) != len(want.Event.Entries) {
			t.Fatalf("Entries len = %d, want %d", len(got.Event.Entries), len(want.Event.Entries))
		}
		for i := range want.Event.Entries {
			if string(got.Event.Entries[i].Command) != string(want.Event.Entries[i].Command) {
				t.Fatalf("Entries[%d].Command mismatch", i)
			}
		}
	}
}

func TestCompressedLargePayloadRoundTrips(t *testing.T) {
	cfg := compression.DefaultConfig()
	cfg.MinSize = 16
	compressor, err := compression.NewCompressor(cfg)
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	codec := NewCodec(compressor)

	entries := make([]raftlog.Entry, 0, 50)
	for i := 0; i < 50; i++ {
		entries = append(entries, raftlog.Entry{Index: uint64(i + 1), Term: 1, Command: []byte(strings.Repeat("x", 64))})
	}
	msg := raft.Message{Term: 1, From: raft.Peer("n1"), To: raft.Peer("n2"), Event: raft.Event{
		Type:      raft.EventReplicateEntries,
		BaseIndex: 0,
		Entries:   entries,
	}}

	var buf bytes.Buffer
	if err := codec.WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected non-empty frame")
	}

	got, err := codec.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if len(got.Event.Entries) != len(entries) {
		t.Fatalf("Entries len = %d, want %d", len(got.Event.Entries), len(entries))
	}
}

func TestDecodeRejectsWrongMagic(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x00, ProtocolVersion, 0x00, 0, 0, 0, 0})
	codec := NewCodec(nil)
	if _, err := codec.ReadMessage(buf); err != ErrInvalidMagic {
		t.Fatalf("ReadMessage with bad magic = %v, want ErrInvalidMagic", err)
	}
}

func TestDecodeCompressedWithoutCompressorFails(t *testing.T) {
	compressor, err := compression.NewCompressor(compression.Config{Algorithm: compression.AlgorithmSnappy, MinSize: 0})
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	writer := NewCodec(compressor)
	reader := NewCodec(nil)

	var buf bytes.Buffer
	msg := raft.Message{Event: raft.Event{Type: raft.EventHeartbeat}}
	if err := writer.WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if _, err := reader.ReadMessage(&buf); err == nil {
		t.Fatalf("expected ReadMessage to fail without a compressor")
	}
}
