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
Package raft implements the role machine: the Follower/Candidate/Leader
state transitions, election and heartbeat timing, and log replication
decisions. The role machine itself performs no I/O; it is driven purely
by Tick and Step calls from a single-writer event loop, and produces
outbound Message values on an internal queue for the caller to forward.
*/
package raft

import "raftd/internal/raftlog"

// AddressKind identifies the routing class of a Message's To/From field.
type AddressKind int

const (
	// AddrLocal means "not yet rewritten" — the transport substitutes
	// AddrPeer(self.id) before sending this message on the wire.
	AddrLocal AddressKind = iota
	// AddrPeer addresses a single named peer.
	AddrPeer
	// AddrPeers broadcasts to every peer.
	AddrPeers
	// AddrClient addresses the client that issued a request.
	AddrClient
)

// Address is a routing target for a Message.
type Address struct {
	Kind AddressKind
	Peer string // populated only when Kind == AddrPeer
}

// Local is the sentinel address the role machine stamps on its own
// outbound messages before the transport rewrites it.
func Local() Address { return Address{Kind: AddrLocal} }

// Peer addresses a single peer by id.
func Peer(id string) Address { return Address{Kind: AddrPeer, Peer: id} }

// Peers addresses every peer (broadcast).
func Peers() Address { return Address{Kind: AddrPeers} }

// Client addresses the originating client connection.
func Client() Address { return Address{Kind: AddrClient} }

// EventType discriminates the Event union.
type EventType int

const (
	EventHeartbeat EventType = iota
	EventSolicitVote
	EventGrantVote
	EventConfirmLeader
	EventReplicateEntries
	EventAcceptEntries
	EventRejectEntries
	EventClientRequest
	EventClientResponse
	// EventStatusRequest/EventStatusResponse carry the cmd/raftctl
	// introspection surface (role, term, commit/last index, leader
	// hint). They are routed entirely by internal/server, never seen
	// by the role machine's Step.
	EventStatusRequest
	EventStatusResponse
	// EventQueryRequest/EventQueryResponse carry a read-only command
	// straight to the applied-state driver (internal/server's Query),
	// bypassing the log entirely. Like status, this is routed by
	// internal/server and never seen by the role machine's Step; callers
	// accept the linearizability caveat documented on Server.Query.
	EventQueryRequest
	EventQueryResponse
)

// Event is the payload union carried by a Message. Only the fields
// relevant to Type are meaningful; the rest are zero.
type Event struct {
	Type EventType

	// Heartbeat
	CommitIndex uint64
	CommitTerm  uint64

	// SolicitVote
	LastIndex uint64
	LastTerm  uint64

	// ConfirmLeader
	HasCommitted bool

	// ReplicateEntries
	BaseIndex uint64
	BaseTerm  uint64
	Entries   []raftlog.Entry

	// AcceptEntries
	AcceptedLastIndex uint64

	// ClientRequest / ClientResponse
	RequestID string
	Payload   []byte
	Result    []byte
	Err       string

	// StatusResponse
	Role       string
	LeaderHint string
}

// Message is a single addressed, termed event exchanged between nodes.
type Message struct {
	Term uint64
	From Address
	To   Address
	Event Event
}
