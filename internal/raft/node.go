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

package raft

import (
	"errors"
	"math/rand"
	"strconv"

	"raftd/internal/logging"
	"raftd/internal/raftlog"
)

// errNotLeader is returned by Propose when the node does not currently
// hold the Leader role.
var errNotLeader = errors.New("raft: node is not leader")

// Fixed tick constants (spec.md §6): HEARTBEAT_INTERVAL=1,
// ELECTION_MIN=2, ELECTION_MAX=5, in tick units.
const (
	HeartbeatInterval uint64 = 1
	ElectionMin       uint64 = 2
	ElectionMax       uint64 = 5
)

// RoleKind discriminates which role record a Node currently holds.
type RoleKind int

const (
	RoleFollower RoleKind = iota
	RoleCandidate
	RoleLeader
)

func (k RoleKind) String() string {
	switch k {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// followerRole holds Follower-specific state (spec.md §4.3).
type followerRole struct {
	leader          *string
	votedFor        *string
	idleTicks       uint64
	electionTimeout uint64
}

// candidateRole holds Candidate-specific state (spec.md §4.4).
type candidateRole struct {
	ticks           uint64
	electionTimeout uint64
	votes           map[string]bool
}

// leaderRole holds Leader-specific state (spec.md §4.5).
type leaderRole struct {
	heartbeatTicks uint64
	nextIndex      map[string]uint64
	matchIndex     map[string]uint64
}

// Node is a single Raft role machine. It performs no I/O: Tick and
// Step are synchronous, pure-ish calls that mutate internal state and
// enqueue outbound Messages for the caller (the event loop) to drain
// via Outbox and forward over the transport.
type Node struct {
	ID    string
	Peers []string // ordered, excludes self

	term uint64
	log  *raftlog.Log

	role      RoleKind
	follower  *followerRole
	candidate *candidateRole
	leader    *leaderRole

	outbox []Message
	rng    *rand.Rand
	logger *logging.Logger
}

// New constructs a Node in the Follower role with a freshly drawn
// election timeout. seed makes the election-timeout jitter
// reproducible for tests; production callers should derive it from
// crypto/rand or time.
func New(id string, peers []string, log *raftlog.Log, seed int64) (*Node, error) {
	term, votedFor, err := log.LoadMetadata()
	if err != nil {
		return nil, err
	}
	n := &Node{
		ID:    id,
		Peers: peers,
		term:  term,
		log:   log,
		rng:   rand.New(rand.NewSource(seed)),
		logger: logging.NewLogger("raft").With("id", id),
	}
	n.role = RoleFollower
	n.follower = &followerRole{votedFor: votedFor, electionTimeout: n.drawElectionTimeout()}
	return n, nil
}

// Term returns the node's current term.
func (n *Node) Term() uint64 { return n.term }

// Role returns the node's current role.
func (n *Node) Role() RoleKind { return n.role }

// Leader returns the peer id this node currently believes leads the
// cluster, if known: the recorded leader as Follower, its own id as
// Leader, and nil as Candidate.
func (n *Node) Leader() *string {
	if n.role == RoleFollower {
		return n.follower.leader
	}
	if n.role == RoleLeader {
		self := n.ID
		return &self
	}
	return nil
}

// Outbox drains and returns all messages enqueued since the last call.
func (n *Node) Outbox() []Message {
	out := n.outbox
	n.outbox = nil
	return out
}

func (n *Node) drawElectionTimeout() uint64 {
	span := ElectionMax - ElectionMin + 1
	return ElectionMin + uint64(n.rng.Int63n(int64(span)))
}

func (n *Node) quorum() int {
	return (len(n.Peers)+1)/2 + 1
}

func (n *Node) enqueue(to Address, event Event) {
	n.outbox = append(n.outbox, Message{Term: n.term, From: Local(), To: to, Event: event})
}

func (n *Node) broadcast(event Event) { n.enqueue(Peers(), event) }

func (n *Node) persistMetadata(votedFor *string) error {
	return n.log.SaveMetadata(n.term, votedFor)
}

// Tick advances the node's logical clock by one tick, per the role
// currently held.
func (n *Node) Tick() error {
	switch n.role {
	case RoleFollower:
		return n.tickFollower()
	case RoleCandidate:
		return n.tickCandidate()
	case RoleLeader:
		return n.tickLeader()
	}
	return nil
}

// Step applies the common transition rules (spec.md §4.2) and then
// dispatches to the role-specific handler.
func (n *Node) Step(msg Message) error {
	if msg.Event.Type != EventClientRequest && msg.Event.Type != EventClientResponse {
		if msg.Term > n.term {
			if err := n.demoteToFollower(msg); err != nil {
				return err
			}
		} else if msg.Term < n.term {
			n.logger.Debug("dropping stale-term message", "from_term", strconv.FormatUint(msg.Term, 10), "self_term", strconv.FormatUint(n.term, 10))
			return nil
		} else if n.role == RoleCandidate && msg.From.Kind == AddrPeer &&
			(msg.Event.Type == EventHeartbeat || msg.Event.Type == EventReplicateEntries) {
			// Equal term, foreign leader while Candidate (spec.md §4.2 rule 3).
			n.transferToFollower(&msg.From.Peer)
		}
	}

	switch n.role {
	case RoleFollower:
		return n.stepFollower(msg)
	case RoleCandidate:
		return n.stepCandidate(msg)
	case RoleLeader:
		return n.stepLeader(msg)
	}
	return nil
}

// demoteToFollower implements the higher-term demotion rule: bump
// term, clear vote, persist, become Follower, reset idle ticks.
func (n *Node) demoteToFollower(msg Message) error {
	n.term = msg.Term
	if err := n.persistMetadata(nil); err != nil {
		return err
	}
	var leader *string
	if msg.From.Kind == AddrPeer {
		p := msg.From.Peer
		leader = &p
	}
	n.role = RoleFollower
	n.candidate = nil
	n.leader = nil
	n.follower = &followerRole{leader: leader, electionTimeout: n.drawElectionTimeout()}
	return nil
}

// transferToFollower converts the current (non-demoted) role to
// Follower because a legitimate leader for this term was observed.
func (n *Node) transferToFollower(leader *string) {
	n.role = RoleFollower
	n.candidate = nil
	n.leader = nil
	n.follower = &followerRole{leader: leader, electionTimeout: n.drawElectionTimeout()}
}

