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

// becomeLeader implements spec.md §4.5 "Entering": initialize
// per-peer replication cursors, assert authority with an immediate
// heartbeat, and append a no-op entry so prior-term entries become
// committable once this entry is (the source never does this
// explicitly; see the accompanying design notes on the commit-index
// open question).
func (n *Node) becomeLeader() error {
	lead := &leaderRole{
		nextIndex:  make(map[string]uint64, len(n.Peers)),
		matchIndex: make(map[string]uint64, len(n.Peers)),
	}
	for _, p := range n.Peers {
		lead.nextIndex[p] = n.log.LastIndex() + 1
		lead.matchIndex[p] = 0
	}

	n.role = RoleLeader
	n.follower = nil
	n.candidate = nil
	n.leader = lead

	if _, err := n.log.Append(n.term, nil); err != nil {
		return err
	}

	n.broadcast(Event{Type: EventHeartbeat, CommitIndex: n.log.CommitIndex(), CommitTerm: n.log.CommitTerm()})
	n.leader.heartbeatTicks = 0

	for _, p := range n.Peers {
		if err := n.replicate(p); err != nil {
			return err
		}
	}
	return n.tryCommit()
}

// Propose appends command to the log at the current term and
// immediately replicates it to every peer. It is a no-op error if
// called while not Leader; callers (the event loop) are expected to
// check Role() or redirect the client first.
func (n *Node) Propose(command []byte) (uint64, error) {
	if n.role != RoleLeader {
		return 0, errNotLeader
	}
	entry, err := n.log.Append(n.term, command)
	if err != nil {
		return 0, err
	}
	for _, p := range n.Peers {
		if err := n.replicate(p); err != nil {
			return 0, err
		}
	}
	if err := n.tryCommit(); err != nil {
		return 0, err
	}
	return entry.Index, nil
}

// tryCommit advances commit_index via commitMajorityIndex without
// waiting for a peer's AcceptEntries reply. commitMajorityIndex already
// counts self as a vote (leader.go's count := 1 "self"), so in a
// zero-peer cluster the quorum is met immediately and an entry the
// leader just appended commits in the same call that appended it,
// rather than only ever on the next leaderOnAcceptEntries (which never
// arrives when there are no peers).
func (n *Node) tryCommit() error {
	candidate := n.commitMajorityIndex()
	if candidate > n.log.CommitIndex() {
		if _, err := n.log.Commit(candidate); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) tickLeader() error {
	n.leader.heartbeatTicks++
	if n.leader.heartbeatTicks >= HeartbeatInterval {
		n.broadcast(Event{Type: EventHeartbeat, CommitIndex: n.log.CommitIndex(), CommitTerm: n.log.CommitTerm()})
		n.leader.heartbeatTicks = 0
	}
	return nil
}

func (n *Node) stepLeader(msg Message) error {
	switch msg.Event.Type {
	case EventConfirmLeader:
		return n.leaderOnConfirmLeader(msg)
	case EventAcceptEntries:
		return n.leaderOnAcceptEntries(msg)
	case EventRejectEntries:
		return n.leaderOnRejectEntries(msg)
	default:
		n.logger.Debug("leader ignoring event", "type", roleEventName(msg.Event.Type))
		return nil
	}
}

// leaderOnConfirmLeader implements spec.md §4.5: the confirmation
// itself is a vote-tally signal for the applied-state driver (see the
// statemachine package); here the role machine only triggers
// replication when the follower reports it is not yet caught up.
func (n *Node) leaderOnConfirmLeader(msg Message) error {
	if !msg.Event.HasCommitted && msg.From.Kind == AddrPeer {
		return n.replicate(msg.From.Peer)
	}
	return nil
}

// leaderOnAcceptEntries implements spec.md §4.5's commit-index
// advancement rule: advance to the largest N with a matchIndex
// majority and log[N].term == self.term.
func (n *Node) leaderOnAcceptEntries(msg Message) error {
	if msg.From.Kind != AddrPeer {
		return nil
	}
	p := msg.From.Peer
	if msg.Event.AcceptedLastIndex > n.leader.matchIndex[p] {
		n.leader.matchIndex[p] = msg.Event.AcceptedLastIndex
	}
	n.leader.nextIndex[p] = msg.Event.AcceptedLastIndex + 1

	return n.tryCommit()
}

// commitMajorityIndex finds the largest N > commit_index such that a
// majority of match_index values (including self, implicitly at
// last_index) are >= N and log[N].term == self.term.
func (n *Node) commitMajorityIndex() uint64 {
	best := n.log.CommitIndex()
	for candidate := n.log.LastIndex(); candidate > n.log.CommitIndex(); candidate-- {
		count := 1 // self
		for _, p := range n.Peers {
			if n.leader.matchIndex[p] >= candidate {
				count++
			}
		}
		if count < n.quorum() {
			continue
		}
		entry, err := n.log.Get(candidate)
		if err != nil || entry == nil {
			continue
		}
		if entry.Term == n.term {
			best = candidate
			break
		}
	}
	return best
}

// leaderOnRejectEntries implements spec.md §4.5: back off next_index
// by one (floor 1) and retry replication.
func (n *Node) leaderOnRejectEntries(msg Message) error {
	if msg.From.Kind != AddrPeer {
		return nil
	}
	p := msg.From.Peer
	if n.leader.nextIndex[p] > 1 {
		n.leader.nextIndex[p]--
	}
	return n.replicate(p)
}

// replicate implements spec.md §4.5's replicate(P) procedure.
func (n *Node) replicate(peer string) error {
	next := n.leader.nextIndex[peer]
	if next == 0 {
		next = 1
	}
	var baseIndex uint64
	if next > 1 {
		baseIndex = next - 1
	}

	var baseTerm uint64
	if baseIndex > 0 {
		e, err := n.log.Get(baseIndex)
		if err != nil {
			return err
		}
		if e != nil {
			baseTerm = e.Term
		}
	}

	entries, err := n.log.Scan(next, n.log.LastIndex())
	if err != nil {
		return err
	}

	n.enqueue(Peer(peer), Event{
		Type:      EventReplicateEntries,
		BaseIndex: baseIndex,
		BaseTerm:  baseTerm,
		Entries:   entries,
	})
	return nil
}
