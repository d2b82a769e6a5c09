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

func (n *Node) tickFollower() error {
	n.follower.idleTicks++
	if n.follower.idleTicks >= n.follower.electionTimeout {
		return n.becomeCandidate()
	}
	return nil
}

func (n *Node) stepFollower(msg Message) error {
	switch msg.Event.Type {
	case EventHeartbeat:
		return n.followerOnHeartbeat(msg)
	case EventReplicateEntries:
		return n.followerOnReplicateEntries(msg)
	case EventSolicitVote:
		return n.followerOnSolicitVote(msg)
	default:
		n.logger.Debug("follower ignoring event", "type", roleEventName(msg.Event.Type))
		return nil
	}
}

// followerOnHeartbeat implements spec.md §4.3: record the sender as
// leader, reset idle ticks, and report whether the local log already
// covers the leader's commit point.
func (n *Node) followerOnHeartbeat(msg Message) error {
	if msg.From.Kind == AddrPeer {
		p := msg.From.Peer
		n.follower.leader = &p
	}
	n.follower.idleTicks = 0

	hasCommitted, err := n.log.Has(msg.Event.CommitIndex, msg.Event.CommitTerm)
	if err != nil {
		return err
	}
	if hasCommitted {
		if _, err := n.log.Commit(msg.Event.CommitIndex); err != nil {
			return err
		}
	}
	n.enqueue(msg.From, Event{
		Type:         EventConfirmLeader,
		CommitIndex:  n.log.CommitIndex(),
		HasCommitted: hasCommitted,
	})
	return nil
}

// followerOnReplicateEntries implements spec.md §4.3's log-match rule:
// require the receiver's log to already contain (base_index,
// base_term), then truncate any conflicting suffix and append.
func (n *Node) followerOnReplicateEntries(msg Message) error {
	matched, err := n.log.Has(msg.Event.BaseIndex, msg.Event.BaseTerm)
	if err != nil {
		return err
	}
	if !matched {
		n.enqueue(msg.From, Event{Type: EventRejectEntries})
		return nil
	}

	for i, e := range msg.Event.Entries {
		idx := msg.Event.BaseIndex + uint64(i) + 1
		existing, err := n.log.Get(idx)
		if err != nil {
			return err
		}
		if existing != nil && existing.Term != e.Term {
			if err := n.log.Truncate(idx - 1); err != nil {
				return err
			}
			existing = nil
		}
		if existing == nil {
			if _, err := n.log.Append(e.Term, e.Command); err != nil {
				return err
			}
		}
	}

	n.enqueue(msg.From, Event{Type: EventAcceptEntries, AcceptedLastIndex: n.log.LastIndex()})
	return nil
}

// followerOnSolicitVote implements spec.md §4.3's vote-granting rule.
func (n *Node) followerOnSolicitVote(msg Message) error {
	candidate := msg.From.Peer

	if n.follower.votedFor != nil && *n.follower.votedFor != candidate {
		return nil
	}

	upToDate := msg.Event.LastTerm > n.log.LastTerm() ||
		(msg.Event.LastTerm == n.log.LastTerm() && msg.Event.LastIndex >= n.log.LastIndex())
	if !upToDate {
		return nil
	}

	n.follower.votedFor = &candidate
	if err := n.persistMetadata(&candidate); err != nil {
		return err
	}
	n.follower.idleTicks = 0
	n.enqueue(msg.From, Event{Type: EventGrantVote})
	return nil
}

func roleEventName(t EventType) string {
	switch t {
	case EventHeartbeat:
		return "Heartbeat"
	case EventSolicitVote:
		return "SolicitVote"
	case EventGrantVote:
		return "GrantVote"
	case EventConfirmLeader:
		return "ConfirmLeader"
	case EventReplicateEntries:
		return "ReplicateEntries"
	case EventAcceptEntries:
		return "AcceptEntries"
	case EventRejectEntries:
		return "RejectEntries"
	case EventClientRequest:
		return "ClientRequest"
	case EventClientResponse:
		return "ClientResponse"
	default:
		return "Unknown"
	}
}
