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

// becomeCandidate implements spec.md §4.4 "Entering": bump term, vote
// for self, persist, reset election clock, and solicit votes.
func (n *Node) becomeCandidate() error {
	n.term++
	self := n.ID
	if err := n.persistMetadata(&self); err != nil {
		return err
	}

	n.role = RoleCandidate
	n.follower = nil
	n.leader = nil
	n.candidate = &candidateRole{
		electionTimeout: n.drawElectionTimeout(),
		votes:           map[string]bool{n.ID: true},
	}

	n.broadcast(Event{
		Type:      EventSolicitVote,
		LastIndex: n.log.LastIndex(),
		LastTerm:  n.log.LastTerm(),
	})

	// A self-vote alone reaches quorum in a single-node cluster (no
	// peer GrantVote will ever arrive to trigger the check otherwise).
	if len(n.candidate.votes) >= n.quorum() {
		return n.becomeLeader()
	}
	return nil
}

func (n *Node) tickCandidate() error {
	n.candidate.ticks++
	if n.candidate.ticks >= n.candidate.electionTimeout {
		return n.becomeCandidate()
	}
	return nil
}

func (n *Node) stepCandidate(msg Message) error {
	switch msg.Event.Type {
	case EventGrantVote:
		return n.candidateOnGrantVote(msg)
	case EventHeartbeat:
		// Another candidate already won this term (spec.md §4.4): step
		// down and re-process under the new Follower role.
		if msg.From.Kind == AddrPeer {
			p := msg.From.Peer
			n.transferToFollower(&p)
		} else {
			n.transferToFollower(nil)
		}
		return n.stepFollower(msg)
	default:
		n.logger.Debug("candidate ignoring event", "type", roleEventName(msg.Event.Type))
		return nil
	}
}

func (n *Node) candidateOnGrantVote(msg Message) error {
	if msg.From.Kind == AddrPeer {
		n.candidate.votes[msg.From.Peer] = true
	}
	if len(n.candidate.votes) >= n.quorum() {
		return n.becomeLeader()
	}
	return nil
}
