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
Package statemachine runs the applied-state driver described in
spec.md §4.7: it owns the user's State, applies committed log entries
to it in strict ascending order, answers read-only queries against the
applied state, and tallies leader-side confirmation votes into a
commit-index estimate.
*/
package statemachine

import (
	"sync"

	raftderrors "raftd/internal/errors"
	"raftd/internal/logging"
	"raftd/internal/raftlog"
)

// State is the user-supplied application state machine.
type State interface {
	// AppliedIndex returns the index of the last entry applied.
	AppliedIndex() uint64
	// Mutate applies command at index, advancing AppliedIndex to index.
	Mutate(index uint64, command []byte) error
	// Query executes a read-only command against the current state.
	Query(command []byte) ([]byte, error)
}

// InstructionKind discriminates the Instruction union the driver consumes.
type InstructionKind int

const (
	// InstApply asks the driver to mutate State with a committed entry.
	InstApply InstructionKind = iota
	// InstQuery asks the driver to answer a read against the current state.
	InstQuery
	// InstVote records a peer's confirmation up to an index at a term,
	// for leader-side commit quorum tallying (an observability surface;
	// see Driver.CommitEstimate).
	InstVote
)

// Instruction is a unit of work delivered to the driver.
type Instruction struct {
	Kind InstructionKind

	// InstApply
	Index   uint64
	Command []byte

	// InstQuery
	QueryCommand []byte
	ResultCh     chan<- QueryResult

	// InstVote
	Term    uint64
	Address string
}

// QueryResult is delivered on ResultCh in response to an InstQuery.
type QueryResult struct {
	Value []byte
	Err   error
}

// VoteTally records, for each index, the set of peer addresses that
// have confirmed up to that index. Votes are keyed by index alone; the
// term of the vote that completes a quorum is kept with the estimate.
type VoteTally struct {
	mu       sync.Mutex
	votes    map[uint64]map[string]bool // index -> voter set
	quorum   int
	onQuorum func(term, index uint64)

	estimateTerm  uint64
	estimateIndex uint64
}

// NewVoteTally returns a tally requiring quorum confirmations per index
// before invoking onQuorum.
func NewVoteTally(quorum int, onQuorum func(term, index uint64)) *VoteTally {
	return &VoteTally{votes: make(map[uint64]map[string]bool), quorum: quorum, onQuorum: onQuorum}
}

// Record registers that address confirmed up to index at term. If the
// confirmation set for index reaches quorum, onQuorum fires once.
func (v *VoteTally) Record(term, index uint64, address string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	set, ok := v.votes[index]
	if !ok {
		set = make(map[string]bool)
		v.votes[index] = set
	}
	if set[address] {
		return
	}
	set[address] = true
	if len(set) == v.quorum {
		v.estimateTerm = term
		v.estimateIndex = index
		if v.onQuorum != nil {
			v.onQuorum(term, index)
		}
	}
}

// Estimate returns the (term, index) of the most recent quorum this
// tally observed, or (0, 0) if none yet.
func (v *VoteTally) Estimate() (uint64, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.estimateTerm, v.estimateIndex
}

// Driver owns a State and a Log, replaying committed-but-unapplied
// entries at startup and then applying/querying as the caller invokes
// Apply and Query directly. It is not safe for concurrent use: callers
// must not invoke Apply or Query from multiple goroutines at once.
type Driver struct {
	state State
	log   *raftlog.Log
	tally *VoteTally
	logger *logging.Logger
}

// New constructs a Driver over state and log, replaying any entries
// already committed but not yet applied.
func New(state State, log *raftlog.Log, quorum int, onQuorum func(term, index uint64)) (*Driver, error) {
	d := &Driver{
		state:  state,
		log:    log,
		tally:  NewVoteTally(quorum, onQuorum),
		logger: logging.NewLogger("statemachine"),
	}
	if err := d.replay(); err != nil {
		return nil, err
	}
	return d, nil
}

// replay applies every committed entry the State has not yet seen, in
// ascending index order (spec.md §4.7 startup rule).
func (d *Driver) replay() error {
	applied := d.state.AppliedIndex()
	commit := d.log.CommitIndex()
	if commit <= applied {
		return nil
	}
	entries, err := d.log.Scan(applied+1, commit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := d.applyEntry(e.Index, e.Command); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) applyEntry(index uint64, command []byte) error {
	if err := d.state.Mutate(index, command); err != nil {
		return raftderrors.StoreFailure("state machine mutate failed", err)
	}
	return nil
}

// Apply applies a single committed entry. The caller (the event loop)
// is responsible for calling this strictly in ascending index order
// with no gaps, as entries commit.
func (d *Driver) Apply(index uint64, command []byte) error {
	if index != d.state.AppliedIndex()+1 {
		return raftderrors.LogInconsistency("driver applied out of order")
	}
	return d.applyEntry(index, command)
}

// Query answers a read-only command, requiring the caller to have
// already confirmed applied_index >= read_index for linearizability.
func (d *Driver) Query(command []byte) ([]byte, error) {
	return d.state.Query(command)
}

// Vote records a leader-side confirmation from address up to index at
// term, feeding the commit-index quorum tally.
func (d *Driver) Vote(term, index uint64, address string) {
	d.tally.Record(term, index, address)
}

// AppliedIndex reports the driver's current applied index.
func (d *Driver) AppliedIndex() uint64 { return d.state.AppliedIndex() }

// CommitEstimate reports the (term, index) the driver-side vote tally
// most recently observed a quorum for. This is an observability hook
// only (exposed as Server.CommitEstimate); the authoritative commit index
// is always the leader's match_index-based advance in internal/raft.
func (d *Driver) CommitEstimate() (term, index uint64) { return d.tally.Estimate() }
