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

package raftlog

import raftderrors "raftd/internal/errors"

// Log is the typed, business-facing facade over a Store. It tracks
// last_index/last_term and commit_index/commit_term so the role
// machine never has to ask the Store directly.
type Log struct {
	store       Store
	lastIndex   uint64
	lastTerm    uint64
	commitIndex uint64
	commitTerm  uint64
}

// Open builds a Log over store, recovering last_index/last_term and
// commit_index/commit_term from whatever the store already holds.
func Open(store Store) (*Log, error) {
	l := &Log{store: store}
	last, err := store.LastIndex()
	if err != nil {
		return nil, raftderrors.StoreFailure("failed to read last index", err)
	}
	l.lastIndex = last
	if last > 0 {
		e, err := store.Get(last)
		if err != nil {
			return nil, raftderrors.StoreFailure("failed to read last entry", err)
		}
		l.lastTerm = e.Term
	}
	committed, err := store.Committed()
	if err != nil {
		return nil, raftderrors.StoreFailure("failed to read committed index", err)
	}
	if committed > 0 {
		e, err := store.Get(committed)
		if err != nil {
			return nil, raftderrors.StoreFailure("failed to read committed entry", err)
		}
		if e != nil {
			l.commitIndex = committed
			l.commitTerm = e.Term
		}
	}
	return l, nil
}

// LastIndex returns the index of the most recently appended entry.
func (l *Log) LastIndex() uint64 { return l.lastIndex }

// LastTerm returns the term of the most recently appended entry.
func (l *Log) LastTerm() uint64 { return l.lastTerm }

// CommitIndex returns the highest committed index.
func (l *Log) CommitIndex() uint64 { return l.commitIndex }

// CommitTerm returns the term of the entry at CommitIndex.
func (l *Log) CommitTerm() uint64 { return l.commitTerm }

// Append appends a new entry at last_index+1 with the given term.
func (l *Log) Append(term uint64, command []byte) (Entry, error) {
	entry := Entry{Index: l.lastIndex + 1, Term: term, Command: command}
	if err := l.store.Append(entry); err != nil {
		return Entry{}, raftderrors.StoreFailure("append failed", err)
	}
	l.lastIndex = entry.Index
	l.lastTerm = term
	return entry, nil
}

// Get returns the entry at index, or nil for index 0 or beyond last_index.
func (l *Log) Get(index uint64) (*Entry, error) {
	e, err := l.store.Get(index)
	if err != nil {
		return nil, raftderrors.StoreFailure("get failed", err)
	}
	return e, nil
}

// Scan returns entries in [lo, hi] ascending order.
func (l *Log) Scan(lo, hi uint64) ([]Entry, error) {
	entries, err := l.store.Scan(lo, hi)
	if err != nil {
		return nil, raftderrors.StoreFailure("scan failed", err)
	}
	return entries, nil
}

// Has reports whether (index, term) matches the log, per spec.md §4.6:
// true for (0, 0), or if the stored entry at index has the given term.
func (l *Log) Has(index, term uint64) (bool, error) {
	if index == 0 && term == 0 {
		return true, nil
	}
	e, err := l.Get(index)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}
	return e.Term == term, nil
}

// Truncate removes all entries with index > index. It refuses to
// remove committed entries, surfacing a fatal LogInconsistency.
func (l *Log) Truncate(index uint64) error {
	if index < l.commitIndex {
		return raftderrors.LogInconsistency("refusing to truncate committed entries")
	}
	if err := l.store.Truncate(index); err != nil {
		return raftderrors.StoreFailure("truncate failed", err)
	}
	l.lastIndex = index
	if index == 0 {
		l.lastTerm = 0
		return nil
	}
	e, err := l.Get(index)
	if err != nil {
		return err
	}
	if e != nil {
		l.lastTerm = e.Term
	}
	return nil
}

// Commit requires index >= commit_index and index <= last_index, then
// advances commit_index/commit_term to the entry at index.
func (l *Log) Commit(index uint64) (uint64, error) {
	if index < l.commitIndex {
		return 0, raftderrors.LogInconsistency("commit index may not move backwards")
	}
	if index > l.lastIndex {
		return 0, raftderrors.LogInconsistency("commit index beyond last index")
	}
	if index == 0 {
		return 0, nil
	}
	e, err := l.Get(index)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, raftderrors.LogInconsistency("commit target does not exist")
	}
	if err := l.store.Commit(index); err != nil {
		return 0, raftderrors.StoreFailure("commit failed", err)
	}
	l.commitIndex = index
	l.commitTerm = e.Term
	return index, nil
}

// SaveMetadata atomically persists (term, voted_for).
func (l *Log) SaveMetadata(term uint64, votedFor *string) error {
	if err := l.store.SetMetadata(Metadata{CurrentTerm: term, VotedFor: votedFor}); err != nil {
		return raftderrors.StoreFailure("failed to save metadata", err)
	}
	return nil
}

// LoadMetadata returns the persisted (term, voted_for), defaulting to
// (0, nil) on a fresh log.
func (l *Log) LoadMetadata() (uint64, *string, error) {
	meta, err := l.store.GetMetadata()
	if err != nil {
		return 0, nil, raftderrors.StoreFailure("failed to load metadata", err)
	}
	return meta.CurrentTerm, meta.VotedFor, nil
}
