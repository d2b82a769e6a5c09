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

import (
	"fmt"
	"sync"
)

// MemoryStore is the in-memory reference Store used by tests and by
// nodes that do not require durability across restarts.
//
// Two source ambiguities (spec.md §9) are resolved here rather than
// reproduced: SetMetadata is an idempotent upsert (the original's
// memory_store.rs unwrapped an insert result, which panics on first
// write), and Commit advances the committed index monotonically
// (committed = max(committed, index)) rather than requiring an exact
// match, which never advanced in the original.
type MemoryStore struct {
	mu        sync.Mutex
	entries   []Entry // 1-indexed: entries[0] is index 1
	committed uint64
	meta      Metadata
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SetMetadata(meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	return nil
}

func (s *MemoryStore) GetMetadata() (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta, nil
}

func (s *MemoryStore) Get(index uint64) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(index)
}

func (s *MemoryStore) getLocked(index uint64) (*Entry, error) {
	if index == 0 || index > uint64(len(s.entries)) {
		return nil, nil
	}
	e := s.entries[index-1]
	return &e, nil
}

func (s *MemoryStore) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Index != uint64(len(s.entries))+1 {
		return fmt.Errorf("raftlog: non-contiguous append: got index %d, expected %d", entry.Index, len(s.entries)+1)
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) Scan(lo, hi uint64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lo == 0 {
		lo = 1
	}
	if hi > uint64(len(s.entries)) {
		hi = uint64(len(s.entries))
	}
	if lo > hi {
		return nil, nil
	}
	out := make([]Entry, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, s.entries[i-1])
	}
	return out, nil
}

func (s *MemoryStore) Truncate(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= uint64(len(s.entries)) {
		return nil
	}
	s.entries = s.entries[:index]
	return nil
}

func (s *MemoryStore) Commit(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index > s.committed {
		s.committed = index
	}
	return nil
}

func (s *MemoryStore) Committed() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed, nil
}

func (s *MemoryStore) LastIndex() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.entries)), nil
}
