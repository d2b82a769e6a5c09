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

// Store is the byte-level persistence boundary beneath Log. It knows
// nothing about the role machine; it only durably stores entries and a
// single metadata slot. Metadata and entries share one persistence
// boundary: a crash between two writes must leave the Store in one of
// its two pre/post states, never torn.
type Store interface {
	// SetMetadata atomically persists (current_term, voted_for).
	SetMetadata(meta Metadata) error
	// GetMetadata returns the persisted metadata, defaulting to the
	// zero Metadata (term 0, no vote) on a fresh store.
	GetMetadata() (Metadata, error)

	// Get returns the entry at index, or nil for index 0 or beyond the
	// last appended index.
	Get(index uint64) (*Entry, error)
	// Append stores entry, which must be the next contiguous index.
	Append(entry Entry) error
	// Scan returns entries in [lo, hi] ascending order.
	Scan(lo, hi uint64) ([]Entry, error)
	// Truncate removes all entries with index > index. It is the
	// caller's (Log's) responsibility to reject truncation of
	// committed entries before calling this.
	Truncate(index uint64) error

	// Commit advances the committed index to max(current, index).
	Commit(index uint64) error
	// Committed returns the currently committed index.
	Committed() (uint64, error)

	// LastIndex returns the index of the most recently appended entry,
	// or 0 if the store is empty.
	LastIndex() (uint64, error)
}
