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
	"testing"

	raftderrors "raftd/internal/errors"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(NewMemoryStore())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestAppendGetScanRoundTrip(t *testing.T) {
	l := newTestLog(t)

	for i, cmd := range []string{"a", "b", "c"} {
		term := uint64(1)
		if i == 2 {
			term = 2
		}
		e, err := l.Append(term, []byte(cmd))
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		if e.Index != uint64(i+1) {
			t.Fatalf("Append(%d) index = %d, want %d", i, e.Index, i+1)
		}
	}

	if got := l.LastIndex(); got != 3 {
		t.Fatalf("LastIndex() = %d, want 3", got)
	}
	if got := l.LastTerm(); got != 2 {
		t.Fatalf("LastTerm() = %d, want 2", got)
	}

	e, err := l.Get(2)
	if err != nil {
		t.Fatalf("Get(2): %v", err)
	}
	if e == nil || string(e.Command) != "b" {
		t.Fatalf("Get(2) = %+v, want command b", e)
	}

	entries, err := l.Scan(1, 3)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Scan returned %d entries, want 3", len(entries))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(entries[i].Command) != want {
			t.Fatalf("Scan[%d] = %q, want %q", i, entries[i].Command, want)
		}
	}
}

func TestGetMissingIndexReturnsNil(t *testing.T) {
	l := newTestLog(t)
	e, err := l.Get(5)
	if err != nil {
		t.Fatalf("Get(5): %v", err)
	}
	if e != nil {
		t.Fatalf("Get(5) = %+v, want nil", e)
	}
	e, err = l.Get(0)
	if err != nil {
		t.Fatalf("Get(0): %v", err)
	}
	if e != nil {
		t.Fatalf("Get(0) = %+v, want nil", e)
	}
}

func TestHasMatchesZeroZeroAndExistingEntries(t *testing.T) {
	l := newTestLog(t)

	ok, err := l.Has(0, 0)
	if err != nil || !ok {
		t.Fatalf("Has(0,0) = %v, %v, want true, nil", ok, err)
	}

	if _, err := l.Append(1, []byte("x")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ok, err = l.Has(1, 1)
	if err != nil || !ok {
		t.Fatalf("Has(1,1) = %v, %v, want true, nil", ok, err)
	}

	ok, err = l.Has(1, 2)
	if err != nil || ok {
		t.Fatalf("Has(1,2) = %v, %v, want false, nil", ok, err)
	}

	ok, err = l.Has(9, 1)
	if err != nil || ok {
		t.Fatalf("Has(9,1) = %v, %v, want false, nil", ok, err)
	}
}

func TestCommitAdvancesMonotonically(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 3; i++ {
		if _, err := l.Append(1, []byte("x")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	idx, err := l.Commit(2)
	if err != nil {
		t.Fatalf("Commit(2): %v", err)
	}
	if idx != 2 {
		t.Fatalf("Commit(2) = %d, want 2", idx)
	}
	if l.CommitIndex() != 2 || l.CommitTerm() != 1 {
		t.Fatalf("commit state = (%d,%d), want (2,1)", l.CommitIndex(), l.CommitTerm())
	}

	if _, err := l.Commit(1); err == nil {
		t.Fatalf("Commit(1) after Commit(2) should fail, got nil error")
	}

	idx, err = l.Commit(3)
	if err != nil {
		t.Fatalf("Commit(3): %v", err)
	}
	if idx != 3 {
		t.Fatalf("Commit(3) = %d, want 3", idx)
	}
}

func TestCommitBeyondLastIndexFails(t *testing.T) {
	l := newTestLog(t)
	if _, err := l.Append(1, []byte("x")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := l.Commit(5); err == nil {
		t.Fatalf("Commit(5) with last_index=1 should fail")
	}
}

func TestTruncateRejectsCommittedEntries(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 3; i++ {
		if _, err := l.Append(1, []byte("x")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if _, err := l.Commit(2); err != nil {
		t.Fatalf("Commit(2): %v", err)
	}

	err := l.Truncate(1)
	if err == nil {
		t.Fatalf("Truncate(1) below commit_index=2 should fail")
	}
	if raftderrors.Code(err) != raftderrors.ErrCodeLogInconsistency {
		t.Fatalf("Truncate error code = %v, want ErrCodeLogInconsistency", raftderrors.Code(err))
	}
	if !raftderrors.IsFatal(err) {
		t.Fatalf("Truncate below commit_index should be fatal")
	}

	if err := l.Truncate(2); err != nil {
		t.Fatalf("Truncate(2) at commit_index should succeed: %v", err)
	}
	if l.LastIndex() != 2 {
		t.Fatalf("LastIndex() after Truncate(2) = %d, want 2", l.LastIndex())
	}
}

func TestTruncateToZeroResetsLastTerm(t *testing.T) {
	l := newTestLog(t)
	if _, err := l.Append(1, []byte("x")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Truncate(0); err != nil {
		t.Fatalf("Truncate(0): %v", err)
	}
	if l.LastIndex() != 0 || l.LastTerm() != 0 {
		t.Fatalf("after Truncate(0): last=(%d,%d), want (0,0)", l.LastIndex(), l.LastTerm())
	}
}

func TestMetadataRoundTripDefaultsToZeroNil(t *testing.T) {
	l := newTestLog(t)

	term, votedFor, err := l.LoadMetadata()
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if term != 0 || votedFor != nil {
		t.Fatalf("fresh LoadMetadata = (%d, %v), want (0, nil)", term, votedFor)
	}

	candidate := "node-2"
	if err := l.SaveMetadata(4, &candidate); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}
	term, votedFor, err = l.LoadMetadata()
	if err != nil {
		t.Fatalf("LoadMetadata after save: %v", err)
	}
	if term != 4 || votedFor == nil || *votedFor != "node-2" {
		t.Fatalf("LoadMetadata after save = (%d, %v), want (4, node-2)", term, votedFor)
	}

	// A second write to the same metadata slot must not panic or error
	// (this is the §9 idempotent-upsert fix).
	if err := l.SaveMetadata(5, nil); err != nil {
		t.Fatalf("second SaveMetadata: %v", err)
	}
	term, votedFor, err = l.LoadMetadata()
	if err != nil {
		t.Fatalf("LoadMetadata after second save: %v", err)
	}
	if term != 5 || votedFor != nil {
		t.Fatalf("LoadMetadata after second save = (%d, %v), want (5, nil)", term, votedFor)
	}
}

func TestOpenRecoversStateFromExistingStore(t *testing.T) {
	store := NewMemoryStore()
	for i := 0; i < 3; i++ {
		term := uint64(1)
		if i == 2 {
			term = 2
		}
		if err := store.Append(Entry{Index: uint64(i + 1), Term: term}); err != nil {
			t.Fatalf("store.Append: %v", err)
		}
	}
	if err := store.Commit(2); err != nil {
		t.Fatalf("store.Commit: %v", err)
	}

	l, err := Open(store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if l.LastIndex() != 3 || l.LastTerm() != 2 {
		t.Fatalf("recovered last = (%d,%d), want (3,2)", l.LastIndex(), l.LastTerm())
	}
	if l.CommitIndex() != 2 || l.CommitTerm() != 1 {
		t.Fatalf("recovered commit = (%d,%d), want (2,1)", l.CommitIndex(), l.CommitTerm())
	}
}
