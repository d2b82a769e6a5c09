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
Package raftlog implements the append-only ordered log and its durable
metadata, as a typed facade over a byte-level Store.
*/
package raftlog

// Entry is a single record in the replicated log. Index is 1-based and
// monotonically increasing; Term is the leader's term at append time;
// Command is opaque application payload and may be empty.
type Entry struct {
	Index   uint64
	Term    uint64
	Command []byte
}

// Metadata is the durable (current_term, voted_for) pair.
type Metadata struct {
	CurrentTerm uint64
	VotedFor    *string
}
