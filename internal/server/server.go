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
Package server ties the role machine (internal/raft), the log
(internal/raftlog), the applied-state driver (internal/statemachine)
and the peer transport (internal/transport) into the single-writer
event loop spec.md §5 describes: one goroutine owns the Node and Log
completely, driven by a tick timer and an inbound message channel;
every other goroutine (accept loop, dialers, applied-state replay)
only ever communicates with it over channels.
*/
package server

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"raftd/internal/logging"
	"raftd/internal/raft"
	"raftd/internal/raftlog"
	"raftd/internal/statemachine"
	"raftd/internal/transport"
)

// pendingClient tracks a client request proposed at a given log index
// and term, so the response can be matched to the entry actually
// committed at that index (which may differ if leadership changed
// before commit, in which case the original request gets no response
// and the client is expected to retry — spec.md §7's "client-request
// timeouts ... delivered as ClientResponse events, not as protocol
// errors" leaves silent drop-and-retry as the caller's responsibility).
type pendingClient struct {
	requestID string
	term      uint64
}

// Server runs the event loop for a single raft node.
type Server struct {
	id     string
	node   *raft.Node
	log    *raftlog.Log
	driver *statemachine.Driver
	tr     *transport.Transport
	logger *logging.Logger

	tickInterval time.Duration
	pending      map[uint64]pendingClient
}

// Config configures a Server.
type Config struct {
	ID           string
	Node         *raft.Node
	Log          *raftlog.Log
	Driver       *statemachine.Driver
	Transport    *transport.Transport
	TickInterval time.Duration
}

// New constructs a Server from an already-wired Node/Log/Driver/Transport.
func New(cfg Config) *Server {
	return &Server{
		id:           cfg.ID,
		node:         cfg.Node,
		log:          cfg.Log,
		driver:       cfg.Driver,
		tr:           cfg.Transport,
		logger:       logging.NewLogger("server").With("id", cfg.ID),
		tickInterval: cfg.TickInterval,
		pending:      make(map[uint64]pendingClient),
	}
}

// Run starts the transport and the event loop, blocking until ctx is
// canceled or a fatal error occurs (StoreError/LogInconsistency per
// spec.md §7 — the process should exit and be restarted).
func (s *Server) Run(ctx context.Context) error {
	if err := s.tr.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.eventLoop(ctx)
	})
	return g.Wait()
}

func (s *Server) eventLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if err := s.node.Tick(); err != nil {
				return err
			}
			s.drainOutbox()
			if err := s.advanceCommits(); err != nil {
				return err
			}

		case msg := <-s.tr.Inbound():
			if msg.Event.Type == raft.EventClientRequest {
				s.handleClientRequest(msg)
				continue
			}
			if msg.Event.Type == raft.EventStatusRequest {
				s.handleStatusRequest(msg)
				continue
			}
			if msg.Event.Type == raft.EventQueryRequest {
				s.handleQueryRequest(msg)
				continue
			}
			if msg.Event.Type == raft.EventConfirmLeader && s.node.Role() == raft.RoleLeader {
				s.driver.Vote(msg.Term, msg.Event.CommitIndex, msg.From.Peer)
			}
			if err := s.node.Step(msg); err != nil {
				return err
			}
			s.drainOutbox()
			if err := s.advanceCommits(); err != nil {
				return err
			}
		}
	}
}

// drainOutbox forwards every message the role machine queued since the
// last drain, rewriting the Local sentinel From address to this node's
// peer id (the role machine itself never learns its own address).
func (s *Server) drainOutbox() {
	for _, msg := range s.node.Outbox() {
		if msg.From.Kind == raft.AddrLocal {
			msg.From = raft.Peer(s.id)
		}
		s.tr.Send(msg)
	}
}

// advanceCommits applies every newly committed log entry to the
// driver in ascending order, answering any pending client request
// whose entry committed under the term it was proposed at.
func (s *Server) advanceCommits() error {
	lo := s.driver.AppliedIndex() + 1
	hi := s.log.CommitIndex()
	if hi < lo {
		return nil
	}
	entries, err := s.log.Scan(lo, hi)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.driver.Apply(e.Index, e.Command); err != nil {
			return err
		}
		s.resolvePending(e)
	}
	return nil
}

func (s *Server) resolvePending(e raftlog.Entry) {
	pc, ok := s.pending[e.Index]
	if !ok {
		return
	}
	delete(s.pending, e.Index)
	if pc.term != e.Term {
		s.logger.Warn("client entry superseded before commit, dropping response",
			"request_id", pc.requestID, "index", strconv.FormatUint(e.Index, 10))
		return
	}
	s.tr.Send(raft.Message{
		To: raft.Client(),
		Event: raft.Event{
			Type:      raft.EventClientResponse,
			RequestID: pc.requestID,
			Result:    e.Command,
		},
	})
}

// handleClientRequest either proposes the request's payload (if this
// node is leader) or immediately replies with a not-leader error
// naming the known leader, if any.
func (s *Server) handleClientRequest(msg raft.Message) {
	if s.node.Role() != raft.RoleLeader {
		s.replyNotLeader(msg.Event.RequestID)
		return
	}

	index, err := s.node.Propose(msg.Event.Payload)
	if err != nil {
		s.tr.Send(raft.Message{
			To: raft.Client(),
			Event: raft.Event{
				Type:      raft.EventClientResponse,
				RequestID: msg.Event.RequestID,
				Err:       err.Error(),
			},
		})
		return
	}
	s.pending[index] = pendingClient{requestID: msg.Event.RequestID, term: s.node.Term()}
	s.drainOutbox()
}

// handleStatusRequest answers the cmd/raftctl introspection surface
// (role, term, commit/last index, leader hint) directly from the
// Node and Log, without going through the log or the driver.
func (s *Server) handleStatusRequest(msg raft.Message) {
	leaderHint := ""
	if leader := s.node.Leader(); leader != nil {
		leaderHint = *leader
	}
	s.tr.Send(raft.Message{
		Term: s.node.Term(),
		To:   raft.Client(),
		Event: raft.Event{
			Type:        raft.EventStatusResponse,
			RequestID:   msg.Event.RequestID,
			Role:        s.node.Role().String(),
			CommitIndex: s.log.CommitIndex(),
			LastIndex:   s.log.LastIndex(),
			LeaderHint:  leaderHint,
		},
	})
}

// handleQueryRequest answers a read-only command directly against the
// driver's state, bypassing the log. It never blocks on Propose/commit,
// so unlike handleClientRequest it answers regardless of role; callers
// are responsible for routing reads to the leader if they need
// linearizability (see Server.Query).
func (s *Server) handleQueryRequest(msg raft.Message) {
	result, err := s.Query(msg.Event.Payload)
	ev := raft.Event{
		Type:      raft.EventQueryResponse,
		RequestID: msg.Event.RequestID,
		Result:    result,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	s.tr.Send(raft.Message{Term: s.node.Term(), To: raft.Client(), Event: ev})
}

// CommitEstimate exposes the applied-state driver's vote-tally
// observability hook (SPEC_FULL.md's supplemented feature), distinct
// from the authoritative match_index-based commit index in internal/raft.
func (s *Server) CommitEstimate() (term, index uint64) {
	return s.driver.CommitEstimate()
}

func (s *Server) replyNotLeader(requestID string) {
	errMsg := "not leader"
	if leader := s.node.Leader(); leader != nil {
		errMsg = "not leader, try " + *leader
	}
	s.tr.Send(raft.Message{
		To: raft.Client(),
		Event: raft.Event{
			Type:      raft.EventClientResponse,
			RequestID: requestID,
			Err:       errMsg,
		},
	})
}

// Query answers a read-only command directly against the driver's
// state, without going through the log. Callers are responsible for
// ensuring linearizability requirements (e.g. routing reads to the
// leader) at a layer above this one.
func (s *Server) Query(command []byte) ([]byte, error) {
	return s.driver.Query(command)
}
