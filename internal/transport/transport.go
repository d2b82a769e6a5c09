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
Package transport carries raft.Message frames between nodes over TCP.
It owns the dial-with-backoff and accept-with-limit mechanics spec.md
§5 assigns to "other tasks" surrounding the single-writer event loop;
the event loop itself never touches a net.Conn directly.
*/
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"raftd/internal/auth"
	"raftd/internal/logging"
	"raftd/internal/raft"
	"raftd/internal/wire"
)

// DialBackoff is the fixed delay between reconnect attempts to an
// unreachable peer (spec.md §5: "fixed backoff on failure").
const DialBackoff = 500 * time.Millisecond

// Config configures a Transport's listener and dialers.
type Config struct {
	// ListenAddr is the local address the raft listener binds.
	ListenAddr string
	// MaxConnections bounds concurrent inbound connections; 0 means
	// unbounded.
	MaxConnections int
	// TLSConfig, if non-nil, wraps both inbound and outbound
	// connections.
	TLSConfig *tls.Config
	// SharedSecretHash, if non-empty, requires a bcrypt-verified
	// handshake (internal/auth) before any raft.Message is exchanged
	// on an accepted connection.
	SharedSecretHash string
	// Secret is the plaintext shared secret this node sends when
	// dialing a peer that requires the handshake. It is never logged.
	Secret string
	// Codec encodes/decodes raft.Message frames; required.
	Codec *wire.Codec
}

// Transport owns the inbound listener and one dialer per configured
// peer. Received messages are delivered to Inbound; messages for a
// peer are sent by calling Send.
type Transport struct {
	cfg     Config
	logger  *logging.Logger
	inbound chan raft.Message
	dialers map[string]*dialer

	clientMu    sync.Mutex
	clientConns map[string]net.Conn

	listenAddrMu sync.Mutex
	listenAddr   string
}

// New constructs a Transport. It does not start listening or dialing;
// call Start for that.
func New(cfg Config, peers map[string]string, logger *logging.Logger) *Transport {
	t := &Transport{
		cfg:         cfg,
		logger:      logger,
		inbound:     make(chan raft.Message, 256),
		dialers:     make(map[string]*dialer, len(peers)),
		clientConns: make(map[string]net.Conn),
	}
	for id, addr := range peers {
		t.dialers[id] = &dialer{
			peerID:  id,
			addr:    addr,
			cfg:     cfg,
			logger:  logger,
			outbox:  make(chan raft.Message, 256),
			inbound: t.inbound,
		}
	}
	return t
}

// Inbound returns the channel on which messages arrive from any peer
// or accepted client connection.
func (t *Transport) Inbound() <-chan raft.Message {
	return t.inbound
}

// Send enqueues msg for delivery. Messages addressed to a peer go to
// that peer's dialer queue; messages addressed to Peers are copied into
// every peer's dialer queue; messages addressed to the client go back
// over the connection that delivered the matching ClientRequest. It
// is non-blocking; if the peer's outbound queue is full the message
// is dropped, matching spec.md's "no per-message timeout, no
// guaranteed delivery" transport model.
func (t *Transport) Send(msg raft.Message) {
	if msg.To.Kind == raft.AddrClient {
		t.sendToClient(msg)
		return
	}
	if msg.To.Kind == raft.AddrPeers {
		for id := range t.dialers {
			peerMsg := msg
			peerMsg.To = raft.Peer(id)
			t.Send(peerMsg)
		}
		return
	}
	d, ok := t.dialers[msg.To.Peer]
	if !ok {
		return
	}
	select {
	case d.outbox <- msg:
	default:
		t.logger.Warn("dropping message, peer outbox full", "peer", msg.To.Peer)
	}
}

func (t *Transport) sendToClient(msg raft.Message) {
	t.clientMu.Lock()
	conn, ok := t.clientConns[msg.Event.RequestID]
	if ok {
		delete(t.clientConns, msg.Event.RequestID)
	}
	t.clientMu.Unlock()
	if !ok {
		return
	}
	if err := t.cfg.Codec.WriteMessage(conn, msg); err != nil {
		t.logger.Warn("failed to write client response", "request_id", msg.Event.RequestID, "error", err.Error())
	}
}

// ListenAddr returns the address the listener actually bound to, once
// Start has completed; useful when ListenAddr was configured as
// ":0" for an ephemeral port.
func (t *Transport) ListenAddr() string {
	t.listenAddrMu.Lock()
	defer t.listenAddrMu.Unlock()
	return t.listenAddr
}

func (t *Transport) registerClientConn(requestID string, conn net.Conn) {
	t.clientMu.Lock()
	t.clientConns[requestID] = conn
	t.clientMu.Unlock()
}

// Start launches the accept loop and all peer dialers. It returns once
// the listener is bound; the accept loop and dialers run until ctx is
// canceled.
func (t *Transport) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return err
	}
	if t.cfg.TLSConfig != nil {
		ln = tls.NewListener(ln, t.cfg.TLSConfig)
	}
	if t.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, t.cfg.MaxConnections)
	}

	t.listenAddrMu.Lock()
	t.listenAddr = ln.Addr().String()
	t.listenAddrMu.Unlock()

	go t.acceptLoop(ctx, ln)
	for _, d := range t.dialers {
		go d.run(ctx)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	return nil
}

func (t *Transport) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				t.logger.Warn("accept failed", "error", err.Error())
				return
			}
		}
		go t.serveConn(ctx, conn)
	}
}

func (t *Transport) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if t.cfg.SharedSecretHash != "" {
		ok, err := auth.VerifyHandshake(conn, t.cfg.SharedSecretHash)
		if err != nil || !ok {
			t.logger.Warn("rejecting connection, handshake failed", "remote", conn.RemoteAddr().String())
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := t.cfg.Codec.ReadMessage(conn)
		if err != nil {
			t.logger.Debug("connection closed", "remote", conn.RemoteAddr().String(), "error", err.Error())
			return
		}
		if msg.Event.Type == raft.EventClientRequest || msg.Event.Type == raft.EventStatusRequest || msg.Event.Type == raft.EventQueryRequest {
			t.registerClientConn(msg.Event.RequestID, conn)
		}
		select {
		case t.inbound <- *msg:
		case <-ctx.Done():
			return
		}
	}
}

// dialer maintains a single outbound connection to one peer,
// reconnecting with DialBackoff on failure.
type dialer struct {
	peerID  string
	addr    string
	cfg     Config
	logger  *logging.Logger
	outbox  chan raft.Message
	inbound chan<- raft.Message
}

func (d *dialer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn, err := d.connect(ctx)
		if err != nil {
			d.logger.Debug("dial failed, retrying", "peer", d.peerID, "addr", d.addr, "error", err.Error())
			select {
			case <-time.After(DialBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}
		d.serve(ctx, conn)
	}
}

func (d *dialer) connect(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{}
	var conn net.Conn
	var err error
	if d.cfg.TLSConfig != nil {
		// Every node generates its own self-signed certificate
		// (internal/tls) and there is no shared cluster CA to verify
		// a peer's cert against, so peer dials skip chain
		// verification; encryption-in-transit is still enforced, and
		// peer identity is established by the shared-secret handshake
		// below, not by the certificate.
		dialTLS := d.cfg.TLSConfig.Clone()
		dialTLS.InsecureSkipVerify = true
		conn, err = tls.DialWithDialer(dialer, "tcp", d.addr, dialTLS)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", d.addr)
	}
	if err != nil {
		return nil, err
	}
	if d.cfg.Secret != "" {
		if err := auth.WriteHandshake(conn, d.cfg.Secret); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (d *dialer) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := d.cfg.Codec.ReadMessage(conn)
			if err != nil {
				return
			}
			select {
			case d.inbound <- *msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg := <-d.outbox:
			if err := d.cfg.Codec.WriteMessage(conn, msg); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}
