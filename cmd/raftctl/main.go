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
raftctl - interactive operator client for a raftd node.

Connects to a single node's client port and issues ClientRequest
(raw opaque commands) and StatusRequest (role/term/commit introspection)
events, printing responses with pkg/cli's table/box helpers.

Usage:
    raftctl <host:port>
*/
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"raftd/internal/raft"
	"raftd/internal/statemachine"
	"raftd/internal/wire"
	"raftd/pkg/cli"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: raftctl <host:port>\n")
		os.Exit(1)
	}
	addr := os.Args[1]

	cli.SetColorsEnabled(term.IsTerminal(int(os.Stdout.Fd())))

	client, err := newClient(addr)
	if err != nil {
		cli.ErrConnectionFailed(addr, "", err).Print()
		os.Exit(1)
	}
	defer client.Close()

	rl, err := readline.New(cli.Highlight("raftctl> "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "raftctl: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	cli.PrintInfo("connected to %s", addr)
	cli.PrintInfo("commands: status | put <key> <value> | get <key> | quit")

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		runCommand(client, line)
	}
}

func runCommand(client *client, line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "status":
		client.status()
	case "put":
		if len(fields) != 3 {
			cli.PrintError("usage: put <key> <value>")
			return
		}
		client.request(statemachine.KVOp{Op: "put", Key: fields[1], Value: []byte(fields[2])})
	case "get":
		if len(fields) != 2 {
			cli.PrintError("usage: get <key>")
			return
		}
		client.query(statemachine.KVQuery{Key: fields[1]})
	case "delete":
		if len(fields) != 2 {
			cli.PrintError("usage: delete <key>")
			return
		}
		client.request(statemachine.KVOp{Op: "delete", Key: fields[1]})
	default:
		cli.ErrInvalidCommand(fields[0]).Print()
	}
}

// client owns a single framed connection to a raftd node's client
// port, matching responses to requests by RequestID (the same
// pairing internal/transport uses on the server side).
type client struct {
	conn  net.Conn
	codec *wire.Codec
}

func newClient(addr string) (*client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &client{conn: conn, codec: wire.NewCodec(nil)}, nil
}

func (c *client) Close() error { return c.conn.Close() }

func newRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func (c *client) request(op any) {
	payload, err := json.Marshal(op)
	if err != nil {
		cli.PrintError("encode request: %v", err)
		return
	}
	requestID := newRequestID()
	msg := raft.Message{Event: raft.Event{Type: raft.EventClientRequest, RequestID: requestID, Payload: payload}}
	if err := c.codec.WriteMessage(c.conn, msg); err != nil {
		cli.PrintError("send request: %v", err)
		return
	}

	c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	resp, err := c.codec.ReadMessage(c.conn)
	if err != nil {
		cli.PrintError("read response: %v", err)
		return
	}
	if resp.Event.RequestID != requestID {
		cli.PrintWarning("response request_id mismatch: got %s, want %s", resp.Event.RequestID, requestID)
	}
	if resp.Event.Err != "" {
		cli.PrintError("%s", resp.Event.Err)
		return
	}
	cli.PrintSuccess("%s", string(resp.Event.Result))
}

// query issues a read-only command against the leader (or any node, at
// the caller's own linearizability risk) via EventQueryRequest, which
// internal/server answers directly from the applied-state driver
// without touching the log.
func (c *client) query(q statemachine.KVQuery) {
	payload, err := json.Marshal(q)
	if err != nil {
		cli.PrintError("encode query: %v", err)
		return
	}
	requestID := newRequestID()
	msg := raft.Message{Event: raft.Event{Type: raft.EventQueryRequest, RequestID: requestID, Payload: payload}}
	if err := c.codec.WriteMessage(c.conn, msg); err != nil {
		cli.PrintError("send query: %v", err)
		return
	}

	c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	resp, err := c.codec.ReadMessage(c.conn)
	if err != nil {
		cli.PrintError("read response: %v", err)
		return
	}
	if resp.Event.Err != "" {
		cli.PrintError("%s", resp.Event.Err)
		return
	}
	if resp.Event.Result == nil {
		cli.PrintWarning("(not found)")
		return
	}
	cli.PrintSuccess("%s", string(resp.Event.Result))
}

func (c *client) status() {
	requestID := newRequestID()
	msg := raft.Message{Event: raft.Event{Type: raft.EventStatusRequest, RequestID: requestID}}
	if err := c.codec.WriteMessage(c.conn, msg); err != nil {
		cli.PrintError("send status request: %v", err)
		return
	}

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := c.codec.ReadMessage(c.conn)
	if err != nil {
		cli.PrintError("read status response: %v", err)
		return
	}

	t := cli.NewTable("FIELD", "VALUE")
	t.AddRow("role", resp.Event.Role)
	t.AddRow("term", fmt.Sprintf("%d", resp.Term))
	t.AddRow("commit_index", fmt.Sprintf("%d", resp.Event.CommitIndex))
	t.AddRow("last_index", fmt.Sprintf("%d", resp.Event.LastIndex))
	leader := resp.Event.LeaderHint
	if leader == "" {
		leader = "(unknown)"
	}
	t.AddRow("leader", leader)
	t.Print()
}
