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

package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "valid", addr: "10.0.0.1:7000", wantHost: "10.0.0.1", wantPort: 7000},
		{name: "loopback", addr: "127.0.0.1:9", wantHost: "127.0.0.1", wantPort: 9},
		{name: "missing port", addr: "10.0.0.1", wantErr: true},
		{name: "non-numeric port", addr: "10.0.0.1:raft", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := splitHostPort(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%s, %d), want (%s, %d)", host, port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestParseEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		AddrV4: net.ParseIP("10.0.0.5"),
		Port:   7000,
		InfoFields: []string{
			"node_id=n2",
			"cluster_id=prod",
			"raft_addr=10.0.0.5:7000",
			"version=1.0.0",
			"malformed-field-no-equals",
		},
	}

	n := parseEntry(entry)
	if n.NodeID != "n2" {
		t.Errorf("NodeID = %q, want n2", n.NodeID)
	}
	if n.ClusterID != "prod" {
		t.Errorf("ClusterID = %q, want prod", n.ClusterID)
	}
	if n.RaftAddr != "10.0.0.5:7000" {
		t.Errorf("RaftAddr = %q, want 10.0.0.5:7000", n.RaftAddr)
	}
	if n.Version != "1.0.0" {
		t.Errorf("Version = %q, want 1.0.0", n.Version)
	}
	if n.ClusterAddr != "10.0.0.5:7000" {
		t.Errorf("ClusterAddr = %q, want 10.0.0.5:7000", n.ClusterAddr)
	}
}

func TestParseEntryPrefersV4OverV6(t *testing.T) {
	entry := &mdns.ServiceEntry{
		AddrV4: net.ParseIP("10.0.0.5"),
		AddrV6: net.ParseIP("::1"),
		Port:   7000,
	}
	n := parseEntry(entry)
	if n.ClusterAddr != "10.0.0.5:7000" {
		t.Errorf("ClusterAddr = %q, want the v4 address", n.ClusterAddr)
	}
}

func TestStartIsNoopWhenDisabled(t *testing.T) {
	d := NewDiscoveryService(DiscoveryConfig{NodeID: "n1", Enabled: false})
	if err := d.Start(); err != nil {
		t.Fatalf("Start() with Enabled=false: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() on an unstarted service: %v", err)
	}
}

func TestStartRejectsInvalidRaftAddr(t *testing.T) {
	d := NewDiscoveryService(DiscoveryConfig{NodeID: "n1", RaftAddr: "not-an-address", Enabled: true})
	if err := d.Start(); err == nil {
		t.Fatal("expected Start to reject a raft_addr with no port")
	}
}
