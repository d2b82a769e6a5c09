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
Package discovery advertises and finds raftd nodes on the local
network via mDNS, supplementing (never replacing) the static peers map
in configuration. It is entirely optional: a cluster configured with
explicit peer addresses never needs it.
*/
package discovery

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const serviceName = "_raftd._tcp"

// DiscoveryConfig configures advertisement and lookup.
type DiscoveryConfig struct {
	// NodeID identifies this node in its mDNS TXT record.
	NodeID string
	// ClusterID, if set, is advertised so discovery can filter nodes
	// belonging to a particular cluster.
	ClusterID string
	// RaftAddr is this node's peer-to-peer listen address.
	RaftAddr string
	// Version is the running build's version string.
	Version string
	// Enabled controls whether Start advertises this node. Discovery
	// (browsing for other nodes) is always available regardless.
	Enabled bool
}

// DiscoveredNode describes one node found on the network.
type DiscoveredNode struct {
	NodeID      string `json:"node_id"`
	ClusterID   string `json:"cluster_id,omitempty"`
	ClusterAddr string `json:"cluster_addr"`
	RaftAddr    string `json:"raft_addr,omitempty"`
	HTTPAddr    string `json:"http_addr,omitempty"`
	Version     string `json:"version,omitempty"`
}

// DiscoveryService advertises this node (if enabled) and browses for
// peers on demand.
type DiscoveryService struct {
	cfg    DiscoveryConfig
	server *mdns.Server
}

// NewDiscoveryService constructs a DiscoveryService. Call Start to
// begin advertising; DiscoverNodes works regardless of Start.
func NewDiscoveryService(cfg DiscoveryConfig) *DiscoveryService {
	return &DiscoveryService{cfg: cfg}
}

// Start registers this node's mDNS service record so other nodes'
// DiscoverNodes calls can find it. It is a no-op if cfg.Enabled is
// false.
func (d *DiscoveryService) Start() error {
	if !d.cfg.Enabled {
		return nil
	}
	_, port, err := splitHostPort(d.cfg.RaftAddr)
	if err != nil {
		return fmt.Errorf("discovery: invalid raft_addr %q: %w", d.cfg.RaftAddr, err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "raftd-node"
	}

	txt := []string{
		"node_id=" + d.cfg.NodeID,
		"cluster_id=" + d.cfg.ClusterID,
		"raft_addr=" + d.cfg.RaftAddr,
		"version=" + d.cfg.Version,
	}

	svc, err := mdns.NewMDNSService(hostname, serviceName, "", "", port, nil, txt)
	if err != nil {
		return fmt.Errorf("discovery: create mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return fmt.Errorf("discovery: start mdns server: %w", err)
	}
	d.server = server
	return nil
}

// Stop withdraws this node's advertisement, if one was started.
func (d *DiscoveryService) Stop() error {
	if d.server == nil {
		return nil
	}
	return d.server.Shutdown()
}

// DiscoverNodes browses the network for timeout and returns every
// distinct node that responded.
func (d *DiscoveryService) DiscoverNodes(timeout time.Duration) ([]*DiscoveredNode, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var nodes []*DiscoveredNode
	done := make(chan struct{})

	go func() {
		defer close(done)
		seen := make(map[string]bool)
		for entry := range entries {
			n := parseEntry(entry)
			if seen[n.ClusterAddr] {
				continue
			}
			seen[n.ClusterAddr] = true
			nodes = append(nodes, n)
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: serviceName,
		Domain:  "local",
		Timeout: timeout,
		Entries: entries,
	})
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("discovery: mdns query: %w", err)
	}
	return nodes, nil
}

func parseEntry(entry *mdns.ServiceEntry) *DiscoveredNode {
	n := &DiscoveredNode{
		ClusterAddr: fmt.Sprintf("%s:%d", entryAddr(entry), entry.Port),
	}
	for _, field := range entry.InfoFields {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "node_id":
			n.NodeID = v
		case "cluster_id":
			n.ClusterID = v
		case "raft_addr":
			n.RaftAddr = v
		case "version":
			n.Version = v
		}
	}
	return n
}

func entryAddr(entry *mdns.ServiceEntry) string {
	if entry.AddrV4 != nil {
		return entry.AddrV4.String()
	}
	if entry.AddrV6 != nil {
		return entry.AddrV6.String()
	}
	return ""
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
