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
raftd - single-node-process entrypoint for a raft cluster member.

Loads configuration (file, then environment overrides), wires the
role machine, the log, the applied-state driver, and the peer
transport, then runs the single-writer event loop until terminated.

Usage:
    raftd [config-file]
    raftd --tls [config-file]   # wrap connections in TLS (self-signed certs)

mDNS advertisement is enabled through the discovery_enabled config key
(or RAFTD_DISCOVERY_ENABLED), not a command-line flag.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raftd/internal/auth"
	"raftd/internal/compression"
	"raftd/internal/config"
	"raftd/internal/discovery"
	"raftd/internal/logging"
	"raftd/internal/raft"
	"raftd/internal/raftlog"
	"raftd/internal/server"
	"raftd/internal/statemachine"
	"raftd/internal/tls"
	"raftd/internal/transport"
	"raftd/internal/wire"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: raftd [config-file]\n")
		flag.PrintDefaults()
	}
	tlsEnabled := flag.Bool("tls", false, "wrap peer and client connections in TLS (self-signed certs are generated if missing)")
	flag.Parse()

	cfgPath := ""
	if flag.NArg() > 0 {
		cfgPath = flag.Arg(0)
	}

	mgr := config.Global()
	if cfgPath != "" {
		if err := mgr.LoadFromFile(cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "raftd: %v\n", err)
			os.Exit(1)
		}
	}
	mgr.LoadFromEnv()
	cfg := mgr.Get()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "raftd: %v\n", err)
		os.Exit(1)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("raftd").With("id", cfg.ID)
	logger.Info("starting", "listen_raft", cfg.ListenRaft, "peers", fmt.Sprintf("%d", len(cfg.PeerIDs())))

	srv, disc, err := build(cfg, *tlsEnabled, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if disc != nil {
		if err := disc.Start(); err != nil {
			logger.Warn("mdns advertisement failed to start", "error", err.Error())
		} else {
			defer disc.Stop()
		}
	}

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("event loop exited with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("stopped")
}

// build wires every component listed in the expanded specification's
// domain stack around the unmodified role machine, log, and
// statemachine driver: compression, wire framing, TLS, shared-secret
// peer auth, and mDNS discovery are all optional and layered strictly
// outside that core.
func build(cfg *config.Config, tlsEnabled bool, logger *logging.Logger) (*server.Server, *discovery.DiscoveryService, error) {
	store := raftlog.NewMemoryStore()
	log, err := raftlog.Open(store)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}

	node, err := raft.New(cfg.ID, cfg.PeerIDs(), log, time.Now().UnixNano())
	if err != nil {
		return nil, nil, fmt.Errorf("construct node: %w", err)
	}

	quorum := len(cfg.PeerIDs())/2 + 1
	driver, err := statemachine.New(statemachine.NewKVState(), log, quorum, func(term, index uint64) {
		logger.Debug("applied-state quorum reached", "term", fmt.Sprintf("%d", term), "index", fmt.Sprintf("%d", index))
	})
	if err != nil {
		return nil, nil, fmt.Errorf("construct driver: %w", err)
	}

	var compressor *compression.Compressor
	if algo, err := compression.ParseAlgorithm(cfg.Compression); err == nil && algo != 0 {
		ccfg := compression.DefaultConfig()
		ccfg.Algorithm = algo
		c, err := compression.NewCompressor(ccfg)
		if err != nil {
			return nil, nil, fmt.Errorf("construct compressor: %w", err)
		}
		compressor = c
	}
	codec := wire.NewCodec(compressor)

	tcfg := transport.Config{
		ListenAddr:     cfg.ListenRaft,
		MaxConnections: 256,
		Codec:          codec,
	}
	if cfg.SharedSecret != "" {
		hash, err := auth.HashSecret(cfg.SharedSecret)
		if err != nil {
			return nil, nil, fmt.Errorf("hash shared secret: %w", err)
		}
		tcfg.SharedSecretHash = hash
		tcfg.Secret = cfg.SharedSecret
	}
	if tlsEnabled {
		certDir, certPath, keyPath := tls.GetDefaultCertPaths()
		if err := os.MkdirAll(certDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create cert dir: %w", err)
		}
		if err := tls.EnsureCertificates(certPath, keyPath, tls.DefaultCertConfig()); err != nil {
			return nil, nil, fmt.Errorf("ensure certificates: %w", err)
		}
		tlsConfig, err := tls.LoadTLSConfig(certPath, keyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load tls config: %w", err)
		}
		tcfg.TLSConfig = tlsConfig
	}

	peers := make(map[string]string, len(cfg.Peers))
	for _, id := range cfg.PeerIDs() {
		peers[id] = cfg.Peers[id]
	}
	tr := transport.New(tcfg, peers, logger.With("component", "transport"))

	srv := server.New(server.Config{
		ID:           cfg.ID,
		Node:         node,
		Log:          log,
		Driver:       driver,
		Transport:    tr,
		TickInterval: time.Duration(cfg.TickMillis) * time.Millisecond,
	})

	var disc *discovery.DiscoveryService
	if cfg.DiscoveryEnabled {
		disc = discovery.NewDiscoveryService(discovery.DiscoveryConfig{
			NodeID:   cfg.ID,
			RaftAddr: cfg.ListenRaft,
			Version:  "1.0.0",
			Enabled:  true,
		})
	}

	return srv, disc, nil
}
