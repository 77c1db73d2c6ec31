// Package hostsfile implements the Hosts-File strategy (spec §4.6): read a
// line-delimited file of hosts, resolve the registered names on each via
// the local name registry, compose name@host peers, drop the local node,
// and reconcile. Missing file logs a warning and exits "done"; an
// optional "timeout" re-runs the whole cycle periodically.
package hostsfile

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/bitwalker/libcluster/pkg/internal/logutil"
	"github.com/bitwalker/libcluster/pkg/topology"
)

func init() {
	topology.RegisterStrategy("hosts_file", func() topology.Strategy { return Strategy{} })
}

// Strategy is the Hosts-File discovery strategy. Its config key "lister"
// must hold a topology.RemoteNameLister; config key "path" is the file to
// read; "timeout" (ms) turns it into a periodic worker.
type Strategy struct{}

func (Strategy) ChildSpecFor(state *topology.State) topology.ChildSpec {
	return topology.ChildSpec{
		ID:      state.Topology,
		Restart: topology.RestartTransient,
		Start: func(ctx context.Context) (topology.Handle, error) {
			return start(ctx, state)
		},
	}
}

func start(ctx context.Context, state *topology.State) (topology.Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := topology.NewHandle(cancel)

	path := state.Config.String("path", "")
	timeoutMs := state.Config.Int("timeout", 0)
	lister, _ := state.Config["lister"].(topology.RemoteNameLister)

	if lister == nil {
		logutil.Warnf(state.Logger, "topology[%s]: hosts_file: missing \"lister\" config, doing nothing", state.Topology)
		go h.Finish(nil)
		return h, nil
	}

	runOnce := func(previous topology.Set) topology.Set {
		hosts, err := readHosts(path)
		if err != nil {
			logutil.Warnf(state.Logger, "topology[%s]: hosts_file: %v", state.Topology, err)
			return previous
		}
		desired := topology.NewSet()
		for _, host := range hosts {
			names, err := lister.NamesAt(host)
			if err != nil {
				logutil.Warnf(state.Logger, "topology[%s]: hosts_file: lister error for %q: %v", state.Topology, host, err)
				continue
			}
			for _, n := range names {
				peer := topology.Peer(n + "@" + host)
				if peer == state.Self {
					continue
				}
				desired.Add(peer)
			}
		}
		return topology.Reconcile(state.Topology, desired, previous, state.Callbacks, state.Self, state.Logger)
	}

	if _, err := os.Stat(path); err != nil {
		logutil.Warnf(state.Logger, "topology[%s]: hosts_file: %q: %v", state.Topology, path, err)
		go h.Finish(nil)
		return h, nil
	}

	if timeoutMs <= 0 {
		go func() {
			runOnce(topology.NewSet())
			h.Finish(nil)
		}()
		return h, nil
	}

	go func() {
		previous := runOnce(topology.NewSet())
		ticker := time.NewTicker(time.Duration(timeoutMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.Finish(nil)
				return
			case <-ticker.C:
				previous = runOnce(previous)
			}
		}
	}()
	return h, nil
}

func readHosts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var hosts []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, line)
	}
	return hosts, s.Err()
}
