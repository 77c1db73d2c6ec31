// memdemo is a small standalone binary demonstrating the memberlist
// topology strategy (pkg/strategy/memberlist) in isolation, the way the
// original memdemo drove a bare membership.Memberlist by hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bitwalker/libcluster/pkg/registry"
	"github.com/bitwalker/libcluster/pkg/topology"

	_ "github.com/bitwalker/libcluster/pkg/strategy/memberlist"
)

func main() {
	var (
		id        = flag.String("id", "node-1", "node id (used as the Peer's basename@bind identity, bind being host:port)")
		bind      = flag.String("bind", "0.0.0.0:7946", "bind host:port")
		advertise = flag.String("advertise", "", "advertise host:port (optional)")
		joinCSV   = flag.String("join", "", "comma-separated seeds (host:port)")
	)
	flag.Parse()

	ctx, cancel := signalContext()
	defer cancel()

	self := topology.Peer(*id + "@" + *bind)
	reg := registry.New(self, "")

	cfg := topology.Configuration{
		"memdemo": topology.TopologyConfig{
			Strategy:      "memberlist",
			Self:          self,
			Connect:       reg.Callbacks().Connect,
			Disconnect:    reg.Callbacks().Disconnect,
			ListConnected: reg.Callbacks().ListConnected,
			Config: topology.Spec{
				"bind":      *bind,
				"advertise": *advertise,
				"seeds":     splitCSV(*joinCSV),
			},
		},
	}

	sup, err := topology.Start(ctx, cfg, topology.Options{Logger: log.Default()})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("memdemo started. Press Ctrl+C to exit.")
	<-ctx.Done()
	sup.Stop()
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx, cancel
}
