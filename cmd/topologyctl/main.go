package main

import (
	"log"

	"github.com/spf13/cobra"

	topocli "github.com/bitwalker/libcluster/pkg/cli"

	// Strategy packages register themselves with the topology package via
	// init(); importing them for side effects is what makes their "strategy"
	// id usable from a YAML config file.
	_ "github.com/bitwalker/libcluster/pkg/strategy/dnsa"
	_ "github.com/bitwalker/libcluster/pkg/strategy/dnssrv"
	_ "github.com/bitwalker/libcluster/pkg/strategy/gossip"
	_ "github.com/bitwalker/libcluster/pkg/strategy/hostsfile"
	_ "github.com/bitwalker/libcluster/pkg/strategy/kubernetes"
	_ "github.com/bitwalker/libcluster/pkg/strategy/localepmd"
	_ "github.com/bitwalker/libcluster/pkg/strategy/memberlist"
	_ "github.com/bitwalker/libcluster/pkg/strategy/nomad"
	_ "github.com/bitwalker/libcluster/pkg/strategy/rancher"
	_ "github.com/bitwalker/libcluster/pkg/strategy/static"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "topologyctl",
		Short:         "libcluster topology supervisor CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	topocli.AddAll(root)
	return root
}
