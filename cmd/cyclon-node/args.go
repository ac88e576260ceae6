package main

import (
	"flag"
	"strings"
	"time"
)

type cliArgs struct {
	selfAddr       string
	bindAddr       string
	seedAddrs      string
	viewCapacity   int
	healing        int
	swap           int
	push           bool
	pull           bool
	gossipInterval time.Duration
	selectorKind   string
	dumpInterval   time.Duration
	verbose        bool
}

func parseCliArgs() cliArgs {
	args := cliArgs{}

	flag.StringVar(&args.selfAddr, "self-addr", "", "address other nodes should use to reach this node")
	flag.StringVar(&args.bindAddr, "bind-addr", "0.0.0.0:7711", "address to bind the gossip server")
	flag.StringVar(&args.seedAddrs, "seed-addrs", "", "comma-separated list of seed addresses to enter the overlay with")

	flag.IntVar(&args.viewCapacity, "view-capacity", 20, "maximum number of peers kept in the view")
	flag.IntVar(&args.healing, "healing", 1, "number of oldest view entries evicted unconditionally when over capacity")
	flag.IntVar(&args.swap, "swap", 0, "number of front-of-view entries evicted after the healing quota")
	flag.BoolVar(&args.push, "push", true, "send this node's sample to the gossip partner every round")
	flag.BoolVar(&args.pull, "pull", true, "request a sample from the gossip partner every round")
	flag.DurationVar(&args.gossipInterval, "gossip-interval", 10*time.Second, "time between gossip rounds")

	flag.StringVar(&args.selectorKind, "selector", "tail", "peer selection strategy: tail, uniform_random or uniform_random_no_replacement")
	flag.DurationVar(&args.dumpInterval, "dump-interval", 30*time.Second, "how often to log the current view")

	flag.BoolVar(&args.verbose, "verbose", false, "verbose mode")

	flag.Parse()

	return args
}

func (a cliArgs) seeds() []string {
	if a.seedAddrs == "" {
		return nil
	}

	parts := strings.Split(a.seedAddrs, ",")
	seeds := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			seeds = append(seeds, p)
		}
	}

	return seeds
}
