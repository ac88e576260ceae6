package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/cyclon/gossip"
	"github.com/maxpoletaev/cyclon/view"
)

func parseSelectorKind(s string) (view.SelectorKind, error) {
	switch s {
	case "tail":
		return view.Tail, nil
	case "uniform_random":
		return view.UniformRandom, nil
	case "uniform_random_no_replacement":
		return view.UniformRandomNoReplacement, nil
	default:
		return 0, fmt.Errorf("unknown selector kind %q", s)
	}
}

func main() {
	appctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := parseCliArgs()

	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	if !args.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	selectorKind, err := parseSelectorKind(args.selectorKind)
	if err != nil {
		level.Error(logger).Log("msg", "invalid selector kind", "err", err)
		os.Exit(1)
	}

	selfAddr := args.selfAddr
	if selfAddr == "" {
		selfAddr = args.bindAddr
	}

	conf := gossip.DefaultConfig()
	conf.BindAddr = args.bindAddr
	conf.ViewCapacity = args.viewCapacity
	conf.Healing = args.healing
	conf.Swap = args.swap
	conf.Push = args.push
	conf.Pull = args.pull
	conf.GossipInterval = args.gossipInterval
	conf.SelectorKind = selectorKind
	conf.Logger = logger

	svc, err := gossip.New(selfAddr, conf)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create gossip service", "err", err)
		os.Exit(1)
	}

	if err := svc.StartServer(); err != nil {
		level.Error(logger).Log("msg", "failed to start gossip server", "addr", args.bindAddr, "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "gossip server started", "self_addr", selfAddr, "bind_addr", args.bindAddr)

	joinCtx, joinCancel := context.WithTimeout(appctx, 10*time.Second)
	err = svc.Enter(joinCtx, args.seeds()...)
	joinCancel()

	if err != nil {
		level.Warn(logger).Log("msg", "failed to enter the overlay through any seed", "err", err)
	} else {
		level.Info(logger).Log("msg", "entered the overlay", "seeds", args.seedAddrs)
	}

	if err := svc.StartClient(); err != nil {
		level.Error(logger).Log("msg", "failed to start gossip client loop", "err", err)
		os.Exit(1)
	}

	ticker := time.NewTicker(args.dumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-appctx.Done():
			level.Info(logger).Log("msg", "shutting down")

			if err := svc.Stop(); err != nil {
				level.Error(logger).Log("msg", "failed to stop gossip service", "err", err)
			}

			return

		case <-ticker.C:
			addrs := svc.View().Addresses()

			level.Debug(logger).Log("msg", "current view", "size", len(addrs), "addrs", fmt.Sprint(addrs))
		}
	}
}
