package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/eventloop"
	"github.com/jcelaya/stars/pkg/executor/simulated"
	"github.com/jcelaya/stars/pkg/logging"
	"github.com/jcelaya/stars/pkg/node"
	"github.com/jcelaya/stars/pkg/overlay/static"
	"github.com/jcelaya/stars/pkg/transport/libp2pbus"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:     "stars-node",
		Short:   "Run a STaRS distributed scheduling node",
		Version: "dev",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults)")
	root.AddCommand(startCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("stars-node: %v", err))
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a node and block until it is stopped",
		RunE:  runStart,
	}
	cmd.Flags().Uint64("id", 0, "this node's address (overrides config node.id)")
	cmd.Flags().String("policy", "", "admission policy: ibp, mmp, dp, fsp (overrides config node.policy)")
	cmd.Flags().String("listen", "", "admin API listen address (overrides config api.listen)")
	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("id") {
		id, _ := cmd.Flags().GetUint64("id")
		cfg.Node.ID = id
	}
	if cmd.Flags().Changed("policy") {
		policy, _ := cmd.Flags().GetString("policy")
		cfg.Node.Policy = policy
	}
	if cmd.Flags().Changed("listen") {
		listen, _ := cmd.Flags().GetString("listen")
		cfg.API.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	log := logging.New(cfg.Logging)
	log = logging.Component(log, "stars-node")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := eventloop.NewLoop(nil, log, 0)

	bus, err := libp2pbus.New(ctx, address.New(cfg.Node.ID), cfg, loop, log)
	if err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}

	ovl := static.New(cfg.Tree)
	exec := simulated.New(cfg.Exec, cfg.Node.Power)

	n, err := node.New(cfg, ovl, bus, exec, loop, prometheus.DefaultRegisterer, log)
	if err != nil {
		return fmt.Errorf("constructing node: %w", err)
	}

	fmt.Println(color.CyanString("stars-node starting"))
	fmt.Printf("  node id:  %d\n", cfg.Node.ID)
	fmt.Printf("  policy:   %s\n", cfg.Node.Policy)
	fmt.Printf("  admin API: %s\n", cfg.API.Listen)
	fmt.Println(color.GreenString("ready"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if err := n.Run(ctx); err != nil {
		return fmt.Errorf("running node: %w", err)
	}
	return nil
}
