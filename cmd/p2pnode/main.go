// Command p2pnode is a thin runnable harness around pkg/net, grounded
// on the teacher's cli/main.go flag-driven bootstrapper: it loads a
// config file, parses a seed/manual-peer list from flags, starts the
// node, and blocks until an interrupt is delivered.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli"

	"github.com/netstrand/p2pnode/pkg/config"
	"github.com/netstrand/p2pnode/pkg/net"
	"github.com/netstrand/p2pnode/pkg/p2paddr"
)

func main() {
	app := cli.NewApp()
	app.Name = "p2pnode"
	app.Usage = "run the networking core as a standalone node"
	app.Version = config.Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: config.DefaultConfigPath,
			Usage: "path to the YAML config file",
		},
		cli.StringFlag{
			Name:  "self",
			Usage: "this node's own advertised host:port",
		},
		cli.StringFlag{
			Name:  "seed",
			Usage: "comma-separated seed host:port list to bootstrap from",
		},
		cli.StringFlag{
			Name:  "peer",
			Usage: "comma-separated fixed manual peer host:port list",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.LoadFile(c.String("config"))
	if err != nil {
		return err
	}

	var self p2paddr.Authority
	if s := c.String("self"); s != "" {
		self, err = p2paddr.ParseAuthority(s)
		if err != nil {
			return fmt.Errorf("invalid -self: %w", err)
		}
	}

	seeds, err := parseAuthorities(c.String("seed"))
	if err != nil {
		return fmt.Errorf("invalid -seed: %w", err)
	}
	manual, err := parseAuthorities(c.String("peer"))
	if err != nil {
		return fmt.Errorf("invalid -peer: %w", err)
	}

	n, err := net.New(cfg, net.Options{
		Self:        self,
		Seeds:       seeds,
		ManualPeers: manual,
		StartHeight: func() uint32 { return 0 },
	})
	if err != nil {
		return err
	}

	if code := n.Start(); !code.Ok() {
		return fmt.Errorf("node failed to start: %s", code)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	n.Stop()
	return nil
}

// parseAuthorities splits a comma-separated host:port list.
func parseAuthorities(s string) ([]p2paddr.Authority, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]p2paddr.Authority, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		a, err := p2paddr.ParseAuthority(p)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
