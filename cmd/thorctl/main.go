// Command thorctl is a thin demonstration binary over package channel,
// scaled down from cmd/lncli's one-thin-command-per-RPC layout to the
// handful of operations this library exposes: it runs two in-process
// parties over a loopback transport through open, an update that pays
// the counterparty, and a collaborative close, and prints the resulting
// balances, in the style of lnd's own end-to-end itests but packaged as
// a runnable CLI rather than a test.
package main

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[thorctl] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "thorctl"
	app.Usage = "drive the thor payment-channel library without a real Bitcoin node"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "debuglevel",
			Value: "info",
			Usage: "logging level for every subsystem (trace, debug, info, warn, error, critical, off)",
		},
	}
	app.Commands = []cli.Command{demoCommand}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func levelFromContext(ctx *cli.Context) btclog.Level {
	level, ok := btclog.LevelFromString(ctx.GlobalString("debuglevel"))
	if !ok {
		return btclog.LevelInfo
	}
	return level
}
