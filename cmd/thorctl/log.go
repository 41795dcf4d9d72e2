package main

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/ptlc-labs/thor/channel"
	"github.com/ptlc-labs/thor/swap"
)

// backendLog is the single logging backend every subsystem logger below
// writes through, the same one-backend-many-subloggers shape cmd/lncli's
// daemon uses (see lnd's daemon/log.go): a subsystem tag per package,
// fanned out from one io.Writer.
var backendLog = btclog.NewBackend(os.Stdout)

var (
	chanLog = backendLog.Logger("CHAN")
	swapLog = backendLog.Logger("SWAP")
)

// useLoggers wires every library package's subsystem logger to this
// binary's backend. A library consumer that doesn't care about logs never
// calls this and gets btclog.Disabled by default (see channel/log.go,
// swap/log.go).
func useLoggers(level btclog.Level) {
	chanLog.SetLevel(level)
	swapLog.SetLevel(level)
	channel.UseLogger(chanLog)
	swap.UseLogger(swapLog)
}
