package channel

import (
	"github.com/btcsuite/btclog"
)

// log is the subsystem logger for the channel package, following the same
// UseLogger/DisableLog convention btcd and lnd packages use: silent by
// default, wired up to a real backend by whatever binary embeds this
// package (see cmd/thorctl).
var log btclog.Logger

func init() {
	DisableLog()
}

// DisableLog disables all library log output.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}
