package swap

import (
	"github.com/btcsuite/btclog"
)

// log is the subsystem logger for the swap package, following the same
// UseLogger/DisableLog convention as the channel package.
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
