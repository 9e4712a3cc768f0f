package guarded

import (
	"os"

	"github.com/vaultcore/stronghold/pkg/log"
)

// fatalHook is called for unrecoverable memory-safety violations: canary
// corruption, double free, use after free, or a zeroize/mprotect/munmap
// syscall failure. It is a variable rather than a constant call so tests
// can substitute a non-exiting hook and assert it was invoked.
var fatalHook = func(reason string) {
	log.Logger.Error().Str("reason", reason).Msg("guarded: fatal memory-safety violation, aborting")
	os.Exit(2)
}

func fatal(reason string) {
	fatalHook(reason)
}
