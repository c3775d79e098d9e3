package cli

import (
	"os"
	"os/signal"
	"syscall"
)

// WaitForShutdown returns a channel that receives SIGINT and SIGTERM.
func WaitForShutdown() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}
