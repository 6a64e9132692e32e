package pgtest

import (
	"flag"
	"os"
	"os/signal"
)

// Inspect keeps the container running after a failed test until the user
// interrupts the test binary. The container is still reaped by testcontainers
// eventually.
var Inspect = flag.Bool("pgtest.inspect", false, "keep the postgres container running for inspection after a failed test completes")

// waitForInspection blocks until SIGINT.
func waitForInspection() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	defer signal.Stop(c)
	<-c
}
