// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

//go:build !windows

package processqueue

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// waitForSignals waits for signals and handles them.
// It handles SIGTERM, SIGINT, and SIGTSTP.
// SIGTERM and SIGINT will signal the process to exit.
// SIGTSTP will signal the queue to stop dispatching; a following SIGCONT
// starts it again.
func (q *Queue[T]) waitForSignals() {
	q.logger.Info("Send signal TSTP to stop dispatching new items")
	q.logger.Info("Send signal TERM or INT to terminate the process")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP, unix.SIGCONT)
	defer signal.Stop(sigs)
	for {
		sig := <-sigs
		switch sig {
		case unix.SIGTSTP:
			q.Stop()
			continue
		case unix.SIGCONT:
			if err := q.Start(); err != nil {
				q.logger.Errorf("Failed to restart queue %q: %v", q.name, err)
			}
			continue
		}
		break
	}
}
