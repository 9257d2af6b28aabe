//go:build !unix

package services

import (
	"os/exec"
	"time"
)

// configureProcessGroup only bounds the wait; the default cancel kills the
// direct child.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 5 * time.Second
}
