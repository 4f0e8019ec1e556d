//go:build linux

package runtime

import (
	"os/exec"
	"syscall"
)

// setPlatformSpecificAttrs configures process attributes for Linux. Pdeathsig
// ensures the kernel kills the bridged engine process if the parent exits,
// so no orphaned recognizers survive a crash.
func setPlatformSpecificAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGKILL,
	}
}
