//go:build !linux

package runtime

import "os/exec"

// setPlatformSpecificAttrs is a no-op outside Linux. Pdeathsig is not
// available there; process lifecycle relies on the context's termination
// signal provided by exec.CommandContext.
func setPlatformSpecificAttrs(cmd *exec.Cmd) {}
