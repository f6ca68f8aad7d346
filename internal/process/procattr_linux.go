package process

import "syscall"

// sysProcAttr puts the child in its own process group so a forced kill reaches
// anything it spawned. Pdeathsig asks the kernel to SIGTERM the child if the
// supervisor dies without running the stop sequence.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
