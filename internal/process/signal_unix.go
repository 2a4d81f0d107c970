//go:build unix

package process

import "syscall"

const syscallSignal0 = syscall.Signal(0)

func terminateGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
}

func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func setDetachedGroup() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
