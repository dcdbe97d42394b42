//go:build unix

package control

import "syscall"

// sysProcAttr puts the child in its own process group so signals aimed at
// the agent (including a service stop) do not reach it.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
