//go:build !unix

package control

import "syscall"

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}
