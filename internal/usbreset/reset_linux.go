package usbreset

import "golang.org/x/sys/unix"

// usbdevfsReset is USBDEVFS_RESET, _IO('U', 20).
const usbdevfsReset = 0x5514

func resetNode(path string) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer func() { _ = unix.Close(fd) }()
	return unix.IoctlSetInt(fd, usbdevfsReset, 0)
}
