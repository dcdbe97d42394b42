// Package usbreset re-enumerates a USB device by issuing a port reset, the
// software equivalent of unplugging it. The agent uses it to recover a
// capture card that stopped delivering frames.
package usbreset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound is returned when no attached device matches the ids.
var ErrNotFound = errors.New("usbreset: device not found")

// Default sysfs and devfs locations.
const (
	DefaultSysfsRoot = "/sys/bus/usb/devices"
	DefaultDevRoot   = "/dev/bus/usb"
)

// Device is an attached USB device.
type Device struct {
	SysfsPath string
	Bus       int
	Dev       int
}

// Resetter locates devices under SysfsRoot and resets them through the
// device nodes under DevRoot.
type Resetter struct {
	SysfsRoot string
	DevRoot   string
}

// New returns a Resetter for the standard Linux locations.
func New() *Resetter {
	return &Resetter{SysfsRoot: DefaultSysfsRoot, DevRoot: DefaultDevRoot}
}

// DevNode returns the usbfs node of d, e.g. /dev/bus/usb/001/004.
func (r *Resetter) DevNode(d Device) string {
	return filepath.Join(r.DevRoot, fmt.Sprintf("%03d", d.Bus), fmt.Sprintf("%03d", d.Dev))
}

// Find returns the first device whose idVendor and idProduct match. Ids are
// four hex digits and compared case-insensitively.
func (r *Resetter) Find(vendorID, productID string) (Device, error) {
	entries, err := os.ReadDir(r.SysfsRoot)
	if err != nil {
		return Device{}, fmt.Errorf("read %s: %w", r.SysfsRoot, err)
	}
	for _, e := range entries {
		dir := filepath.Join(r.SysfsRoot, e.Name())
		if !strings.EqualFold(readAttr(dir, "idVendor"), vendorID) ||
			!strings.EqualFold(readAttr(dir, "idProduct"), productID) {
			continue
		}
		bus, err := strconv.Atoi(readAttr(dir, "busnum"))
		if err != nil {
			return Device{}, fmt.Errorf("%s busnum: %w", dir, err)
		}
		dev, err := strconv.Atoi(readAttr(dir, "devnum"))
		if err != nil {
			return Device{}, fmt.Errorf("%s devnum: %w", dir, err)
		}
		return Device{SysfsPath: dir, Bus: bus, Dev: dev}, nil
	}
	return Device{}, fmt.Errorf("%w: %s:%s", ErrNotFound, vendorID, productID)
}

// Reset finds the device and resets it.
func (r *Resetter) Reset(vendorID, productID string) error {
	d, err := r.Find(vendorID, productID)
	if err != nil {
		return err
	}
	node := r.DevNode(d)
	if err := resetNode(node); err != nil {
		return fmt.Errorf("reset %s: %w", node, err)
	}
	return nil
}

// readAttr returns the trimmed content of a sysfs attribute, or "".
func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
