//go:build !linux

package usbreset

import "errors"

func resetNode(string) error {
	return errors.ErrUnsupported
}
