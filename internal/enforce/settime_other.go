//go:build !linux && !darwin && !freebsd

package enforce

import (
	"errors"
	"time"
)

func setSystemClock(time.Time) error {
	return errors.ErrUnsupported
}
