package phiguard

import "context"

// DeviceChecker reports whether the host has a biometric or passcode
// protection capability. The answer is advisory and is consumed by
// authorization policy outside this package; it never gates encryption.
type DeviceChecker interface {
	IsDeviceSecure(ctx context.Context) bool
}

// DeviceCheckerFunc adapts a function to DeviceChecker.
type DeviceCheckerFunc func(ctx context.Context) bool

// IsDeviceSecure calls f(ctx).
func (f DeviceCheckerFunc) IsDeviceSecure(ctx context.Context) bool {
	return f(ctx)
}

// unknownDevice is used when no checker is configured.
type unknownDevice struct{}

func (unknownDevice) IsDeviceSecure(context.Context) bool {
	return false
}
