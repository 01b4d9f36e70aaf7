//go:build !darwin

package permissions

// EnsurePermissions is a no-op on non-macOS platforms; capture devices are
// not permission-gated there.
func EnsurePermissions() error {
	return nil
}
