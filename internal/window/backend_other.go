//go:build !windows

package window

const defaultBackendName = BackendX11

func newWin32Backend() (Backend, error) {
	return nil, ErrBackendUnavailable
}
