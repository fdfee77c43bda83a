package authkit

// Operation names reported to an Observer.
const (
	OpRegister     = "register"
	OpAuthenticate = "authenticate"
	OpVerifyMFA    = "verify_mfa"
	OpAuthorize    = "authorize"
	OpPermission   = "permission"
	OpLogout       = "logout"
	OpRefresh      = "refresh"
	OpEnrollMFA    = "enroll_mfa"
	OpDisableMFA   = "disable_mfa"
)

// Observer is told how each Manager operation ended. err is nil on
// success. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(op string, err error)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(op string, err error)

func (f ObserverFunc) Observe(op string, err error) { f(op, err) }

func (m *Manager) observe(op string, errp *error) {
	if m.Observer == nil {
		return
	}
	m.Observer.Observe(op, *errp)
}
