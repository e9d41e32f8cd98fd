package tracker

import "errors"

// Errors that abort a whole pass.
var (
	ErrAuthentication    = errors.New("local authentication failed")
	ErrIncompatibleAPI   = errors.New("remote API version not compatible")
	ErrRemoteLogon       = errors.New("remote logon failed")
	ErrNonNumericProject = errors.New("project external key must be numeric")
)

// errPolicySkip marks a record excluded by configuration rather than failure.
var errPolicySkip = errors.New("skipped by policy")
