package games

import "fmt"

// ConfigError rejects a play before any randomness is consumed: bad
// rows/risk, grid bounds, or a bet outside the configured limits. The
// caller can always recover by re-prompting.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func ConfigErrorf(format string, args ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// StateError signals an operation against a round in the wrong state:
// reveal on a completed round, duplicate join, starting a round while one
// is active. The caller should refetch round state.
type StateError struct {
	msg string
}

func (e *StateError) Error() string { return e.msg }

func StateErrorf(format string, args ...interface{}) error {
	return &StateError{msg: fmt.Sprintf(format, args...)}
}

// VerifyError means a recomputed outcome disagrees with the stored one.
// This never happens in normal operation; the audit record it concerns
// should be treated as compromised.
type VerifyError struct {
	msg string
}

func (e *VerifyError) Error() string { return e.msg }

func VerifyErrorf(format string, args ...interface{}) error {
	return &VerifyError{msg: fmt.Sprintf(format, args...)}
}
