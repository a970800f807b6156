// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/perfmap/internal/controller"

// ErrorWithExitCode provides an error with an exit code
// Used to be able to return errors with the exit code the CLI is expected to
// return when exiting.
type ErrorWithExitCode struct {
	error
	code int
}

func (e ErrorWithExitCode) Code() int {
	return e.code
}

func (e ErrorWithExitCode) Unwrap() error {
	return e.error
}

// ExitCodeError wraps err so that the CLI exits with code.
func ExitCodeError(err error, code int) error {
	if err == nil {
		return nil
	}
	return ErrorWithExitCode{error: err, code: code}
}
