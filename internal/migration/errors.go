package migration

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidFilename indicates a file that does not follow the
	// YYYYMMDD_HHMMSS_description.sql naming convention.
	ErrInvalidFilename = errors.New("invalid migration filename")

	// ErrNoRollbackScript indicates an applied version with no paired
	// rollback script on disk.
	ErrNoRollbackScript = errors.New("no rollback script")
)

// ConnectivityError marks a failure to reach the database. It is the only
// error class the container wrapper retries.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("database unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// StatementError marks a migration or rollback statement that failed to
// execute. It names the offending version and is never retried: re-running
// broken SQL will not succeed.
type StatementError struct {
	Version   string
	Statement int
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("migration %s failed at statement %d: %v", e.Version, e.Statement, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is connectivity-class and worth retrying.
// Statement and content failures are permanent and surface immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		return false
	}
	var connErr *ConnectivityError
	if errors.As(err, &connErr) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
