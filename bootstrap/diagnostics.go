package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"syscall"

	"keystone/storage"
)

// DatabaseRemediation turns a connection failure into an operator hint.
func DatabaseRemediation(err error, target storage.Target) string {
	if err == nil {
		return ""
	}
	if target.Dialect == storage.DialectSQLite {
		return sqliteRemediation(err, target.Path)
	}
	return postgresRemediation(err)
}

func postgresRemediation(err error) string {
	msg := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Connection to Postgres timed out. Check that the server is up and that no firewall blocks the port."
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) || strings.Contains(msg, "connection refused") {
			return "Connection refused by Postgres. Start the server or fix the host and port in DATABASE_URL."
		}
	}

	switch {
	case strings.Contains(msg, "connection refused"):
		return "Connection refused by Postgres. Start the server or fix the host and port in DATABASE_URL."
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "lookup"):
		return "Cannot resolve the Postgres host in DATABASE_URL. Check the hostname and DNS."
	case strings.Contains(msg, "password authentication failed"), strings.Contains(msg, "authentication"):
		return "Postgres rejected the credentials. Check the user and password in DATABASE_URL."
	case strings.Contains(msg, "does not exist"):
		return "The Postgres database in DATABASE_URL does not exist. Create it first."
	}
	return "Ensure Postgres is running and reachable at DATABASE_URL."
}

func sqliteRemediation(err error, path string) string {
	if path == ":memory:" {
		return "In-memory SQLite failed to open. Check the driver build."
	}

	msg := strings.ToLower(err.Error())
	absPath, _ := filepath.Abs(path)
	parent := filepath.Dir(absPath)

	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "access denied"):
		return fmt.Sprintf("Permission denied on %s. Check ownership of the file and of %s.", absPath, parent)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "sqlite_busy"):
		return fmt.Sprintf("%s is locked by another process. Stop other instances or wait for a running migration.", absPath)
	case strings.Contains(msg, "disk full"), strings.Contains(msg, "no space"), strings.Contains(msg, "sqlite_full"):
		return fmt.Sprintf("Disk full under %s. Free space or move the database.", parent)
	case strings.Contains(msg, "corrupt"), strings.Contains(msg, "malformed"):
		return fmt.Sprintf("%s appears corrupted. Back it up, then run PRAGMA integrity_check.", absPath)
	case strings.Contains(msg, "read-only"):
		return fmt.Sprintf("%s is on a read-only file system. Point DATABASE_URL at a writable location.", absPath)
	}
	return fmt.Sprintf("Ensure %s exists and is writable.", parent)
}
