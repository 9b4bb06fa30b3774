// Package daemonrun hosts the background process lifecycle: single-instance
// locking, pid file management, and startup/shutdown of the workflow manager.
package daemonrun
