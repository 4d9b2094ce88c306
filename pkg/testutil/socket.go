// Package testutil holds helpers shared by the clipbridge test suites.
package testutil

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

var socketSeq atomic.Uint64

// SocketPath returns a unique socket path under /tmp. Paths inside t.TempDir()
// can exceed the 104 byte sun_path limit on macOS.
func SocketPath(t *testing.T) string {
	t.Helper()

	name := fmt.Sprintf("cb-%d-%d.sock", os.Getpid(), socketSeq.Add(1))
	path := filepath.Join(os.TempDir(), name)
	if len(path) > 100 {
		path = filepath.Join("/tmp", name)
	}

	t.Cleanup(func() {
		_ = os.Remove(path)
	})
	return path
}

// WaitForSocket blocks until something accepts connections on path or the
// timeout passes.
func WaitForSocket(t *testing.T, path string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("unix", path, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s not ready after %v", path, timeout)
}
