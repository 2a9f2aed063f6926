/*
Package net helps tests to find TCP ports to listen on.
*/
package net

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// SharedPortManager is shared between tests so that the same port isn't
// handed out twice within a test binary.
var SharedPortManager = &PortManager{
	usedPorts: make(map[int]bool),
}

type PortManager struct {
	usedPorts map[int]bool
	mutex     sync.Mutex
}

func (pm *PortManager) GetFreePort() (int, error) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	for {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			return 0, err
		}
		port := l.Addr().(*net.TCPAddr).Port
		if err := l.Close(); err != nil {
			return 0, err
		}

		if !pm.usedPorts[port] {
			pm.usedPorts[port] = true
			return port, nil
		}
	}
}

// FreeAddress returns "localhost:<port>" where port is not used by other tests.
func FreeAddress(t testing.TB) string {
	port, err := SharedPortManager.GetFreePort()
	require.NoError(t, err)
	return fmt.Sprintf("localhost:%d", port)
}
