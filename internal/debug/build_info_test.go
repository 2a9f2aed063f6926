package debug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildInfo(t *testing.T) {
	// test binaries have no vcs stamp and "(devel)" main module version
	info := BuildInfo()
	for _, kv := range strings.Fields(info) {
		key, _, ok := strings.Cut(kv, "=")
		require.True(t, ok, kv)
		require.True(t, key == "version" || strings.HasPrefix(key, "vcs."), kv)
	}
}
