package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVersion(t *testing.T, v string) {
	old := Version
	Version = v
	t.Cleanup(func() { Version = old })
}

func TestGet(t *testing.T) {
	withVersion(t, "v1.2")
	v, err := Get()
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", v.String())
	assert.Equal(t, "1.2.0", String())
}

func TestInvalidVersion(t *testing.T) {
	withVersion(t, "dev-build")
	_, err := Get()
	assert.Error(t, err)
	assert.Equal(t, "dev-build", String())
}
