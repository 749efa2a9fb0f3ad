package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.4.2"
	assert.Equal(t, "uptime-garden/1.4.2", UserAgent("uptime-garden"))
}
