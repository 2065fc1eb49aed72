package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder("iov/v1/")

	assert.Equal(t, "iov/v1/driver/state/Vehicle-01", b.DriverState("Vehicle-01"))
	assert.Equal(t, "iov/v1/driver/state/+", b.DriverStateWildcard())
	assert.Equal(t, "iov/v1/driver/online/mgr-a", b.ManagerOnline("mgr-a"))
}

func TestBuilderEscapesWildcards(t *testing.T) {
	b := NewBuilder("fleet")

	assert.Equal(t, "fleet/driver/state/a_b_c_d", b.DriverState("a/b+c#d"))
}
