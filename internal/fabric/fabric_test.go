package fabric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalFabricIsOneRankIdentity(t *testing.T) {
	var f Fabric = Local{}
	assert.Equal(t, 0, f.Rank())
	assert.Equal(t, 1, f.Size())
	assert.Equal(t, uint64(42), f.AllReduceMin(42))
}
