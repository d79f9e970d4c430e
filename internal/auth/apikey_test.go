package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIKeyAuth(t *testing.T) {
	a := NewAPIKeyAuth([]string{" ops-key ", "", "backup"})

	assert.True(t, a.Enabled())
	assert.True(t, a.IsValidKey("ops-key"))
	assert.True(t, a.IsValidKey("backup"))
	assert.False(t, a.IsValidKey(""))
	assert.False(t, a.IsValidKey("ops"))

	assert.False(t, NewAPIKeyAuth(nil).Enabled())
}
