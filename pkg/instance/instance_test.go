package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrecedence(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	assert.Equal(t, "local", GetID())

	t.Setenv("DYNO", "web.1")
	assert.Equal(t, "web.1", GetID())

	t.Setenv("STOREFRONT_INSTANCE_ID", "api-7")
	assert.Equal(t, "api-7", GetID())
}
