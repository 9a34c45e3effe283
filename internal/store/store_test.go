package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullableStringEmptyBecomesNil(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "agent_1", nullableString("agent_1"))
}
