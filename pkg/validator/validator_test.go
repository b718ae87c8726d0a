package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type joinInput struct {
	RoomId   string `json:"room_id" validate:"required"`
	Username string `json:"username" validate:"required,min=1,max=8"`
	Index    int    `json:"index" validate:"gte=0"`
}

func TestValidateOk(t *testing.T) {
	v := NewValidator()

	errs, ok := v.Validate(joinInput{RoomId: "r1", Username: "alice", Index: 3})
	assert.True(t, ok)
	assert.Empty(t, errs)
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()

	errs, ok := v.Validate(joinInput{Username: "way-too-long-name", Index: -1})
	require.False(t, ok)
	require.Len(t, errs, 3)

	byField := make(map[string]ValidationError, len(errs))
	for _, e := range errs {
		byField[e.Field] = e
	}

	require.Contains(t, byField, "room_id")
	assert.Equal(t, "REQUIRED", byField["room_id"].Code)
	assert.Equal(t, "room_id is required", byField["room_id"].Message)

	require.Contains(t, byField, "username")
	assert.Equal(t, "MAX", byField["username"].Code)

	require.Contains(t, byField, "index")
	assert.Equal(t, "GTE", byField["index"].Code)
}
