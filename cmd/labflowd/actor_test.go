package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rom8726/labflow"
)

func TestActorFromHeaders(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/items/1/queue", nil)
	_, err := actorFromHeaders(req)
	assert.ErrorIs(t, err, labflow.ErrPermissionDenied)

	req.Header.Set(headerActorID, "tech-7")
	actor, err := actorFromHeaders(req)
	require.NoError(t, err)
	assert.Equal(t, labflow.Actor{ID: "tech-7"}, actor)

	req.Header.Set(headerActorAll, "true")
	actor, err = actorFromHeaders(req)
	require.NoError(t, err)
	assert.True(t, actor.CanAccessAll)

	req.Header.Set(headerActorAll, "maybe")
	_, err = actorFromHeaders(req)
	assert.ErrorIs(t, err, labflow.ErrInvalidInput)
}
