package support

import (
	"context"
	"testing"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateAndList(t *testing.T) {
	svc := NewService(repotest.NewDB(t), zap.NewNop())
	ctx := context.Background()

	user := "user-1"
	first, err := svc.Create(ctx, MessageInput{Name: " Ada ", Email: "Ada@Example.com", Subject: "Late order", Body: "Where is it?"}, &user)
	require.NoError(t, err)
	assert.Equal(t, models.SupportNew, first.Status)
	assert.Equal(t, "ada@example.com", first.Email)
	assert.Equal(t, "Ada", first.Name)

	_, err = svc.Create(ctx, MessageInput{Name: "Bob", Email: "bob@example.com", Subject: "Refund", Body: "Please"}, nil)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, first.ID, models.SupportResolved)
	require.NoError(t, err)

	all, total, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	resolved, total, err := svc.List(ctx, Filter{Status: models.SupportResolved})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, resolved, 1)
	assert.Equal(t, first.ID, resolved[0].ID)
	require.NotNil(t, resolved[0].UserID)
	assert.Equal(t, "user-1", *resolved[0].UserID)
}

func TestUpdateStatus(t *testing.T) {
	svc := NewService(repotest.NewDB(t), zap.NewNop())
	ctx := context.Background()

	msg, err := svc.Create(ctx, MessageInput{Name: "Ada", Email: "ada@example.com", Subject: "Hi", Body: "Hello"}, nil)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, msg.ID, models.SupportInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.SupportInProgress, updated.Status)

	_, err = svc.UpdateStatus(ctx, msg.ID, "archived")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	_, err = svc.UpdateStatus(ctx, "missing", models.SupportClosed)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
