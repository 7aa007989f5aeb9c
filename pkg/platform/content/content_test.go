package content_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/lti-platform/pkg/platform/content"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

func TestCanRead(t *testing.T) {
	assert.True(t, content.CanRead(content.Post{Status: content.StatusPublish}, lti.User{}))
	assert.False(t, content.CanRead(content.Post{Status: content.StatusDraft}, lti.User{ID: "7"}))
	assert.True(t, content.CanRead(content.Post{Status: content.StatusPrivate}, lti.User{CanManage: true}))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := content.NewMemoryStore()

	p, err := s.Save(ctx, content.Post{Title: "Week 1", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, content.StatusPublish, p.Status)

	p.Content = "changed"
	_, err = s.Save(ctx, p)
	require.NoError(t, err)
	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Content)
	assert.Equal(t, p.Created, got.Created)

	_, err = s.Save(ctx, content.Post{ID: 99})
	assert.ErrorIs(t, err, content.ErrNotFound)

	require.NoError(t, s.Delete(ctx, p.ID))
	_, err = s.Get(ctx, p.ID)
	assert.ErrorIs(t, err, content.ErrNotFound)
}
