package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSyncState_NeverSynced(t *testing.T) {
	s := newTestStore(t)

	st, err := s.GetSyncState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Nil(t, st.LastBootstrapAt)
	assert.Nil(t, st.LastUploadAt)
}

func TestSetLastBootstrapAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := NowNano()
	require.NoError(t, s.SetLastBootstrapAt(ctx, at))

	st, err := s.GetSyncState(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.LastBootstrapAt)
	assert.Equal(t, at, *st.LastBootstrapAt)
}

func TestSetLastUploadAt_PreservesBootstrapTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bootstrapAt := NowNano()
	require.NoError(t, s.SetLastBootstrapAt(ctx, bootstrapAt))

	uploadAt := bootstrapAt + 1000
	require.NoError(t, s.SetLastUploadAt(ctx, uploadAt))

	st, err := s.GetSyncState(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.LastBootstrapAt)
	require.NotNil(t, st.LastUploadAt)
	assert.Equal(t, bootstrapAt, *st.LastBootstrapAt)
	assert.Equal(t, uploadAt, *st.LastUploadAt)
}
