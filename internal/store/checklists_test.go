package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetChecklist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &Checklist{
		ID: "c1", Standard: "RICS", ItemsJSON: json.RawMessage(`[{"id":"i1","text":"check flashing"}]`),
		CreatedAt: NowNano(), UpdatedAt: NowNano(),
	}
	require.NoError(t, s.SaveChecklist(ctx, c))

	got, err := s.GetChecklist(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "RICS", got.Standard)
}

func TestGetChecklist_NotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetChecklist(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestListChecklists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChecklist(ctx, &Checklist{ID: "c1", Standard: "B", CreatedAt: NowNano(), UpdatedAt: NowNano()}))
	require.NoError(t, s.SaveChecklist(ctx, &Checklist{ID: "c2", Standard: "A", CreatedAt: NowNano(), UpdatedAt: NowNano()}))

	checklists, err := s.ListChecklists(ctx)
	require.NoError(t, err)
	require.Len(t, checklists, 2)
	assert.Equal(t, "A", checklists[0].Standard)
}
