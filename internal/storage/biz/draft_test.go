package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
)

type fakeDraftStore struct {
	drafts  map[int64]*Draft
	lastTTL time.Duration
}

func newFakeDraftStore() *fakeDraftStore {
	return &fakeDraftStore{drafts: make(map[int64]*Draft)}
}

func (s *fakeDraftStore) Get(_ context.Context, ownerID int64) (*Draft, error) {
	d, ok := s.drafts[ownerID]
	if !ok {
		return nil, nil
	}
	cp := *d
	cp.Files = append([]FileEntry(nil), d.Files...)
	return &cp, nil
}

func (s *fakeDraftStore) Save(_ context.Context, d *Draft, ttl time.Duration) error {
	s.drafts[d.OwnerID] = d
	s.lastTTL = ttl
	return nil
}

func (s *fakeDraftStore) Delete(_ context.Context, ownerID int64) error {
	delete(s.drafts, ownerID)
	return nil
}

func newTestDraftFlow(channels ...string) (*DraftFlow, *fakeDraftStore, *fakeChannelStore) {
	store := newFakeChannelStore(channels...)
	drafts := newFakeDraftStore()
	flow := NewDraftFlow(drafts, NewUploadCoordinator(store, logger.L()), logger.L())
	return flow, drafts, store
}

func TestDraftAccumulatesFiles(t *testing.T) {
	flow, drafts, _ := newTestDraftFlow("a", "b")
	ctx := context.Background()

	d, err := flow.Append(ctx, 1, inbound("one.txt", "first"))
	require.NoError(t, err)
	require.Len(t, d.Files, 1)
	assert.False(t, d.StartedAt.IsZero())
	assert.Equal(t, DefaultDraftTTL, drafts.lastTTL)

	d, err = flow.Append(ctx, 1, inbound("two.txt", "second"))
	require.NoError(t, err)
	require.Len(t, d.Files, 2)
	assert.Equal(t, "one.txt", d.Files[0].Name)
	assert.Equal(t, "two.txt", d.Files[1].Name)

	// Each file is already replicated across both channels.
	for _, entry := range d.Files {
		assert.Len(t, entry.Copies(), 2)
	}
}

func TestDraftSetCategoryOpensSession(t *testing.T) {
	flow, _, _ := newTestDraftFlow("a")
	ctx := context.Background()

	d, err := flow.SetCategory(ctx, 1, "Movies")
	require.NoError(t, err)
	assert.Equal(t, "Movies", d.Category)

	d, err = flow.Append(ctx, 1, inbound("film.mp4", "bytes"))
	require.NoError(t, err)
	assert.Equal(t, "Movies", d.Category)
}

func TestDraftDiscardRemovesStoredCopies(t *testing.T) {
	flow, drafts, store := newTestDraftFlow("a", "b")
	ctx := context.Background()

	_, err := flow.Append(ctx, 1, inbound("one.txt", "first"))
	require.NoError(t, err)
	require.Len(t, store.objects, 2)

	require.NoError(t, flow.Discard(ctx, 1))
	assert.Empty(t, store.objects)
	assert.Empty(t, drafts.drafts)

	// Discarding again is a no-op.
	require.NoError(t, flow.Discard(ctx, 1))
}

func TestDraftClearKeepsStoredCopies(t *testing.T) {
	flow, drafts, store := newTestDraftFlow("a")
	ctx := context.Background()

	_, err := flow.Append(ctx, 1, inbound("one.txt", "first"))
	require.NoError(t, err)

	require.NoError(t, flow.Clear(ctx, 1))
	assert.Empty(t, drafts.drafts)
	assert.Len(t, store.objects, 1)
}

func TestDraftFailedUploadLeavesSessionUntouched(t *testing.T) {
	flow, drafts, store := newTestDraftFlow("a")
	ctx := context.Background()

	_, err := flow.Append(ctx, 1, inbound("one.txt", "first"))
	require.NoError(t, err)

	store.failing["a"] = true
	_, err = flow.Append(ctx, 1, inbound("two.txt", "second"))
	require.Error(t, err)

	assert.Len(t, drafts.drafts[1].Files, 1)
}
