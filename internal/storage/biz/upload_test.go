package biz

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/univora/sharebox-backend/internal/pkg/errors"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
)

// fakeChannelStore records writes and fails the configured channels
type fakeChannelStore struct {
	channels []string
	failing  map[string]bool
	objects  map[string][]byte
}

func newFakeChannelStore(channels ...string) *fakeChannelStore {
	return &fakeChannelStore{
		channels: channels,
		failing:  make(map[string]bool),
		objects:  make(map[string][]byte),
	}
}

func (s *fakeChannelStore) Channels() []string {
	return s.channels
}

func (s *fakeChannelStore) Put(_ context.Context, channel, ref string, content io.Reader, _ int64, _ string) error {
	if s.failing[channel] {
		return errors.New("channel down")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	s.objects[channel+"/"+ref] = data
	return nil
}

func (s *fakeChannelStore) Fetch(_ context.Context, loc Locator) (io.ReadCloser, error) {
	data, ok := s.objects[loc.Channel+"/"+loc.Ref]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeChannelStore) Delete(_ context.Context, loc Locator) error {
	delete(s.objects, loc.Channel+"/"+loc.Ref)
	return nil
}

func inbound(name, content string) InboundFile {
	return InboundFile{
		Name:     name,
		Size:     int64(len(content)),
		Kind:     KindDocument,
		MimeType: "text/plain",
		Content:  strings.NewReader(content),
	}
}

func TestUploadReplicatesToAllChannels(t *testing.T) {
	store := newFakeChannelStore("a", "b", "c")
	coordinator := NewUploadCoordinator(store, logger.L())

	entry, err := coordinator.Upload(context.Background(), inbound("report.txt", "hello"))
	require.NoError(t, err)

	assert.Equal(t, "a", entry.Primary.Channel)
	require.Len(t, entry.Backups, 2)
	assert.Equal(t, "b", entry.Backups[0].Channel)
	assert.Equal(t, "c", entry.Backups[1].Channel)

	// Same ref in every channel, identical bytes.
	assert.Equal(t, entry.Primary.Ref, entry.Backups[0].Ref)
	for _, loc := range entry.Copies() {
		assert.Equal(t, []byte("hello"), store.objects[loc.Channel+"/"+loc.Ref])
	}
}

func TestUploadAcceptsPartialReplication(t *testing.T) {
	store := newFakeChannelStore("a", "b", "c")
	store.failing["b"] = true
	coordinator := NewUploadCoordinator(store, logger.L())

	entry, err := coordinator.Upload(context.Background(), inbound("report.txt", "hello"))
	require.NoError(t, err)

	assert.Equal(t, "a", entry.Primary.Channel)
	require.Len(t, entry.Backups, 1)
	assert.Equal(t, "c", entry.Backups[0].Channel)
}

func TestUploadFailsWhenEveryChannelFails(t *testing.T) {
	store := newFakeChannelStore("a", "b")
	store.failing["a"] = true
	store.failing["b"] = true
	coordinator := NewUploadCoordinator(store, logger.L())

	_, err := coordinator.Upload(context.Background(), inbound("report.txt", "hello"))
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageUnavailable))
}

func TestUploadFailsWithoutChannels(t *testing.T) {
	coordinator := NewUploadCoordinator(newFakeChannelStore(), logger.L())

	_, err := coordinator.Upload(context.Background(), inbound("report.txt", "hello"))
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageUnavailable))
}

func TestRemoveDeletesEveryCopy(t *testing.T) {
	store := newFakeChannelStore("a", "b")
	coordinator := NewUploadCoordinator(store, logger.L())

	entry, err := coordinator.Upload(context.Background(), inbound("report.txt", "hello"))
	require.NoError(t, err)
	require.Len(t, store.objects, 2)

	require.NoError(t, coordinator.Remove(context.Background(), entry))
	assert.Empty(t, store.objects)
}

func TestRefSanitization(t *testing.T) {
	ref := newRef("../evil name?.pdf")
	assert.NotContains(t, ref, "..")
	assert.NotContains(t, ref, "?")
	assert.NotContains(t, ref, " ")
	assert.True(t, strings.HasSuffix(ref, ".pdf"))
}
