package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "sheets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created, err := s.Create(ctx, "Rates", "print(1)", 55*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Rates", created.Name)
	assert.Equal(t, int64(0), created.Version)
	assert.Equal(t, EmptyContents, string(created.Contents))
	assert.Equal(t, 55*time.Second, created.Timeout)

	byID, err := s.Load(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, byID)

	byName, err := s.LoadByName(ctx, "Rates")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
}

func TestCreateDuplicateName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Create(ctx, "Sheet1", "", time.Second)
	require.NoError(t, err)
	_, err = s.Create(ctx, "Sheet1", "", time.Second)
	assert.ErrorIs(t, err, ErrExists)
}

func TestMissingSheet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Load(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadByName(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.SaveContents(ctx, 42, []byte("{}"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Publish(ctx, 42, 0, []byte("{}"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditsBumpVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sheet, err := s.Create(ctx, "Sheet1", "", time.Second)
	require.NoError(t, err)

	v, err := s.SaveContents(ctx, sheet.ID, []byte(`{"1,1":{"formula":"1"}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.SetUsercode(ctx, sheet.ID, "pass")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	v, err = s.SetTimeout(ctx, sheet.ID, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	loaded, err := s.Load(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"1,1":{"formula":"1"}}`, string(loaded.Contents))
	assert.Equal(t, "pass", loaded.Usercode)
	assert.Equal(t, 10*time.Second, loaded.Timeout)
	assert.Equal(t, int64(3), loaded.Version)
}

func TestPublishChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sheet, err := s.Create(ctx, "Sheet1", "", time.Second)
	require.NoError(t, err)

	applied, err := s.Publish(ctx, sheet.ID, 0, []byte("first"))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Publish(ctx, sheet.ID, 0, []byte("second"))
	require.NoError(t, err)
	assert.True(t, applied, "a later run on the same version wins")

	_, err = s.SaveContents(ctx, sheet.ID, []byte("edited"))
	require.NoError(t, err)

	applied, err = s.Publish(ctx, sheet.ID, 0, []byte("stale"))
	require.NoError(t, err)
	assert.False(t, applied)

	loaded, err := s.Load(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", string(loaded.Contents))
	assert.Equal(t, int64(1), loaded.Version)
}

func TestConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sheet, err := s.Create(ctx, "Sheet1", "", time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := s.Publish(ctx, sheet.ID, 0, []byte("result"))
			assert.NoError(t, err)
			assert.True(t, applied)
		}()
	}
	wg.Wait()
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, name := range []string{"a", "b"} {
		_, err := s.Create(ctx, name, "", time.Second)
		require.NoError(t, err)
	}

	sheets, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "a", sheets[0].Name)
	assert.Equal(t, "b", sheets[1].Name)
	assert.Empty(t, sheets[1].Contents)
}
