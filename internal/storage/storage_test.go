package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "localnotify/pkg/logx"
)

func sampleRecord(id string, seq int64, category string) Record {
	now := time.UnixMilli(1_700_000_000_000)
	return Record{
		ID:          id,
		Seq:         seq,
		Title:       "title " + id,
		Body:        "body " + id,
		Category:    category,
		UserInfo:    map[string]any{"LocalNotificationKey": float64(seq)},
		FireAt:      now.Add(time.Duration(seq) * time.Minute),
		ScheduledAt: now,
	}
}

func openBoth(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	stores := map[string]Store{}
	for _, driver := range []string{"file", "sqlite"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, driver, "state.db")}, logx.Nop())
		require.NoError(t, err, driver)
		require.NotNil(t, st, driver)
		t.Cleanup(func() { _ = st.Close() })
		stores[driver] = st
	}
	return stores
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", "memory", " Memory "} {
		st, err := Open(Config{Driver: d}, logx.Logger{})
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func TestStorePendingLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openBoth(t) {
		require.NoError(t, st.PutPending(ctx, sampleRecord("b", 2, "7")), name)
		require.NoError(t, st.PutPending(ctx, sampleRecord("a", 1, "7")), name)
		require.NoError(t, st.PutPending(ctx, sampleRecord("c", 3, "")), name)

		got, err := st.ListPending(ctx)
		require.NoError(t, err, name)
		require.Len(t, got, 3, name)
		assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID}, name)
		assert.Equal(t, "7", got[0].Category, name)
		assert.Equal(t, float64(1), got[0].UserInfo["LocalNotificationKey"], name)
		assert.Equal(t, sampleRecord("a", 1, "7").FireAt.UnixMilli(), got[0].FireAt.UnixMilli(), name)

		require.NoError(t, st.DeletePending(ctx, "b"), name)
		require.NoError(t, st.DeletePending(ctx, "missing"), name)
		got, err = st.ListPending(ctx)
		require.NoError(t, err, name)
		assert.Len(t, got, 2, name)
	}
}

func TestStoreMarkDeliveredMovesRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openBoth(t) {
		r := sampleRecord("x", 1, "9")
		require.NoError(t, st.PutPending(ctx, r), name)

		r.DeliveredAt = time.UnixMilli(1_700_000_100_000)
		r.Handles = map[string]string{"desktop": "42"}
		require.NoError(t, st.MarkDelivered(ctx, r), name)

		pending, err := st.ListPending(ctx)
		require.NoError(t, err, name)
		assert.Empty(t, pending, name)

		delivered, err := st.ListDelivered(ctx)
		require.NoError(t, err, name)
		require.Len(t, delivered, 1, name)
		assert.Equal(t, "x", delivered[0].ID, name)
		assert.Equal(t, "42", delivered[0].Handles["desktop"], name)
		assert.Equal(t, r.DeliveredAt.UnixMilli(), delivered[0].DeliveredAt.UnixMilli(), name)

		require.NoError(t, st.DeleteDelivered(ctx, "x", "nope"), name)
		delivered, err = st.ListDelivered(ctx)
		require.NoError(t, err, name)
		assert.Empty(t, delivered, name)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	cfg := Config{Driver: "file", Path: path, CompactAt: 2}

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.PutPending(ctx, sampleRecord(id, int64(i+1), "1")))
	}
	d := sampleRecord("a", 1, "1")
	d.DeliveredAt = time.UnixMilli(1_700_000_200_000)
	require.NoError(t, st.MarkDelivered(ctx, d))
	require.NoError(t, st.DeletePending(ctx, "c"))
	// Leave the last write in the journal only.
	fs := st.(*fileStore)
	fs.mu.Lock()
	_ = fs.journal.Close()
	fs.journal = nil
	fs.mu.Unlock()

	st2, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()

	pending, err := st2.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)

	delivered, err := st2.ListDelivered(ctx)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, "a", delivered[0].ID)
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "s.json")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	err = st.PutPending(context.Background(), sampleRecord("a", 1, ""))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSQLiteMarkDeliveredRollsBack(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := &sqliteStore{db: db, log: logx.Nop()}
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pending").WithArgs("x").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO delivered").WillReturnError(boom)
	mock.ExpectRollback()

	r := sampleRecord("x", 1, "3")
	r.DeliveredAt = time.Now()
	err = st.MarkDelivered(context.Background(), r)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteListPendingQueryError(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := &sqliteStore{db: db, log: logx.Nop()}
	mock.ExpectQuery("SELECT (.+) FROM pending").WillReturnError(errors.New("locked"))

	_, err = st.ListPending(context.Background())
	assert.EqualError(t, err, "locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}
