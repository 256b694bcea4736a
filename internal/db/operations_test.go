package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := Init(Config{Path: ":memory:"}); err != nil {
		panic(err)
	}
	code := m.Run()
	Close()
	os.Exit(code)
}

func newTestDocument(t *testing.T, status string) *Document {
	t.Helper()
	doc := &Document{
		ID:               uuid.New().String(),
		OriginalFilename: "report.pdf",
		StoredFilename:   "abc123.pdf",
		FilePath:         "/tmp/uploads/abc123.pdf",
		FileSize:         2048,
		FileType:         "application/pdf",
		SourceFiles:      []string{"/tmp/uploads/abc123.pdf"},
		Copies:           1,
		ColorMode:        "bw",
		Status:           status,
	}
	require.NoError(t, Documents.CreateDocument(context.Background(), doc))
	return doc
}

func TestCreateAndGetDocument(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument(t, "uploaded")

	got, err := Documents.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "report.pdf", got.OriginalFilename)
	assert.Equal(t, "uploaded", got.Status)
	assert.Equal(t, []string{"/tmp/uploads/abc123.pdf"}, got.SourceFiles)
	assert.Empty(t, got.OwnerID)
	assert.Nil(t, got.QueuedAt)
	assert.False(t, got.UploadTime.IsZero())
}

func TestGetDocumentNotFound(t *testing.T) {
	_, err := Documents.GetDocumentByID(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdateStatusCAS(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument(t, "uploaded")

	require.NoError(t, Documents.UpdateStatus(ctx, doc.ID, "uploaded", "downloading"))

	// second caller expecting the old state loses the race
	err := Documents.UpdateStatus(ctx, doc.ID, "uploaded", "downloading")
	assert.ErrorIs(t, err, ErrStaleTransition)

	got, err := Documents.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "downloading", got.Status)
}

func TestMarkQueuedSetsTimestamp(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument(t, "downloading")

	require.NoError(t, Documents.MarkQueued(ctx, doc.ID, "downloading"))

	got, err := Documents.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "queued", got.Status)
	require.NotNil(t, got.QueuedAt)

	// drain so later queue-eligibility tests see a clean slate
	require.NoError(t, Documents.MarkPrinting(ctx, doc.ID))
	require.NoError(t, Documents.MarkCompleted(ctx, doc.ID))
}

func TestMarkPrintingOnlyFromQueued(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument(t, "downloading")
	require.NoError(t, Documents.MarkQueued(ctx, doc.ID, "downloading"))

	require.NoError(t, Documents.MarkPrinting(ctx, doc.ID))
	assert.ErrorIs(t, Documents.MarkPrinting(ctx, doc.ID), ErrStaleTransition)

	got, err := Documents.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "printing", got.Status)
	require.NotNil(t, got.StartedAt)
}

func TestMarkCompletedAndFailedAreTerminal(t *testing.T) {
	ctx := context.Background()

	doc := newTestDocument(t, "downloading")
	require.NoError(t, Documents.MarkQueued(ctx, doc.ID, "downloading"))
	require.NoError(t, Documents.MarkPrinting(ctx, doc.ID))
	require.NoError(t, Documents.MarkCompleted(ctx, doc.ID))

	assert.ErrorIs(t, Documents.MarkPrinting(ctx, doc.ID), ErrStaleTransition)
	assert.ErrorIs(t, Documents.MarkFailed(ctx, doc.ID, "printing", "nope"), ErrStaleTransition)

	got, err := Documents.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	require.NotNil(t, got.CompletedAt)

	failed := newTestDocument(t, "uploaded")
	require.NoError(t, Documents.MarkFailed(ctx, failed.ID, "uploaded", "bad file"))
	got, err = Documents.GetDocumentByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "bad file", got.FailureReason)
}

func TestRequeueForRetryBumpsCounterAndDefersEligibility(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument(t, "downloading")
	require.NoError(t, Documents.MarkQueued(ctx, doc.ID, "downloading"))
	require.NoError(t, Documents.Release(ctx, doc.ID))
	require.NoError(t, Documents.MarkPrinting(ctx, doc.ID))

	require.NoError(t, Documents.RequeueForRetry(ctx, doc.ID, time.Hour))

	got, err := Documents.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "queued", got.Status)
	assert.Equal(t, 1, got.RetryCount)

	// deferred an hour out, so not eligible yet
	next, err := Documents.NextPrintable(ctx, false, 0)
	require.NoError(t, err)
	if next != nil {
		assert.NotEqual(t, doc.ID, next.ID)
	}
}

func TestNextPrintableOrderingAndEligibility(t *testing.T) {
	ctx := context.Background()

	older := newTestDocument(t, "downloading")
	require.NoError(t, Documents.MarkQueued(ctx, older.ID, "downloading"))
	require.NoError(t, Documents.Release(ctx, older.ID))

	time.Sleep(1100 * time.Millisecond) // CURRENT_TIMESTAMP has second precision

	newer := newTestDocument(t, "downloading")
	require.NoError(t, Documents.MarkQueued(ctx, newer.ID, "downloading"))
	require.NoError(t, Documents.Release(ctx, newer.ID))

	next, err := Documents.NextPrintable(ctx, false, 0)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, older.ID, next.ID)

	// drain the queue so this test leaves no eligible leftovers behind
	require.NoError(t, Documents.MarkPrinting(ctx, older.ID))
	require.NoError(t, Documents.MarkCompleted(ctx, older.ID))
	require.NoError(t, Documents.MarkPrinting(ctx, newer.ID))
	require.NoError(t, Documents.MarkCompleted(ctx, newer.ID))
}

func TestNextPrintableBreaksSameSecondTies(t *testing.T) {
	ctx := context.Background()

	// queued back to back, almost certainly within the same timestamp second
	first := newTestDocument(t, "downloading")
	second := newTestDocument(t, "downloading")
	require.NoError(t, Documents.MarkQueued(ctx, first.ID, "downloading"))
	require.NoError(t, Documents.MarkQueued(ctx, second.ID, "downloading"))
	require.NoError(t, Documents.Release(ctx, first.ID))
	require.NoError(t, Documents.Release(ctx, second.ID))

	next, err := Documents.NextPrintable(ctx, false, 0)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID)

	require.NoError(t, Documents.MarkPrinting(ctx, first.ID))
	require.NoError(t, Documents.MarkCompleted(ctx, first.ID))

	next, err = Documents.NextPrintable(ctx, false, 0)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)

	require.NoError(t, Documents.MarkPrinting(ctx, second.ID))
	require.NoError(t, Documents.MarkCompleted(ctx, second.ID))
}

func TestNextPrintableSkipsUnreleasedWithoutAutoPrint(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument(t, "downloading")
	require.NoError(t, Documents.MarkQueued(ctx, doc.ID, "downloading"))

	next, err := Documents.NextPrintable(ctx, false, 0)
	require.NoError(t, err)
	if next != nil {
		assert.NotEqual(t, doc.ID, next.ID)
	}

	// auto print picks it up without an explicit release
	next, err = Documents.NextPrintable(ctx, true, 0)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, doc.ID, next.ID)

	require.NoError(t, Documents.MarkPrinting(ctx, doc.ID))
	require.NoError(t, Documents.MarkCompleted(ctx, doc.ID))
}

func TestResetInFlight(t *testing.T) {
	ctx := context.Background()

	downloading := newTestDocument(t, "downloading")
	printing := newTestDocument(t, "downloading")
	require.NoError(t, Documents.MarkQueued(ctx, printing.ID, "downloading"))
	require.NoError(t, Documents.MarkPrinting(ctx, printing.ID))

	require.NoError(t, Documents.ResetInFlight(ctx))

	got, err := Documents.GetDocumentByID(ctx, downloading.ID)
	require.NoError(t, err)
	assert.Equal(t, "uploaded", got.Status)

	got, err = Documents.GetDocumentByID(ctx, printing.ID)
	require.NoError(t, err)
	assert.Equal(t, "queued", got.Status)

	require.NoError(t, Documents.MarkFailed(ctx, downloading.ID, "uploaded", "cleanup"))
	require.NoError(t, Documents.MarkPrinting(ctx, printing.ID))
	require.NoError(t, Documents.MarkCompleted(ctx, printing.ID))
}

func TestListByOwner(t *testing.T) {
	ctx := context.Background()

	user := &User{
		ID:           uuid.New().String(),
		Name:         "Ada",
		Email:        uuid.New().String() + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, Users.CreateUser(ctx, user))

	doc := &Document{
		ID:               uuid.New().String(),
		OwnerID:          user.ID,
		OriginalFilename: "mine.pdf",
		StoredFilename:   "mine.pdf",
		FilePath:         "/tmp/mine.pdf",
		FileSize:         10,
		FileType:         "application/pdf",
		SourceFiles:      []string{"/tmp/mine.pdf"},
		Copies:           1,
		ColorMode:        "bw",
		Status:           "uploaded",
	}
	require.NoError(t, Documents.CreateDocument(ctx, doc))

	docs, err := Documents.ListByOwner(ctx, user.ID, 20)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.Equal(t, user.ID, docs[0].OwnerID)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	email := uuid.New().String() + "@example.com"

	first := &User{ID: uuid.New().String(), Name: "A", Email: email, PasswordHash: "x"}
	require.NoError(t, Users.CreateUser(ctx, first))

	dup := &User{ID: uuid.New().String(), Name: "B", Email: email, PasswordHash: "y"}
	assert.ErrorIs(t, Users.CreateUser(ctx, dup), ErrDuplicateEmail)
}

func TestIncrementUserPrints(t *testing.T) {
	ctx := context.Background()
	user := &User{ID: uuid.New().String(), Name: "C", Email: uuid.New().String() + "@example.com", PasswordHash: "x"}
	require.NoError(t, Users.CreateUser(ctx, user))

	require.NoError(t, Users.IncrementPrints(ctx, user.ID))
	require.NoError(t, Users.IncrementPrints(ctx, user.ID))

	got, err := Users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalPrints)
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, err := Settings.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, Settings.SetSetting(ctx, "greeting", "hello"))
	require.NoError(t, Settings.SetSetting(ctx, "greeting", "hola"))

	got, err := Settings.GetSetting(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hola", got.Value)
}
