package repositories_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sync-service/internal/mocks"
	"sync-service/internal/models"
	"sync-service/internal/repositories"
)

func TestHistoryRecorder_FlushesOnClose(t *testing.T) {
	repo := new(mocks.PlayHistoryRepositoryMock)
	repo.On("Insert", mock.Anything, mock.MatchedBy(func(rec models.PlayRecord) bool { return rec.GroupID == "G" })).
		Return(nil).Times(3)

	rec := repositories.NewHistoryRecorder(repo, 8)
	for _, id := range []string{"a", "b", "c"} {
		rec.Record(models.PlayRecord{GroupID: "G", QueueItemID: id})
	}
	rec.Close()

	repo.AssertExpectations(t)
}

func TestHistoryRecorder_WriteErrorDoesNotStopWriter(t *testing.T) {
	repo := new(mocks.PlayHistoryRepositoryMock)
	repo.On("Insert", mock.Anything, mock.MatchedBy(func(rec models.PlayRecord) bool { return rec.QueueItemID == "bad" })).
		Return(errors.New("disk full")).Once()
	repo.On("Insert", mock.Anything, mock.MatchedBy(func(rec models.PlayRecord) bool { return rec.QueueItemID == "good" })).
		Return(nil).Once()

	rec := repositories.NewHistoryRecorder(repo, 8)
	rec.Record(models.PlayRecord{GroupID: "G", QueueItemID: "bad"})
	rec.Record(models.PlayRecord{GroupID: "G", QueueItemID: "good"})
	rec.Close()

	repo.AssertExpectations(t)
}

func TestHistoryRecorder_RecordAfterCloseIsDropped(t *testing.T) {
	repo := new(mocks.PlayHistoryRepositoryMock)
	rec := repositories.NewHistoryRecorder(repo, 1)
	rec.Close()
	rec.Close()

	require.NotPanics(t, func() {
		rec.Record(models.PlayRecord{GroupID: "G", QueueItemID: "late"})
	})
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}
