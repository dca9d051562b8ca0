package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"sync-service/internal/engine"
	"sync-service/internal/models"
	"sync-service/internal/protocol"
	"sync-service/internal/repositories"
)

type PlayHistoryRepositoryMock struct {
	mock.Mock
}

func (m *PlayHistoryRepositoryMock) Insert(ctx context.Context, rec models.PlayRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *PlayHistoryRepositoryMock) ListByGroup(ctx context.Context, groupID string, limit int) ([]models.PlayRecord, error) {
	args := m.Called(ctx, groupID, limit)
	var list []models.PlayRecord
	if val := args.Get(0); val != nil {
		list = val.([]models.PlayRecord)
	}
	return list, args.Error(1)
}

type TransportMock struct {
	mock.Mock
}

func (m *TransportMock) Reply(connID string, ev protocol.Event) {
	m.Called(connID, ev)
}

func (m *TransportMock) Bind(connID, userID string) {
	m.Called(connID, userID)
}

func (m *TransportMock) Subscribe(groupID, userID string) {
	m.Called(groupID, userID)
}

func (m *TransportMock) Unsubscribe(groupID, userID string) {
	m.Called(groupID, userID)
}

func (m *TransportMock) Broadcast(groupID string, ev protocol.Event, exceptUserID string) {
	m.Called(groupID, ev, exceptUserID)
}

type HistoryRecorderMock struct {
	mock.Mock
}

func (m *HistoryRecorderMock) Record(rec models.PlayRecord) {
	m.Called(rec)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) EmitGroup(ctx context.Context, event, groupID, userID, requestID, text string) {
	m.Called(ctx, event, groupID, userID, requestID, text)
}

type StateReaderMock struct {
	mock.Mock
}

func (m *StateReaderMock) SyncState(groupID string) (models.SyncState, error) {
	args := m.Called(groupID)
	var st models.SyncState
	if val := args.Get(0); val != nil {
		st = val.(models.SyncState)
	}
	return st, args.Error(1)
}

var _ repositories.PlayHistoryRepository = (*PlayHistoryRepositoryMock)(nil)
var _ engine.Transport = (*TransportMock)(nil)
var _ engine.HistoryRecorder = (*HistoryRecorderMock)(nil)
var _ engine.Auditor = (*AuditorMock)(nil)
var _ interface {
	SyncState(groupID string) (models.SyncState, error)
} = (*StateReaderMock)(nil)
