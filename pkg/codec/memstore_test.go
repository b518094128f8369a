package codec

import (
	"context"
	"errors"
	"sync"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// memStore is an in-memory EntityStore for codec tests
type memStore struct {
	mu      sync.Mutex
	ballots map[entity.BallotKey]*entity.Ballot
	files   map[protocol.MessageID]*entity.FileMessage

	// fileStates records every persisted download state in order
	fileStates []entity.DownloadState

	createBallotCalls int
	failFileWrites    bool
}

var errStoreDown = errors.New("store down")

func newMemStore() *memStore {
	return &memStore{
		ballots: make(map[entity.BallotKey]*entity.Ballot),
		files:   make(map[protocol.MessageID]*entity.FileMessage),
	}
}

func (s *memStore) FindBallot(ctx context.Context, key entity.BallotKey) (*entity.Ballot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.ballots[key]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *memStore) CreateBallot(ctx context.Context, b *entity.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createBallotCalls++
	if _, ok := s.ballots[b.Key]; ok {
		return entity.ErrAlreadyExists
	}
	s.ballots[b.Key] = b.Clone()
	return nil
}

func (s *memStore) SaveBallot(ctx context.Context, b *entity.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ballots[b.Key] = b.Clone()
	return nil
}

func (s *memStore) UpdateBallot(ctx context.Context, key entity.BallotKey, fn func(b *entity.Ballot) (bool, error)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ballots[key]
	if !ok {
		return false, entity.ErrNotFound
	}
	b := cur.Clone()
	changed, err := fn(b)
	if err != nil || !changed {
		return false, err
	}
	s.ballots[key] = b.Clone()
	return true, nil
}

func (s *memStore) FindFileMessage(ctx context.Context, conversationID string, id protocol.MessageID) (*entity.FileMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok || f.ConversationID != conversationID {
		return nil, entity.ErrNotFound
	}
	return f.Clone(), nil
}

func (s *memStore) CreateFileMessage(ctx context.Context, f *entity.FileMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFileWrites {
		return errStoreDown
	}
	if _, ok := s.files[f.MessageID]; ok {
		return entity.ErrAlreadyExists
	}
	s.files[f.MessageID] = f.Clone()
	s.fileStates = append(s.fileStates, f.State)
	return nil
}

func (s *memStore) SaveFileMessage(ctx context.Context, f *entity.FileMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFileWrites {
		return errStoreDown
	}
	s.files[f.MessageID] = f.Clone()
	s.fileStates = append(s.fileStates, f.State)
	return nil
}

func (s *memStore) ballot(key entity.BallotKey) *entity.Ballot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.ballots[key]; ok {
		return b.Clone()
	}
	return nil
}

func (s *memStore) file(id protocol.MessageID) *entity.FileMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[id]; ok {
		return f.Clone()
	}
	return nil
}

func (s *memStore) states() []entity.DownloadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.DownloadState(nil), s.fileStates...)
}
