package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

var (
	alice = protocol.MustParseIdentity("ALICE001")
	bob   = protocol.MustParseIdentity("BOB00002")
	route = protocol.GroupRoute{Creator: alice, ID: protocol.GroupID{1, 2, 3, 4, 5, 6, 7, 8}}
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.db")
	db, err := Open(path, "correct horse")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func testBallot() *entity.Ballot {
	now := time.UnixMilli(1_700_000_000_000)
	return &entity.Ballot{
		Key:            entity.BallotKey{Creator: alice, ID: protocol.BallotID{9, 9, 9, 9, 9, 9, 9, 9}},
		ConversationID: entity.DirectConversationID(alice),
		Title:          "Lunch?",
		State:          entity.BallotOpen,
		Assessment:     entity.AssessmentSingle,
		DisplayMode:    entity.DisplaySummary,
		Visibility:     entity.ResultsOnClose,
		Choices: []entity.Choice{
			{ID: 1, Order: 0, Label: "Pizza"},
			{ID: 2, Order: 1, Label: "Sushi"},
		},
		Participants: []protocol.Identity{bob},
		Votes: []entity.Vote{
			{ChoiceID: 2, Participant: bob, Value: true, At: now},
		},
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	_, path := openTestDB(t)

	_, err := Open(path, "battery staple")
	assert.ErrorIs(t, err, ErrInvalidPassphrase)

	db, err := Open(path, "correct horse")
	require.NoError(t, err)
	db.Close()
}

func TestBallotRoundTrip(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	b := testBallot()

	require.NoError(t, db.CreateBallot(ctx, b))

	got, err := db.FindBallot(ctx, b.Key)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	assert.ErrorIs(t, db.CreateBallot(ctx, b), ErrAlreadyExists)

	_, err = db.FindBallot(ctx, entity.BallotKey{Creator: bob, ID: b.Key.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveBallotReplacesChildren(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	b := testBallot()
	require.NoError(t, db.CreateBallot(ctx, b))

	b.Title = "Dinner?"
	b.State = entity.BallotClosed
	b.ReplaceChoices([]entity.Choice{{ID: 1, Order: 0, Label: "Pizza"}})
	require.NoError(t, db.SaveBallot(ctx, b))

	got, err := db.FindBallot(ctx, b.Key)
	require.NoError(t, err)
	assert.Equal(t, "Dinner?", got.Title)
	assert.True(t, got.IsClosed())
	assert.Len(t, got.Choices, 1)
	assert.Empty(t, got.Votes, "vote on the removed choice is gone")
}

func TestUpdateBallot(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	b := testBallot()
	require.NoError(t, db.CreateBallot(ctx, b))

	changed, err := db.UpdateBallot(ctx, b.Key, func(b *entity.Ballot) (bool, error) {
		b.Title = "ignored"
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := db.FindBallot(ctx, b.Key)
	require.NoError(t, err)
	assert.Equal(t, "Lunch?", got.Title, "unchanged update is not written")

	_, err = db.UpdateBallot(ctx, b.Key, func(b *entity.Ballot) (bool, error) {
		b.Title = "rolled back"
		return true, fmt.Errorf("boom")
	})
	assert.Error(t, err)

	_, err = db.UpdateBallot(ctx, entity.BallotKey{Creator: bob}, func(b *entity.Ballot) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBallotConcurrent(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	b := testBallot()
	b.Votes = nil
	b.Assessment = entity.AssessmentMultiple
	require.NoError(t, db.CreateBallot(ctx, b))

	const voters = 16
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			voter := protocol.MustParseIdentity(fmt.Sprintf("VOTER%03d", i))
			_, err := db.UpdateBallot(ctx, b.Key, func(b *entity.Ballot) (bool, error) {
				b.SetVote(entity.Vote{ChoiceID: 1, Participant: voter, Value: true, At: time.UnixMilli(int64(i + 1))})
				return true, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := db.FindBallot(ctx, b.Key)
	require.NoError(t, err)
	assert.Len(t, got.Votes, voters, "no lost updates")
}

func TestGetConversationBallots(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	first := testBallot()
	second := testBallot()
	second.Key.ID = protocol.BallotID{8}
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	require.NoError(t, db.CreateBallot(ctx, first))
	require.NoError(t, db.CreateBallot(ctx, second))

	ballots, err := db.GetConversationBallots(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, ballots, 2)
	assert.Equal(t, second.Key, ballots[0].Key)
}

func testFile() *entity.FileMessage {
	return &entity.FileMessage{
		MessageID:       protocol.MessageID{1, 2, 3, 4, 5, 6, 7, 8},
		ConversationID:  entity.DirectConversationID(bob),
		Sender:          bob,
		BlobID:          protocol.BlobID{0xAA},
		ThumbnailBlobID: protocol.BlobID{0xBB},
		Key:             protocol.BlobKey{0x42, 0x43},
		MIMEType:        "video/mp4",
		ThumbnailMIME:   "image/jpeg",
		Size:            1 << 20,
		Filename:        "clip.mp4",
		Caption:         "look",
		Rendering:       protocol.RenderingMedia,
		Metadata:        protocol.FileMetadata{Duration: 12.5, Width: 640, Height: 480},
		Date:            time.UnixMilli(1_700_000_000_000),
		State:           entity.DownloadThumbnailFetching,
	}
}

func TestFileMessageRoundTrip(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	f := testFile()

	require.NoError(t, db.CreateFileMessage(ctx, f))
	assert.ErrorIs(t, db.CreateFileMessage(ctx, f), ErrAlreadyExists)

	got, err := db.FindFileMessage(ctx, f.ConversationID, f.MessageID)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	f.Thumbnail = []byte("jpeg bytes")
	f.State = entity.DownloadThumbnailReady
	require.NoError(t, db.SaveFileMessage(ctx, f))

	got, err = db.FindFileMessage(ctx, f.ConversationID, f.MessageID)
	require.NoError(t, err)
	assert.Equal(t, f.Thumbnail, got.Thumbnail)
	assert.Equal(t, entity.DownloadThumbnailReady, got.State)

	_, err = db.FindFileMessage(ctx, "d-OTHER000", f.MessageID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.UpdateDownloadState(ctx, f.ConversationID, f.MessageID, entity.DownloadComplete))
	files, err := db.GetConversationFiles(ctx, f.ConversationID, 10, 0)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, entity.DownloadComplete, files[0].State)
}

func TestFileMessageEncryptedAtRest(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	f := testFile()
	f.Thumbnail = []byte("secret thumbnail")
	require.NoError(t, db.CreateFileMessage(ctx, f))

	var key, thumb []byte
	err := db.db.QueryRow(`SELECT blob_key, thumbnail FROM file_messages`).Scan(&key, &thumb)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(key, f.Key[:]))
	assert.False(t, bytes.Contains(thumb, []byte("secret thumbnail")))
}

func TestOwnFileMessageHasNoSender(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	f := testFile()
	f.Sender = protocol.Identity{}
	f.IsOwn = true
	f.ThumbnailBlobID = protocol.BlobID{}

	require.NoError(t, db.CreateFileMessage(ctx, f))
	got, err := db.FindFileMessage(ctx, f.ConversationID, f.MessageID)
	require.NoError(t, err)
	assert.True(t, got.Sender.IsZero())
	assert.False(t, got.HasThumbnail())
	assert.True(t, got.IsOwn)
}

func TestContacts(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveContact(ctx, &entity.Contact{Identity: bob, Nickname: "Bob"}))
	require.NoError(t, db.SaveContact(ctx, &entity.Contact{Identity: bob, Nickname: "Bobby"}))

	got, err := db.FindContact(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, &entity.Contact{Identity: bob, Nickname: "Bobby"}, got)

	require.NoError(t, db.BlockContact(ctx, bob))
	got, err = db.FindContact(ctx, bob)
	require.NoError(t, err)
	assert.True(t, got.Blocked)

	assert.ErrorIs(t, db.BlockContact(ctx, alice), ErrNotFound)
	_, err = db.FindContact(ctx, alice)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := db.GetAllContacts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, db.DeleteContact(ctx, bob))
	_, err = db.FindContact(ctx, bob)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversations(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	direct := entity.NewDirectConversation(bob)
	group := entity.NewGroupConversation(route)
	require.NoError(t, db.SaveConversation(ctx, direct))
	require.NoError(t, db.SaveConversation(ctx, group))
	require.NoError(t, db.SaveConversation(ctx, group))

	got, err := db.FindDirectConversation(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, direct, got)

	got, err = db.FindGroupConversation(ctx, route)
	require.NoError(t, err)
	assert.Equal(t, group, got)

	got, err = db.FindConversation(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, got.IsGroup())

	other := route
	other.ID[0] = 0xFF
	_, err = db.FindGroupConversation(ctx, other)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := db.GetConversations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")

	acquired := make(chan struct{})
	go func() {
		defer k.Lock("a")()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	// Other keys are independent
	k.Lock("b")()

	unlock()
	<-acquired

	assert.Eventually(t, func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()
		return len(k.locks) == 0
	}, time.Second, time.Millisecond, "released keys are dropped")
}
