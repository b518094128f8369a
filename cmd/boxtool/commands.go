package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/ZentaChain/zentalk-client/pkg/blob"
	"github.com/ZentaChain/zentalk-client/pkg/codec"
	"github.com/ZentaChain/zentalk-client/pkg/crypto"
	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/inbox"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

func (e *env) fetcher() *blob.HTTPFetcher {
	return blob.NewHTTPFetcher(e.cfg.BlobServerURL, &http.Client{Timeout: 2 * time.Minute})
}

func (e *env) receiver() (*inbox.Receiver, error) {
	local, err := e.cfg.LocalIdentity()
	if err != nil {
		return nil, err
	}
	db, err := e.openDB()
	if err != nil {
		return nil, err
	}
	return inbox.NewReceiver(inbox.Config{
		Local:            local,
		ThumbnailTimeout: e.cfg.ThumbnailTimeout(),
		Logger:           e.log,
	}, db, db, e.fetcher()), nil
}

// ===== INBOUND =====

func runPreview(_ context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: preview BOX_FILE...")
	}
	r := inbox.NewReceiver(inbox.Config{Logger: e.log}, nil, nil, nil)

	for _, path := range args {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		p, err := r.Preview(raw)
		if err != nil {
			fmt.Printf("%s: %v\n", path, err)
			continue
		}

		scope := "direct"
		if p.Group {
			scope = "group"
		}
		fmt.Printf("%s: %s %s from %s (%s)\n", path, scope, p.Kind, p.From, humanize.Bytes(uint64(len(raw))))
		switch p.Kind {
		case inbox.KindBallotCreate:
			state := "open"
			if p.State == 1 {
				state = "closed"
			}
			fmt.Printf("  ballot %q, %s\n", p.Title, state)
		case inbox.KindFile:
			fmt.Printf("  file %q, %s, %s\n", p.Filename, p.MIMEType, humanize.Bytes(uint64(p.Size)))
			if p.Caption != "" {
				fmt.Printf("  caption %q\n", p.Caption)
			}
		}
	}
	return nil
}

func runReceive(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: receive BOX_FILE...")
	}
	r, err := e.receiver()
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range args {
		if err := receiveOne(ctx, r, path); err != nil {
			fmt.Printf("%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d boxes failed", failed, len(args))
	}
	return nil
}

func receiveOne(ctx context.Context, r *inbox.Receiver, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := r.Receive(ctx, raw)
	if errors.Is(err, codec.ErrUnknownBallot) {
		fmt.Printf("%s: vote for unknown ballot ignored\n", path)
		return nil
	}
	if err != nil {
		return err
	}
	if out.Dropped {
		fmt.Printf("%s: sender is blocked, dropped\n", path)
		return nil
	}

	switch out.Kind {
	case inbox.KindBallotCreate:
		fmt.Printf("%s: ballot %q (%s) in %s\n", path, out.Ballot.Title, out.Ballot.State, out.Conversation.ID)
	case inbox.KindBallotVote:
		fmt.Printf("%s: vote applied=%t in %s\n", path, out.VoteApplied, out.Conversation.ID)
	case inbox.KindFile:
		f, err := out.File.Wait(ctx)
		if err != nil {
			return err
		}
		if f == nil {
			return errors.New("file message rejected")
		}
		fmt.Printf("%s: file %q (%s) in %s, thumbnail %s %s\n", path, f.Filename,
			humanize.Bytes(uint64(f.Size)), out.Conversation.ID, f.State, humanize.Bytes(uint64(len(f.Thumbnail))))
	}
	return nil
}

// ===== DIRECTORY =====

func runContact(ctx context.Context, e *env, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: contact add|block|unblock IDENTITY [NICKNAME]")
	}
	id, err := protocol.ParseIdentity(args[1])
	if err != nil {
		return err
	}
	db, err := e.openDB()
	if err != nil {
		return err
	}

	switch args[0] {
	case "add":
		c := &entity.Contact{Identity: id}
		if len(args) > 2 {
			c.Nickname = strings.Join(args[2:], " ")
		}
		if err := db.SaveContact(ctx, c); err != nil {
			return err
		}
		return db.SaveConversation(ctx, entity.NewDirectConversation(id))
	case "block":
		return db.BlockContact(ctx, id)
	case "unblock":
		return db.UnblockContact(ctx, id)
	default:
		return fmt.Errorf("unknown contact action %q", args[0])
	}
}

func runGroup(ctx context.Context, e *env, args []string) error {
	if len(args) != 3 || args[0] != "add" {
		return errors.New("usage: group add CREATOR GROUP_ID")
	}
	route, err := parseRoute(args[1], args[2])
	if err != nil {
		return err
	}
	db, err := e.openDB()
	if err != nil {
		return err
	}

	conv := entity.NewGroupConversation(route)
	if err := db.SaveConversation(ctx, conv); err != nil {
		return err
	}
	fmt.Println(conv.ID)
	return nil
}

func parseRoute(creator, groupID string) (protocol.GroupRoute, error) {
	var route protocol.GroupRoute
	var err error
	if route.Creator, err = protocol.ParseIdentity(creator); err != nil {
		return route, err
	}
	raw, err := hex.DecodeString(groupID)
	if err != nil || len(raw) != protocol.GroupIDLength {
		return route, fmt.Errorf("group id must be %d hex bytes", protocol.GroupIDLength)
	}
	copy(route.ID[:], raw)
	return route, nil
}

func runBallots(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ballots CONVERSATION_ID")
	}
	db, err := e.openDB()
	if err != nil {
		return err
	}
	ballots, err := db.GetConversationBallots(ctx, args[0])
	if err != nil {
		return err
	}

	for _, b := range ballots {
		fmt.Printf("%s  %q  %s, modified %s\n", b.Key, b.Title, b.State, humanize.Time(b.ModifiedAt))
		for _, c := range b.SortedChoices() {
			yes := 0
			for _, v := range b.Votes {
				if v.ChoiceID == c.ID && v.Value {
					yes++
				}
			}
			fmt.Printf("    %-30s %d\n", c.Label, yes)
		}
	}
	return nil
}

func runFiles(ctx context.Context, e *env, args []string) error {
	flagSet := pflag.NewFlagSet("files", pflag.ContinueOnError)
	limit := flagSet.Int("limit", 50, "maximum number of files")
	offset := flagSet.Int("offset", 0, "files to skip")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("usage: files [--limit N] [--offset N] CONVERSATION_ID")
	}

	db, err := e.openDB()
	if err != nil {
		return err
	}
	files, err := db.GetConversationFiles(ctx, flagSet.Arg(0), *limit, *offset)
	if err != nil {
		return err
	}

	for _, f := range files {
		from := "me"
		if !f.IsOwn {
			from = f.Sender.String()
		}
		fmt.Printf("%s  %-24q %10s  %-18s from %s, %s\n", f.MessageID, f.Filename,
			humanize.Bytes(uint64(f.Size)), f.State, from, humanize.Time(f.Date))
	}
	return nil
}

// ===== OUTBOUND =====

type sendFlags struct {
	conversation string
	recipients   []string
	outDir       string
}

func (s *sendFlags) bind(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&s.conversation, "conversation", "", "conversation id (d-IDENTITY or g-CREATOR-GROUPID)")
	flagSet.StringSliceVar(&s.recipients, "recipient", nil, "recipient identity, repeatable; required for groups")
	flagSet.StringVar(&s.outDir, "out", ".", "directory to write boxes to")
}

func (s *sendFlags) resolve(ctx context.Context, e *env) (*entity.Conversation, []protocol.Identity, error) {
	if s.conversation == "" {
		return nil, nil, errors.New("--conversation is required")
	}
	db, err := e.openDB()
	if err != nil {
		return nil, nil, err
	}
	conv, err := db.FindConversation(ctx, s.conversation)
	if err != nil {
		return nil, nil, fmt.Errorf("conversation %s: %w", s.conversation, err)
	}

	var recipients []protocol.Identity
	for _, r := range s.recipients {
		id, err := protocol.ParseIdentity(r)
		if err != nil {
			return nil, nil, err
		}
		recipients = append(recipients, id)
	}
	return conv, recipients, nil
}

func writeBoxes(dir string, boxes []*protocol.Message) error {
	for _, box := range boxes {
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.box", box.Header.MessageID, box.Header.To))
		data := box.Encode()
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%s)\n", path, humanize.Bytes(uint64(len(data))))
	}
	return nil
}

func runBallotCreate(ctx context.Context, e *env, args []string) error {
	var send sendFlags
	flagSet := pflag.NewFlagSet("ballot", pflag.ContinueOnError)
	send.bind(flagSet)
	title := flagSet.String("title", "", "ballot title")
	choices := flagSet.StringArray("choice", nil, "choice label, repeatable")
	multiple := flagSet.Bool("multiple", false, "allow more than one yes vote")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	local, err := e.cfg.LocalIdentity()
	if err != nil {
		return err
	}
	conv, recipients, err := send.resolve(ctx, e)
	if err != nil {
		return err
	}

	now := time.Now()
	b := &entity.Ballot{
		Key:            entity.BallotKey{Creator: local, ID: protocol.GenerateBallotID()},
		ConversationID: conv.ID,
		Title:          *title,
		State:          entity.BallotOpen,
		Assessment:     entity.AssessmentSingle,
		DisplayMode:    entity.DisplayList,
		Visibility:     entity.ResultsIntermediate,
		CreatedAt:      now,
		ModifiedAt:     now,
	}
	if *multiple {
		b.Assessment = entity.AssessmentMultiple
	}
	for i, label := range *choices {
		b.Choices = append(b.Choices, entity.Choice{ID: uint32(i), Order: uint32(i), Label: label})
	}

	boxes, err := inbox.NewOutbox(local).BallotCreate(b, conv, recipients...)
	if err != nil {
		return err
	}
	if err := e.db.CreateBallot(ctx, b); err != nil {
		return fmt.Errorf("save ballot: %w", err)
	}
	return writeBoxes(send.outDir, boxes)
}

func runSendFile(ctx context.Context, e *env, args []string) error {
	var send sendFlags
	flagSet := pflag.NewFlagSet("send-file", pflag.ContinueOnError)
	send.bind(flagSet)
	caption := flagSet.String("caption", "", "caption")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("usage: send-file --conversation ID [--recipient ID...] [--caption TEXT] PATH")
	}

	local, err := e.cfg.LocalIdentity()
	if err != nil {
		return err
	}
	conv, recipients, err := send.resolve(ctx, e)
	if err != nil {
		return err
	}

	path := flagSet.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 || len(data) > protocol.MaxFileSize {
		return fmt.Errorf("file size %s is outside 1 byte to %s", humanize.Bytes(uint64(len(data))), humanize.IBytes(protocol.MaxFileSize))
	}

	key, err := crypto.GenerateBlobKey()
	if err != nil {
		return err
	}
	blobID, err := e.fetcher().Upload(ctx, crypto.SealBlob(data, key, &crypto.FileNonce))
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	msg := &protocol.FileMessage{
		Scope:     protocol.Direct(),
		BlobID:    blobID,
		Key:       key,
		Size:      int64(len(data)),
		Rendering: protocol.RenderingFile,
		MIMEType:  detectMIME(data),
		Filename:  filepath.Base(path),
		Caption:   *caption,
	}
	boxes, err := inbox.NewOutbox(local).File(msg, conv, recipients...)
	if err != nil {
		return err
	}

	own := &entity.FileMessage{
		MessageID:      boxes[0].Header.MessageID,
		ConversationID: conv.ID,
		BlobID:         blobID,
		Key:            key,
		MIMEType:       msg.MIMEType,
		Size:           msg.Size,
		Filename:       msg.Filename,
		Caption:        msg.Caption,
		Rendering:      msg.Rendering,
		IsOwn:          true,
		Date:           time.UnixMilli(int64(boxes[0].Header.Date)),
		State:          entity.DownloadComplete,
	}
	if err := e.db.CreateFileMessage(ctx, own); err != nil {
		return fmt.Errorf("save file message: %w", err)
	}

	fmt.Printf("uploaded %s as blob %s\n", humanize.Bytes(uint64(len(data))), blobID)
	return writeBoxes(send.outDir, boxes)
}

// detectMIME sniffs the content type without parameters
func detectMIME(data []byte) string {
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}
