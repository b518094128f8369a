// Package protocol implements the box wire format used between chat clients.
//
// A box is an already-decrypted message: a fixed header followed by a
// payload. This package frames boxes, pads and unpads payloads, and
// encodes/decodes the payload types the client understands.
//
// # Header Format
//
// Every box starts with a 46-byte header, big-endian:
//   - Magic (4 bytes): 0x5A424F58 ("ZBOX")
//   - Version (2 bytes): 0x0100 = v1.0
//   - Type (2 bytes): message type
//   - Length (4 bytes): payload length
//   - Flags (2 bytes): FlagGroup, FlagPadded, push/queue/ack hints
//   - MessageID (8 bytes)
//   - From, To (8 bytes each): sender and recipient identities
//   - Date (8 bytes): sender timestamp in Unix ms
//
// # Message Types
//
//   - BallotCreate (0x15) / GroupBallotCreate (0x52): poll announcement or update
//   - BallotVote (0x16) / GroupBallotVote (0x53): one participant's votes
//   - File (0x17) / GroupFile (0x46): reference to an encrypted blob
//
// Group variants prefix the payload with a group route (creator identity +
// 8-byte group id). Everything after the route is identical to the direct
// variant, so each payload struct carries a Scope instead of existing twice.
//
// # Payload Encoding
//
//   - Fixed-size fields are copied as-is
//   - Text is prefixed with a u16 length, opaque data with a u32 length
//   - The ballot document and file metadata are CBOR (see ballotdoc.go)
//
// Every read is bounds-checked. Truncated input, over-long text, invalid
// UTF-8 and trailing bytes all fail with ErrMalformedPayload.
//
// # Usage Example
//
//	vote := &protocol.BallotVoteMessage{
//	    Scope:         protocol.Direct(),
//	    BallotCreator: creator,
//	    BallotID:      ballotID,
//	    Voter:         me,
//	    Votes:         []protocol.VoteEntry{{ChoiceID: 1, Value: true}},
//	}
//
//	msg, err := protocol.AddMessagePadding(protocol.NewMessage(vote, me, creator))
//	if err != nil {
//	    return err
//	}
//	protocol.WriteMessage(conn, msg)
//
//	// Receiving side
//	msg, err := protocol.ReadMessage(conn)
//	payload, err := protocol.Unpack(msg)
package protocol
