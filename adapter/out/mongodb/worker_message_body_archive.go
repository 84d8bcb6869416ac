package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Message Body Archive
// =============================================================================

const (
	collectionMessageBodies = "sponsor_message_bodies"

	// Compression threshold - only compress if content is larger than this
	compressionThreshold = 1024 // 1KB
)

// MessageBodyArchive implements out.BodyArchive using MongoDB.
type MessageBodyArchive struct {
	collection *mongo.Collection
	now        func() time.Time
}

var _ out.BodyArchive = (*MessageBodyArchive)(nil)

// NewMessageBodyArchive creates a new MongoDB message body archive.
func NewMessageBodyArchive(db *mongo.Database) *MessageBodyArchive {
	return &MessageBodyArchive{
		collection: db.Collection(collectionMessageBodies),
		now:        time.Now,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *MessageBodyArchive) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "gmail_message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "thread_id", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type messageBodyDocument struct {
	GmailMessageID string `bson:"gmail_message_id"`
	ThreadID       string `bson:"thread_id"`
	SenderEmail    string `bson:"sender_email"`
	Subject        string `bson:"subject"`

	// Content (potentially compressed)
	Text         []byte `bson:"text"`
	IsCompressed bool   `bson:"is_compressed"`

	OriginalSize   int64 `bson:"original_size"`
	CompressedSize int64 `bson:"compressed_size"`

	ReceivedAt time.Time `bson:"received_at"`
	ArchivedAt time.Time `bson:"archived_at"`
}

// ArchivedBody is a decoded archive entry.
type ArchivedBody struct {
	GmailMessageID string
	ThreadID       string
	Text           string
	ReceivedAt     time.Time
	ArchivedAt     time.Time
}

// =============================================================================
// Operations
// =============================================================================

// ArchiveMessage upserts the full body of a message keyed by provider message id.
func (a *MessageBodyArchive) ArchiveMessage(ctx context.Context, msg *domain.SponsorMessage) error {
	doc, err := toDocument(msg, a.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to convert message body: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"gmail_message_id": msg.ProviderMessageID}

	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to archive message body: %w", err)
	}
	return nil
}

// GetBody returns the archived body, or nil when none exists.
func (a *MessageBodyArchive) GetBody(ctx context.Context, gmailMessageID string) (*ArchivedBody, error) {
	var doc messageBodyDocument
	err := a.collection.FindOne(ctx, bson.M{"gmail_message_id": gmailMessageID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message body: %w", err)
	}
	return fromDocument(&doc)
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func toDocument(msg *domain.SponsorMessage, now time.Time) (*messageBodyDocument, error) {
	text := []byte(msg.BodyText)
	originalSize := int64(len(text))

	doc := &messageBodyDocument{
		GmailMessageID: msg.ProviderMessageID,
		ThreadID:       msg.ThreadID.String(),
		SenderEmail:    msg.SenderEmail,
		Subject:        msg.Subject,
		Text:           text,
		OriginalSize:   originalSize,
		CompressedSize: originalSize,
		ReceivedAt:     msg.ReceivedAt,
		ArchivedAt:     now,
	}

	// Compress if content is large enough
	if originalSize > compressionThreshold {
		compressed, err := compress(text)
		if err != nil {
			return nil, fmt.Errorf("failed to compress text: %w", err)
		}
		doc.Text = compressed
		doc.IsCompressed = true
		doc.CompressedSize = int64(len(compressed))
	}
	return doc, nil
}

func fromDocument(doc *messageBodyDocument) (*ArchivedBody, error) {
	text := doc.Text
	if doc.IsCompressed {
		var err error
		if text, err = decompress(doc.Text); err != nil {
			return nil, fmt.Errorf("failed to decompress text: %w", err)
		}
	}
	return &ArchivedBody{
		GmailMessageID: doc.GmailMessageID,
		ThreadID:       doc.ThreadID,
		Text:           string(text),
		ReceivedAt:     doc.ReceivedAt,
		ArchivedAt:     doc.ArchivedAt,
	}, nil
}

// =============================================================================
// Compression Helpers
// =============================================================================

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
