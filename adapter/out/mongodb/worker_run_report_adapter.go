package mongodb

import (
	"context"
	"fmt"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Run Report Adapter
// =============================================================================

const (
	collectionRunReports = "sponsor_run_reports"

	// Compression threshold for report payloads
	reportCompressionThreshold = 512 // 512 bytes

	defaultReportRetention = 90 * 24 * time.Hour
)

// RunReportAdapter implements out.RunReporter using MongoDB.
type RunReportAdapter struct {
	collection *mongo.Collection
	retention  time.Duration
}

var _ out.RunReporter = (*RunReportAdapter)(nil)

// NewRunReportAdapter creates a new MongoDB run report adapter.
func NewRunReportAdapter(db *mongo.Database) *RunReportAdapter {
	return &RunReportAdapter{
		collection: db.Collection(collectionRunReports),
		retention:  defaultReportRetention,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *RunReportAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "started_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type runReportDocument struct {
	ID     string `bson:"id"`
	Mode   string `bson:"mode"`
	DryRun bool   `bson:"dry_run"`

	// Summary fields duplicated for querying
	Success    bool `bson:"success"`
	NewThreads int  `bson:"new_threads"`
	ErrorCount int  `bson:"error_count"`

	// Full result as (potentially compressed) JSON
	Content      []byte `bson:"content"`
	IsCompressed bool   `bson:"is_compressed"`

	StartedAt  time.Time `bson:"started_at"`
	FinishedAt time.Time `bson:"finished_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
}

// =============================================================================
// Operations
// =============================================================================

// RecordRun saves a run report.
func (a *RunReportAdapter) RecordRun(ctx context.Context, report *domain.RunReport) error {
	doc, err := toReportDocument(report, a.retention)
	if err != nil {
		return fmt.Errorf("failed to convert report to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, bson.M{"id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save run report: %w", err)
	}
	return nil
}

// RecentRuns returns the latest reports, newest first.
func (a *RunReportAdapter) RecentRuns(ctx context.Context, limit int) ([]*domain.RunReport, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cursor, err := a.collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list run reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []*domain.RunReport
	for cursor.Next(ctx) {
		var doc runReportDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode run report: %w", err)
		}
		report, err := fromReportDocument(&doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert run report %s: %w", doc.ID, err)
		}
		reports = append(reports, report)
	}
	return reports, cursor.Err()
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func toReportDocument(report *domain.RunReport, retention time.Duration) (*runReportDocument, error) {
	result := report.Result
	if result == nil {
		result = &domain.ProcessingResult{}
	}

	content, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	doc := &runReportDocument{
		ID:         report.ID.String(),
		Mode:       string(report.Mode),
		DryRun:     report.DryRun,
		Success:    result.Success,
		NewThreads: result.NewThreads,
		ErrorCount: len(result.Errors),
		Content:    content,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		ExpiresAt:  report.FinishedAt.Add(retention),
	}

	if len(content) > reportCompressionThreshold {
		compressed, err := compress(content)
		if err != nil {
			return nil, fmt.Errorf("failed to compress report: %w", err)
		}
		doc.Content = compressed
		doc.IsCompressed = true
	}
	return doc, nil
}

func fromReportDocument(doc *runReportDocument) (*domain.RunReport, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, err
	}

	content := doc.Content
	if doc.IsCompressed {
		if content, err = decompress(doc.Content); err != nil {
			return nil, fmt.Errorf("failed to decompress report: %w", err)
		}
	}

	result := &domain.ProcessingResult{}
	if err := json.Unmarshal(content, result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &domain.RunReport{
		ID:         id,
		Mode:       domain.RunMode(doc.Mode),
		DryRun:     doc.DryRun,
		StartedAt:  doc.StartedAt,
		FinishedAt: doc.FinishedAt,
		Result:     result,
	}, nil
}
