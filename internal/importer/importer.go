// Package importer drives the import pipeline for one uploaded file.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-identity/harrier/internal/correlate"
	"github.com/opensource-identity/harrier/internal/domain"
	"github.com/opensource-identity/harrier/internal/ingest"
	"github.com/opensource-identity/harrier/internal/session"
)

var tracer = otel.Tracer("harrier-importer")

// Importer is the batch orchestrator: session creation, streamed
// parse/aggregate, resolve+persist per aggregated record, outcome
// determination and handoff to file relocation.
//
// Row-level errors (parse or persistence) are logged to the session and the
// row is skipped; session-level errors abort the whole batch and are
// returned to the caller.
type Importer struct {
	repo     domain.Repository
	store    domain.ObjectStore
	sessions *session.Manager
	resolver *correlate.Resolver
}

// New creates an importer.
func New(repo domain.Repository, store domain.ObjectStore, sessions *session.Manager, resolver *correlate.Resolver) *Importer {
	return &Importer{
		repo:     repo,
		store:    store,
		sessions: sessions,
		resolver: resolver,
	}
}

// Result is the outcome of one import run.
type Result struct {
	Session   *domain.UploadSession
	Rows      int // data rows consumed (header excluded)
	Records   int // aggregated records persisted
	Failures  int
	Validated bool
	MovedTo   string // key the source file was relocated to
}

// Run imports the object at key, reading per-upload options from its tags.
func (imp *Importer) Run(ctx context.Context, key string) (*Result, error) {
	tags, err := imp.store.Tags(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tags for %s: %w", key, err)
	}

	opts := domain.OptionsFromTags(tags)
	return imp.RunWithOptions(ctx, key, opts)
}

// RunWithOptions imports the object at key with explicit options.
func (imp *Importer) RunWithOptions(ctx context.Context, key string, opts domain.ImportOptions) (*Result, error) {
	ctx, span := tracer.Start(ctx, "import",
		trace.WithAttributes(
			attribute.String("upload.key", key),
			attribute.String("upload.idp_entity_id", opts.IDPEntityID),
		),
	)
	defer span.End()

	if opts.IDPEntityID == "" {
		return nil, fmt.Errorf("upload %s carries no idp entity id", key)
	}

	parser, err := ingest.NewParser(opts.IDPEntityID, opts.Timezone, opts.Dialect)
	if err != nil {
		return nil, fmt.Errorf("invalid processing options for %s: %w", key, err)
	}

	sess, err := imp.sessions.Create(ctx, key, opts.IDPEntityID, opts.UploadedBy)
	if err != nil {
		return nil, err
	}

	slog.Info("processing upload",
		"session_id", sess.ID,
		"idp_entity_id", opts.IDPEntityID,
		"key", key,
	)

	result := &Result{Session: sess}

	aggregator, err := imp.consume(ctx, key, parser, opts.HasHeader, sess, result)
	if err != nil {
		return nil, err
	}

	if aggregator != nil {
		if err := imp.persist(ctx, aggregator, sess, result); err != nil {
			return nil, err
		}
	}

	if result.Failures == 0 {
		if err := imp.sessions.MarkValidated(ctx, sess); err != nil {
			return nil, err
		}
		result.Validated = true
		slog.Info("processing successful", "session_id", sess.ID)
	} else {
		slog.Warn("processing failed",
			"session_id", sess.ID,
			"failures", result.Failures,
		)
	}

	folder := domain.FolderError
	if result.Validated {
		folder = domain.FolderSuccess
	}

	movedTo, err := imp.store.Move(ctx, key, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to move %s to %s: %w", key, folder, err)
	}
	result.MovedTo = movedTo

	span.SetAttributes(
		attribute.Bool("import.validated", result.Validated),
		attribute.Int("import.rows", result.Rows),
		attribute.Int("import.failures", result.Failures),
	)

	return result, nil
}

// consume streams the file through parse and aggregation. A fetch failure is
// recorded against the session rather than aborting, so the file still ends
// up in the error area with an audit trail. Returns nil when nothing could
// be read.
func (imp *Importer) consume(ctx context.Context, key string, parser *ingest.Parser, hasHeader bool, sess *domain.UploadSession, result *Result) (*ingest.Aggregator, error) {
	body, err := imp.store.Get(ctx, key)
	if err != nil {
		message := fmt.Sprintf("Failed to read upload file: %v", err)
		if err := imp.sessions.RecordRowFailure(ctx, sess, 0, domain.FieldRowException, message); err != nil {
			return nil, err
		}
		result.Failures++
		return nil, nil
	}
	defer body.Close()

	aggregator := ingest.NewAggregator()
	reader := parser.Reader(body)

	rowNumber := 0
	skipRow := hasHeader
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNumber++

		if err != nil {
			if err := imp.recordRowError(ctx, sess, rowNumber, domain.FieldRowException, err, result); err != nil {
				return nil, err
			}
			continue
		}

		if skipRow {
			skipRow = false
			continue
		}
		result.Rows++

		signal, err := parser.ParseRow(row, rowNumber)
		if err != nil {
			field := domain.FieldRowException
			var rowErr *ingest.RowError
			if errors.As(err, &rowErr) {
				field = rowErr.Field
				err = rowErr.Err
			}
			if err := imp.recordRowError(ctx, sess, rowNumber, field, err, result); err != nil {
				return nil, err
			}
			continue
		}

		aggregator.Add(signal, rowNumber)
	}

	return aggregator, nil
}

// persist resolves and writes each aggregated record in its own transaction.
// A record failure is logged against the last row that contributed to it and
// the remaining records still persist.
func (imp *Importer) persist(ctx context.Context, aggregator *ingest.Aggregator, sess *domain.UploadSession, result *Result) error {
	for _, record := range aggregator.Records() {
		signal := record.Signal
		signal.UploadSessionID = sess.ID
		signal.FraudEventID = imp.resolver.Resolve(ctx, signal.IDPEntityID, signal.IDPEventID)

		if _, err := imp.repo.SaveFraudSignal(ctx, signal); err != nil {
			if err := imp.recordRowError(ctx, sess, record.LastRow, domain.FieldRowException, err, result); err != nil {
				return err
			}
			continue
		}
		result.Records++

		if signal.FraudEventID != nil {
			slog.Info("stored IDP fraud event with matching fraud event",
				"session_id", sess.ID,
				"idp_event_id", signal.IDPEventID,
				"fraud_event_id", *signal.FraudEventID,
			)
		} else {
			slog.Warn("stored IDP fraud event but no matching fraud event found",
				"session_id", sess.ID,
				"idp_event_id", signal.IDPEventID,
			)
		}
	}

	return nil
}

// recordRowError logs one row failure. A failure to write the log entry
// itself is returned, aborting the batch.
func (imp *Importer) recordRowError(ctx context.Context, sess *domain.UploadSession, row int, field string, cause error, result *Result) error {
	message := fmt.Sprintf("Failed to store IDP fraud event: %v (line %d)", cause, row)
	if err := imp.sessions.RecordRowFailure(ctx, sess, row, field, message); err != nil {
		return err
	}
	result.Failures++
	return nil
}
