package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
)

// NewFirestoreClient creates a Firestore client for projectID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// FirestoreSink keeps documents in a Firestore collection, one Firestore
// document per id. Status and result writes merge into existing data.
type FirestoreSink struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
	now        func() time.Time
}

var _ DocumentRepository = (*FirestoreSink)(nil)

func NewFirestoreSink(client *firestore.Client, collection string, logger *slog.Logger) *FirestoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	if collection == "" {
		collection = "documents"
	}
	return &FirestoreSink{client: client, collection: collection, logger: logger, now: time.Now}
}

// firestoreDocument is the stored shape.
type firestoreDocument struct {
	Filename        string            `firestore:"filename"`
	StoragePath     string            `firestore:"storagePath"`
	ContentHash     string            `firestore:"contentHash"`
	SizeBytes       int64             `firestore:"sizeBytes"`
	DocumentType    string            `firestore:"documentType"`
	Status          string            `firestore:"status"`
	ErrorDetails    string            `firestore:"errorDetails"`
	ExtractedFields map[string]string `firestore:"extractedFields"`
	ExtractedText   string            `firestore:"extractedText"`
	SuccessfulPages int               `firestore:"successfulPages"`
	TotalPages      int               `firestore:"totalPages"`
	PageReport      string            `firestore:"pageReport"`
	ExtractionError string            `firestore:"extractionError"`
	RiskLevel       string            `firestore:"riskLevel"`
	Assessment      string            `firestore:"assessment"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
}

func (s *FirestoreSink) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreSink) merge(ctx context.Context, id string, data map[string]any) error {
	data["updatedAt"] = firestore.ServerTimestamp
	if _, err := s.doc(id).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("%w: firestore set %s/%s: %v", common.ErrDatabase, s.collection, id, err)
	}
	return nil
}

// EnsureSchema is a no-op; Firestore collections need no setup.
func (s *FirestoreSink) EnsureSchema(context.Context) error { return nil }

func (s *FirestoreSink) Create(ctx context.Context, nd NewDocument) (*Document, error) {
	if nd.DocumentType == "" {
		nd.DocumentType = constants.DocumentTypeGeneral
	}
	now := s.now().UTC()
	if _, err := s.doc(nd.ID).Create(ctx, map[string]any{
		"filename":     nd.Filename,
		"storagePath":  nd.StoragePath,
		"contentHash":  nd.ContentHash,
		"sizeBytes":    nd.SizeBytes,
		"documentType": string(nd.DocumentType),
		"status":       string(constants.DocumentStatusPending),
		"createdAt":    now,
		"updatedAt":    now,
	}); err != nil {
		s.logger.Error("failed to create document", "document_id", nd.ID, "error", err)
		return nil, fmt.Errorf("%w: firestore create %s/%s: %v", common.ErrDatabase, s.collection, nd.ID, err)
	}
	return &Document{
		ID:           nd.ID,
		Filename:     nd.Filename,
		StoragePath:  nd.StoragePath,
		ContentHash:  nd.ContentHash,
		SizeBytes:    nd.SizeBytes,
		DocumentType: nd.DocumentType,
		Status:       constants.DocumentStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *FirestoreSink) UpdateStatus(ctx context.Context, id string, st constants.DocumentStatus, detail string) error {
	if !st.Valid() {
		return common.NewAppError("INVALID_INPUT", fmt.Sprintf("unknown status %q", st), common.ErrInvalidInput)
	}
	data := map[string]any{"status": string(st)}
	if detail != "" {
		data["errorDetails"] = detail
	} else {
		data["errorDetails"] = firestore.Delete
	}
	if err := s.merge(ctx, id, data); err != nil {
		s.logger.Error("failed to update document status", "document_id", id, "status", st, "error", err)
		return err
	}
	return nil
}

func (s *FirestoreSink) UpsertExtractedFields(ctx context.Context, id string, fields forms.Fields) error {
	m := make(map[string]any, len(fields))
	for k, v := range fields {
		m[string(k)] = v
	}
	// replace the whole map so stale keys disappear
	if _, err := s.doc(id).Set(ctx, map[string]any{
		"extractedFields": m,
		"updatedAt":       firestore.ServerTimestamp,
	}, firestore.Merge([]string{"extractedFields"}, []string{"updatedAt"})); err != nil {
		s.logger.Error("failed to upsert extracted fields", "document_id", id, "error", err)
		return fmt.Errorf("%w: firestore set %s/%s: %v", common.ErrDatabase, s.collection, id, err)
	}
	return nil
}

func (s *FirestoreSink) SaveExtraction(ctx context.Context, id string, rec ExtractionRecord) error {
	data := map[string]any{
		"extractedText":   rec.Text,
		"successfulPages": rec.SuccessfulPages,
		"totalPages":      rec.TotalPages,
		"extractedAt":     s.now().UTC(),
	}
	if len(rec.PageReport) > 0 {
		data["pageReport"] = string(rec.PageReport)
	}
	if rec.Error != "" {
		data["extractionError"] = rec.Error
	} else {
		data["extractionError"] = firestore.Delete
	}
	if err := s.merge(ctx, id, data); err != nil {
		s.logger.Error("failed to save extraction", "document_id", id, "error", err)
		return err
	}
	return nil
}

func (s *FirestoreSink) SaveAssessment(ctx context.Context, id string, riskLevel string, body []byte) error {
	if err := s.merge(ctx, id, map[string]any{
		"riskLevel":  riskLevel,
		"assessment": string(body),
	}); err != nil {
		s.logger.Error("failed to save assessment", "document_id", id, "error", err)
		return err
	}
	return nil
}

func (s *FirestoreSink) Get(ctx context.Context, id string) (*Document, error) {
	snap, err := s.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, common.NewAppError("NOT_FOUND", "document "+id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: firestore get %s/%s: %v", common.ErrDatabase, s.collection, id, err)
	}
	return fromSnapshot(snap)
}

func (s *FirestoreSink) GetByHash(ctx context.Context, hash string) (*Document, error) {
	it := s.client.Collection(s.collection).Where("contentHash", "==", hash).Limit(1).Documents(ctx)
	defer it.Stop()
	snap, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return nil, common.NewAppError("NOT_FOUND", "document with hash "+hash, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: firestore query %s: %v", common.ErrDatabase, s.collection, err)
	}
	return fromSnapshot(snap)
}

func (s *FirestoreSink) List(ctx context.Context, opts ListOptions) ([]*Document, error) {
	q := s.client.Collection(s.collection).Query
	if opts.Status != "" {
		q = q.Where("status", "==", string(opts.Status))
	}
	q = q.OrderBy("createdAt", firestore.Desc)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		s.logger.Error("failed to list documents", "status", opts.Status, "error", err)
		return nil, fmt.Errorf("%w: firestore query %s: %v", common.ErrDatabase, s.collection, err)
	}
	out := make([]*Document, 0, len(snaps))
	for _, snap := range snaps {
		d, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (*Document, error) {
	var fd firestoreDocument
	if err := snap.DataTo(&fd); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", common.ErrDatabase, snap.Ref.ID, err)
	}
	d := &Document{
		ID:              snap.Ref.ID,
		Filename:        fd.Filename,
		StoragePath:     fd.StoragePath,
		ContentHash:     fd.ContentHash,
		SizeBytes:       fd.SizeBytes,
		DocumentType:    constants.DocumentType(fd.DocumentType),
		Status:          constants.DocumentStatus(fd.Status),
		StatusDetail:    fd.ErrorDetails,
		ExtractedText:   fd.ExtractedText,
		SuccessfulPages: fd.SuccessfulPages,
		TotalPages:      fd.TotalPages,
		ExtractionError: fd.ExtractionError,
		RiskLevel:       fd.RiskLevel,
		CreatedAt:       fd.CreatedAt,
		UpdatedAt:       fd.UpdatedAt,
	}
	if d.Status == "" {
		d.Status = constants.DocumentStatusPending
	}
	if len(fd.ExtractedFields) > 0 {
		d.Fields = make(forms.Fields, len(fd.ExtractedFields))
		for k, v := range fd.ExtractedFields {
			if v != "" {
				d.Fields[forms.FieldKey(k)] = v
			}
		}
	}
	if fd.PageReport != "" {
		d.PageReport = []byte(fd.PageReport)
	}
	if fd.Assessment != "" {
		d.Assessment = []byte(fd.Assessment)
	}
	return d, nil
}
