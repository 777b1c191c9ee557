package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/insolvency-docs/constants"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/forms"
)

const tableDocuments = "documents"

const documentsDDL = `CREATE TABLE IF NOT EXISTS documents (
	id               TEXT PRIMARY KEY,
	filename         TEXT NOT NULL DEFAULT '',
	storage_path     TEXT NOT NULL DEFAULT '',
	content_hash     TEXT NOT NULL DEFAULT '',
	size_bytes       BIGINT NOT NULL DEFAULT 0,
	document_type    TEXT NOT NULL DEFAULT 'general',
	status           TEXT NOT NULL DEFAULT 'pending',
	status_detail    TEXT,
	form_number      TEXT,
	form_type        TEXT,
	client_name      TEXT,
	trustee_name     TEXT,
	claimant_name    TEXT,
	date_signed      TEXT,
	proposal_type    TEXT,
	fields_json      TEXT,
	extracted_text   TEXT,
	successful_pages INTEGER NOT NULL DEFAULT 0,
	total_pages      INTEGER NOT NULL DEFAULT 0,
	page_report      TEXT,
	extraction_error TEXT,
	risk_level       TEXT,
	assessment_json  TEXT,
	created_at       BIGINT NOT NULL DEFAULT 0,
	updated_at       BIGINT NOT NULL DEFAULT 0
)`

var documentsIndexes = []string{
	`CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status)`,
	`CREATE INDEX IF NOT EXISTS documents_content_hash_idx ON documents (content_hash)`,
}

// field columns, keyed by the extracted field they hold
var fieldColumns = []struct {
	key    forms.FieldKey
	column string
}{
	{forms.FieldFormNumber, "form_number"},
	{forms.FieldFormType, "form_type"},
	{forms.FieldClientName, "client_name"},
	{forms.FieldTrusteeName, "trustee_name"},
	{forms.FieldClaimantName, "claimant_name"},
	{forms.FieldDateSigned, "date_signed"},
	{forms.FieldProposalType, "proposal_type"},
}

var documentColumns = []string{
	"id", "filename", "storage_path", "content_hash", "size_bytes", "document_type",
	"status", "status_detail", "fields_json", "extracted_text", "successful_pages",
	"total_pages", "page_report", "extraction_error", "risk_level", "assessment_json",
	"created_at", "updated_at",
}

// Document is one stored document row.
type Document struct {
	ID              string                   `json:"id"`
	Filename        string                   `json:"filename"`
	StoragePath     string                   `json:"storagePath"`
	ContentHash     string                   `json:"contentHash"`
	SizeBytes       int64                    `json:"sizeBytes"`
	DocumentType    constants.DocumentType   `json:"documentType"`
	Status          constants.DocumentStatus `json:"status"`
	StatusDetail    string                   `json:"statusDetail,omitempty"`
	Fields          forms.Fields             `json:"fields,omitempty"`
	ExtractedText   string                   `json:"-"`
	SuccessfulPages int                      `json:"successfulPages"`
	TotalPages      int                      `json:"totalPages"`
	PageReport      json.RawMessage          `json:"pageReport,omitempty"`
	ExtractionError string                   `json:"extractionError,omitempty"`
	RiskLevel       string                   `json:"riskLevel,omitempty"`
	Assessment      json.RawMessage          `json:"assessment,omitempty"`
	CreatedAt       time.Time                `json:"createdAt"`
	UpdatedAt       time.Time                `json:"updatedAt"`
}

// NewDocument is what intake records for a fresh upload.
type NewDocument struct {
	ID           string
	Filename     string
	StoragePath  string
	ContentHash  string
	SizeBytes    int64
	DocumentType constants.DocumentType
}

// ExtractionRecord is the persisted outcome of one extraction pass.
type ExtractionRecord struct {
	Text            string
	SuccessfulPages int
	TotalPages      int
	PageReport      []byte
	Error           string
}

// ListOptions filter List. Zero values mean no filter.
type ListOptions struct {
	Status constants.DocumentStatus
	Limit  int
}

type DocumentRepository interface {
	EnsureSchema(ctx context.Context) error
	Create(ctx context.Context, doc NewDocument) (*Document, error)
	UpdateStatus(ctx context.Context, id string, status constants.DocumentStatus, detail string) error
	UpsertExtractedFields(ctx context.Context, id string, fields forms.Fields) error
	SaveExtraction(ctx context.Context, id string, rec ExtractionRecord) error
	SaveAssessment(ctx context.Context, id string, riskLevel string, body []byte) error
	Get(ctx context.Context, id string) (*Document, error)
	GetByHash(ctx context.Context, hash string) (*Document, error)
	List(ctx context.Context, opts ListOptions) ([]*Document, error)
}

type documentRepo struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{db: db, logger: logger, now: time.Now}
}

func (r *documentRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect())
}

func (r *documentRepo) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	var res sql.Result
	if err := r.db.drv.Exec(ctx, query, args, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return res, nil
}

func (r *documentRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range append([]string{documentsDDL}, documentsIndexes...) {
		if _, err := r.exec(ctx, stmt, []any{}); err != nil {
			r.logger.Error("failed to ensure schema", "error", err)
			return err
		}
	}
	return nil
}

func (r *documentRepo) Create(ctx context.Context, doc NewDocument) (*Document, error) {
	if doc.ID == "" {
		return nil, common.NewAppError("INVALID_INPUT", "document id is required", common.ErrInvalidInput)
	}
	if doc.DocumentType == "" {
		doc.DocumentType = constants.DocumentTypeGeneral
	}
	now := r.now().UTC()
	query, args := r.builder().Insert(tableDocuments).
		Columns("id", "filename", "storage_path", "content_hash", "size_bytes", "document_type", "status", "created_at", "updated_at").
		Values(doc.ID, doc.Filename, doc.StoragePath, doc.ContentHash, doc.SizeBytes, string(doc.DocumentType),
			string(constants.DocumentStatusPending), now.UnixMilli(), now.UnixMilli()).
		Query()
	if _, err := r.exec(ctx, query, args); err != nil {
		r.logger.Error("failed to create document", "document_id", doc.ID, "filename", doc.Filename, "error", err)
		return nil, err
	}
	return &Document{
		ID:           doc.ID,
		Filename:     doc.Filename,
		StoragePath:  doc.StoragePath,
		ContentHash:  doc.ContentHash,
		SizeBytes:    doc.SizeBytes,
		DocumentType: doc.DocumentType,
		Status:       constants.DocumentStatusPending,
		CreatedAt:    time.UnixMilli(now.UnixMilli()).UTC(),
		UpdatedAt:    time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

func (r *documentRepo) UpdateStatus(ctx context.Context, id string, status constants.DocumentStatus, detail string) error {
	if !status.Valid() {
		return common.NewAppError("INVALID_INPUT", fmt.Sprintf("unknown status %q", status), common.ErrInvalidInput)
	}
	query, args := r.builder().Update(tableDocuments).
		Set("status", string(status)).
		Set("status_detail", nullString(detail)).
		Set("updated_at", r.now().UTC().UnixMilli()).
		Where(entsql.EQ("id", id)).
		Query()
	res, err := r.exec(ctx, query, args)
	if err != nil {
		r.logger.Error("failed to update document status", "document_id", id, "status", status, "error", err)
		return err
	}
	return requireRow(res, id)
}

// UpsertExtractedFields replaces every field column; absent keys become NULL.
func (r *documentRepo) UpsertExtractedFields(ctx context.Context, id string, fields forms.Fields) error {
	body, err := fields.JSON()
	if err != nil {
		return err
	}
	cols := []string{"fields_json"}
	vals := []any{string(body)}
	for _, fc := range fieldColumns {
		v, _ := fields.Get(fc.key)
		cols = append(cols, fc.column)
		vals = append(vals, nullString(v))
	}
	if err := r.upsert(ctx, id, cols, vals); err != nil {
		r.logger.Error("failed to upsert extracted fields", "document_id", id, "error", err)
		return err
	}
	return nil
}

func (r *documentRepo) SaveExtraction(ctx context.Context, id string, rec ExtractionRecord) error {
	var report any
	if len(rec.PageReport) > 0 {
		report = string(rec.PageReport)
	}
	err := r.upsert(ctx, id,
		[]string{"extracted_text", "successful_pages", "total_pages", "page_report", "extraction_error"},
		[]any{rec.Text, rec.SuccessfulPages, rec.TotalPages, report, nullString(rec.Error)},
	)
	if err != nil {
		r.logger.Error("failed to save extraction", "document_id", id, "error", err)
	}
	return err
}

func (r *documentRepo) SaveAssessment(ctx context.Context, id string, riskLevel string, body []byte) error {
	err := r.upsert(ctx, id,
		[]string{"risk_level", "assessment_json"},
		[]any{nullString(riskLevel), nullString(string(body))},
	)
	if err != nil {
		r.logger.Error("failed to save assessment", "document_id", id, "error", err)
	}
	return err
}

// upsert writes cols for id, creating a bare row when none exists yet.
func (r *documentRepo) upsert(ctx context.Context, id string, cols []string, vals []any) error {
	now := r.now().UTC().UnixMilli()
	insertCols := append([]string{"id", "created_at", "updated_at"}, cols...)
	insertVals := append([]any{id, now, now}, vals...)
	query, args := r.builder().Insert(tableDocuments).
		Columns(insertCols...).
		Values(insertVals...).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("updated_at")
				for _, c := range cols {
					u.SetExcluded(c)
				}
			}),
		).
		Query()
	_, err := r.exec(ctx, query, args)
	return err
}

func (r *documentRepo) selectDocuments() *entsql.Selector {
	cols := append([]string{}, documentColumns...)
	for _, fc := range fieldColumns {
		cols = append(cols, fc.column)
	}
	return r.builder().Select(cols...).From(entsql.Table(tableDocuments))
}

func (r *documentRepo) Get(ctx context.Context, id string) (*Document, error) {
	docs, err := r.query(ctx, r.selectDocuments().Where(entsql.EQ("id", id)).Limit(1))
	if err != nil {
		r.logger.Error("failed to get document", "document_id", id, "error", err)
		return nil, err
	}
	if len(docs) == 0 {
		return nil, common.NewAppError("NOT_FOUND", "document "+id, common.ErrNotFound)
	}
	return docs[0], nil
}

func (r *documentRepo) GetByHash(ctx context.Context, hash string) (*Document, error) {
	docs, err := r.query(ctx, r.selectDocuments().
		Where(entsql.EQ("content_hash", hash)).
		OrderBy(entsql.Asc("created_at")).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, common.NewAppError("NOT_FOUND", "document with hash "+hash, common.ErrNotFound)
	}
	return docs[0], nil
}

func (r *documentRepo) List(ctx context.Context, opts ListOptions) ([]*Document, error) {
	sel := r.selectDocuments().OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))
	if opts.Status != "" {
		sel = sel.Where(entsql.EQ("status", string(opts.Status)))
	}
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}
	docs, err := r.query(ctx, sel)
	if err != nil {
		r.logger.Error("failed to list documents", "status", opts.Status, "error", err)
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) query(ctx context.Context, sel *entsql.Selector) ([]*Document, error) {
	query, args := sel.Query()
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", common.ErrDatabase, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func scanDocument(rows entsql.Rows) (*Document, error) {
	var d Document
	var docType, status string
	var detail, fieldsJSON, text, report, extErr, risk, assessment sql.NullString
	var createdAt, updatedAt int64
	fieldVals := make([]sql.NullString, len(fieldColumns))

	dest := []any{
		&d.ID, &d.Filename, &d.StoragePath, &d.ContentHash, &d.SizeBytes, &docType,
		&status, &detail, &fieldsJSON, &text, &d.SuccessfulPages,
		&d.TotalPages, &report, &extErr, &risk, &assessment,
		&createdAt, &updatedAt,
	}
	for i := range fieldVals {
		dest = append(dest, &fieldVals[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	d.DocumentType = constants.DocumentType(docType)
	d.Status = constants.DocumentStatus(status)
	d.StatusDetail = detail.String
	d.ExtractedText = text.String
	d.ExtractionError = extErr.String
	d.RiskLevel = risk.String
	if report.Valid && report.String != "" {
		d.PageReport = json.RawMessage(report.String)
	}
	if assessment.Valid && assessment.String != "" {
		d.Assessment = json.RawMessage(assessment.String)
	}
	d.CreatedAt = time.UnixMilli(createdAt).UTC()
	d.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	d.Fields = forms.Fields{}
	for i, fc := range fieldColumns {
		if fieldVals[i].Valid && fieldVals[i].String != "" {
			d.Fields[fc.key] = fieldVals[i].String
		}
	}
	return &d, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "document "+id, common.ErrNotFound)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool { return errors.Is(err, common.ErrNotFound) }
