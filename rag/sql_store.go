package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/landau/types"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PassageModel passages 表。Postgres 上 embedding 列为 pgvector 类型。
type PassageModel struct {
	Collection   string          `gorm:"primaryKey;size:128"`
	ID           string          `gorm:"primaryKey;size:512"`
	DocumentID   string          `gorm:"size:255;index:idx_passages_section,priority:1"`
	ChapterID    string          `gorm:"size:32;index:idx_passages_section,priority:2"`
	SectionID    string          `gorm:"size:32;index:idx_passages_section,priority:3"`
	ParagraphID  int
	FormulaID    string `gorm:"size:64;index"`
	DocumentName string
	ChapterName  string
	SectionName  string
	Content      string `gorm:"type:text"`
	NumTokens    int
	Embedding    pgvector.Vector `gorm:"type:vector"`
}

func (PassageModel) TableName() string { return "passages" }

// TableOfContentsModel tables_of_contents 表，每个文档一行，目录以换行分隔。
type TableOfContentsModel struct {
	Collection string `gorm:"primaryKey;size:128"`
	DocumentID string `gorm:"primaryKey;size:255"`
	Content    string `gorm:"type:text"`
}

func (TableOfContentsModel) TableName() string { return "tables_of_contents" }

const lookupColumns = "collection, id, document_id, chapter_id, section_id, paragraph_id, formula_id, " +
	"document_name, chapter_name, section_name, content, num_tokens"

func (m PassageModel) record() PassageRecord {
	return PassageRecord{
		DocumentID:   m.DocumentID,
		ChapterID:    m.ChapterID,
		SectionID:    m.SectionID,
		ParagraphID:  m.ParagraphID,
		FormulaID:    m.FormulaID,
		DocumentName: m.DocumentName,
		ChapterName:  m.ChapterName,
		SectionName:  m.SectionName,
		Content:      m.Content,
		NumTokens:    m.NumTokens,
	}
}

// SQLStore implements PassageStore with GORM. On Postgres nearest neighbours
// are computed by pgvector (cosine distance operator); other dialects such as
// SQLite scan the collection and compute cosine distance in process.
type SQLStore struct {
	db       *gorm.DB
	embedder Embedder
	logger   *zap.Logger
}

// NewSQLStore creates a SQL-backed PassageStore.
func NewSQLStore(db *gorm.DB, embedder Embedder, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:       db,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "sql_store")),
	}
}

func (s *SQLStore) isPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

// Migrate 创建表结构；Postgres 上同时启用 vector 扩展。
func (s *SQLStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if s.isPostgres() {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("enable pgvector: %w", err)
		}
	}
	return db.AutoMigrate(&PassageModel{}, &TableOfContentsModel{})
}

// Upsert 写入段落及其向量。
func (s *SQLStore) Upsert(ctx context.Context, collection string, records []PassageRecord, embeddings [][]float64) error {
	if len(records) != len(embeddings) {
		return fmt.Errorf("got %d records but %d embeddings", len(records), len(embeddings))
	}
	if len(records) == 0 {
		return nil
	}
	models := make([]PassageModel, len(records))
	for i, rec := range records {
		models[i] = PassageModel{
			Collection:   collection,
			ID:           rec.ID(),
			DocumentID:   rec.DocumentID,
			ChapterID:    rec.ChapterID,
			SectionID:    rec.SectionID,
			ParagraphID:  rec.ParagraphID,
			FormulaID:    rec.FormulaID,
			DocumentName: rec.DocumentName,
			ChapterName:  rec.ChapterName,
			SectionName:  rec.SectionName,
			Content:      rec.Content,
			NumTokens:    rec.NumTokens,
			Embedding:    pgvector.NewVector(toFloat32(embeddings[i])),
		}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(models, 500).Error
	if err != nil {
		return s.wrap("upsert passages", err)
	}
	s.logger.Info("passages upserted", zap.String("collection", collection), zap.Int("count", len(models)))
	return nil
}

// SetTableOfContents 保存文档目录。
func (s *SQLStore) SetTableOfContents(ctx context.Context, collection, documentID, toc string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&TableOfContentsModel{Collection: collection, DocumentID: documentID, Content: toc}).Error
	return s.wrap("save table of contents", err)
}

type distanceRow struct {
	PassageModel
	Distance float64
}

func (s *SQLStore) Query(ctx context.Context, collection string, queryTexts []string, topK int, documentIDs []string) ([][]Candidate, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("sql store has no embedder")
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, queryTexts)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}

	out := make([][]Candidate, len(vectors))
	for qi, vec := range vectors {
		var candidates []Candidate
		if s.isPostgres() {
			candidates, err = s.queryPgvector(ctx, collection, vec, topK, documentIDs)
		} else {
			candidates, err = s.queryScan(ctx, collection, vec, topK, documentIDs)
		}
		if err != nil {
			return nil, err
		}
		out[qi] = candidates
	}
	return out, nil
}

func (s *SQLStore) queryPgvector(ctx context.Context, collection string, vec []float64, topK int, documentIDs []string) ([]Candidate, error) {
	var rows []distanceRow
	q := s.db.WithContext(ctx).
		Table(PassageModel{}.TableName()).
		Select(lookupColumns+", embedding <=> ? AS distance", pgvector.NewVector(toFloat32(vec))).
		Where("collection = ?", collection)
	if len(documentIDs) > 0 {
		q = q.Where("document_id IN ?", documentIDs)
	}
	if err := q.Order("distance").Limit(topK).Scan(&rows).Error; err != nil {
		return nil, s.wrap("vector query", err)
	}
	out := make([]Candidate, len(rows))
	for i, r := range rows {
		out[i] = Candidate{PassageRecord: r.record(), Distance: r.Distance}
	}
	return out, nil
}

func (s *SQLStore) queryScan(ctx context.Context, collection string, vec []float64, topK int, documentIDs []string) ([]Candidate, error) {
	var rows []PassageModel
	q := s.db.WithContext(ctx).Where("collection = ?", collection)
	if len(documentIDs) > 0 {
		q = q.Where("document_id IN ?", documentIDs)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, s.wrap("scan passages", err)
	}
	out := make([]Candidate, len(rows))
	for i, r := range rows {
		out[i] = Candidate{
			PassageRecord: r.record(),
			Distance:      1.0 - cosineSimilarity(vec, toFloat64(r.Embedding.Slice())),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (s *SQLStore) GetByIDs(ctx context.Context, collection string, ids []string) ([]PassageRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []PassageModel
	err := s.db.WithContext(ctx).
		Select(lookupColumns).
		Where("collection = ? AND id IN ?", collection, ids).
		Find(&rows).Error
	if err != nil {
		return nil, s.wrap("get passages by id", err)
	}
	return records(rows), nil
}

func (s *SQLStore) GetWhere(ctx context.Context, collection string, filter Filter) ([]PassageRecord, error) {
	q := s.db.WithContext(ctx).Select(lookupColumns).Where("collection = ?", collection)
	if filter.DocumentID != "" {
		q = q.Where("document_id = ?", filter.DocumentID)
	}
	if filter.ChapterID != "" {
		q = q.Where("chapter_id = ?", filter.ChapterID)
	}
	if filter.SectionID != "" {
		q = q.Where("section_id = ?", filter.SectionID)
	}
	if filter.FormulaID != "" {
		q = q.Where("formula_id = ?", filter.FormulaID)
	}
	var rows []PassageModel
	if err := q.Order("document_id, chapter_id, section_id, paragraph_id").Find(&rows).Error; err != nil {
		return nil, s.wrap("get passages", err)
	}
	return records(rows), nil
}

func (s *SQLStore) TableOfContents(ctx context.Context, collection, documentID string) ([]string, error) {
	var toc TableOfContentsModel
	err := s.db.WithContext(ctx).
		Where("collection = ? AND document_id = ?", collection, documentID).
		First(&toc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("table of contents for %q: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return nil, s.wrap("get table of contents", err)
	}
	return strings.Split(toc.Content, "\n"), nil
}

// Ping 检查数据库连接。
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return s.wrap("ping", sqlDB.PingContext(ctx))
}

func (s *SQLStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Error("passage store operation failed", zap.String("op", op), zap.Error(err))
	return types.NewServiceUnavailableError("passage store "+op+" failed", err)
}

func records(rows []PassageModel) []PassageRecord {
	out := make([]PassageRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
