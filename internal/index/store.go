package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite驱动
)

// AppName 数据目录名
const AppName = "sitecrawl"

// 字段权重
const (
	contentWeight = 1.0
	titleWeight   = 2.0
)

const (
	fieldContent = "content"
	fieldTitle   = "title"
)

var (
	// ErrIndexNotFound 索引或别名不存在
	ErrIndexNotFound = errors.New("索引不存在")
	// ErrIndexExists 索引已存在
	ErrIndexExists = errors.New("索引已存在")
)

// DefaultPath 默认索引数据库位置: $XDG_DATA_HOME/sitecrawl/index.db
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, AppName, "index.db")
}

// NewIndexName 生成带时间戳的索引名: <alias>_<yyyymmddhhmmss>
func NewIndexName(alias string, t time.Time) string {
	return alias + "_" + t.Format("20060102150405")
}

// Hit 搜索结果
type Hit struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// lessHit 分数高者在前, 分数相同按URL升序
func lessHit(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.URL < b.URL
}

// Store 基于SQLite的搜索索引
// 一个数据库文件内可以容纳多个索引, 别名指向其中一个
type Store struct {
	db   *sql.DB
	path string
	stop map[string]struct{}
}

// Open 打开或创建索引数据库
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("创建索引目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("打开索引数据库失败: %w", err)
	}

	// SQLite只支持单写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("启用WAL模式失败: %w", err)
	}

	s := &Store{db: db, path: path, stop: DefaultStopwords()}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建索引表失败: %w", err)
	}
	return s, nil
}

// Path 数据库文件路径
func (s *Store) Path() string {
	return s.path
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS indices (
		name TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS aliases (
		alias TEXT PRIMARY KEY,
		index_name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		index_name TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT,
		content TEXT,
		domain_title TEXT,
		domain_url TEXT,
		crawled_at TEXT,
		content_len INTEGER NOT NULL DEFAULT 0,
		title_len INTEGER NOT NULL DEFAULT 0,
		UNIQUE(index_name, url)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_domain_url ON documents(index_name, domain_url);

	CREATE TABLE IF NOT EXISTS outbound_urls (
		document_id INTEGER NOT NULL,
		url TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outbound_document ON outbound_urls(document_id);
	CREATE INDEX IF NOT EXISTS idx_outbound_url ON outbound_urls(url);

	CREATE TABLE IF NOT EXISTS postings (
		index_name TEXT NOT NULL,
		term TEXT NOT NULL,
		document_id INTEGER NOT NULL,
		field TEXT NOT NULL,
		count INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_postings_term ON postings(index_name, term);
	CREATE INDEX IF NOT EXISTS idx_postings_document ON postings(document_id);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// CreateIndex 创建一个空索引
func (s *Store) CreateIndex(ctx context.Context, name string) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("索引名不能为空")
	}
	exists, err := s.indexExists(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrIndexExists, name)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO indices (name, created_at) VALUES (?, ?)",
		name, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("创建索引失败: %w", err)
	}
	return &Handle{store: s, name: name}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) indexExists(ctx context.Context, q queryer, name string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM indices WHERE name = ?", name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SwapAlias 原子地将别名指向新索引, 并删除别名原先指向的索引
func (s *Store) SwapAlias(ctx context.Context, alias, indexName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, err := s.indexExists(ctx, tx, indexName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, indexName)
	}

	var previous string
	err = tx.QueryRowContext(ctx, "SELECT index_name FROM aliases WHERE alias = ?", alias).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO aliases (alias, index_name) VALUES (?, ?) ON CONFLICT(alias) DO UPDATE SET index_name = excluded.index_name",
		alias, indexName,
	); err != nil {
		return fmt.Errorf("更新别名失败: %w", err)
	}

	if previous != "" && previous != indexName {
		if err := dropIndex(ctx, tx, previous); err != nil {
			return fmt.Errorf("删除旧索引失败: %w", err)
		}
	}

	return tx.Commit()
}

func dropIndex(ctx context.Context, tx *sql.Tx, name string) error {
	stmts := []string{
		"DELETE FROM postings WHERE index_name = ?",
		"DELETE FROM outbound_urls WHERE document_id IN (SELECT id FROM documents WHERE index_name = ?)",
		"DELETE FROM documents WHERE index_name = ?",
		"DELETE FROM indices WHERE name = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, name); err != nil {
			return err
		}
	}
	return nil
}

// DropIndex 删除索引及其全部文档, 指向它的别名一并删除
func (s *Store) DropIndex(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, err := s.indexExists(ctx, tx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM aliases WHERE index_name = ?", name); err != nil {
		return err
	}
	if err := dropIndex(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

// RecreateIndex 创建一个新的空索引并切换别名, 返回新索引名
func (s *Store) RecreateIndex(ctx context.Context, alias string) (string, error) {
	h, err := s.CreateIndex(ctx, NewIndexName(alias, time.Now()))
	if err != nil {
		return "", err
	}
	if err := s.SwapAlias(ctx, alias, h.Name()); err != nil {
		return "", err
	}
	return h.Name(), nil
}

// Resolve 将别名或索引名解析为索引名
func (s *Store) Resolve(ctx context.Context, aliasOrName string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT index_name FROM aliases WHERE alias = ?", aliasOrName).Scan(&name)
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	exists, err := s.indexExists(ctx, s.db, aliasOrName)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrIndexNotFound, aliasOrName)
	}
	return aliasOrName, nil
}

// Count 索引中的文档数
func (s *Store) Count(ctx context.Context, aliasOrName string) (int, error) {
	name, err := s.Resolve(ctx, aliasOrName)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE index_name = ?", name).Scan(&n)
	return n, err
}

// Document 按URL精确查找文档
func (s *Store) Document(ctx context.Context, aliasOrName, url string) (*models.IndexDocument, error) {
	name, err := s.Resolve(ctx, aliasOrName)
	if err != nil {
		return nil, err
	}

	var (
		id        int64
		crawledAt string
		doc       models.IndexDocument
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, doc_id, url, title, content, domain_title, domain_url, crawled_at
		FROM documents WHERE index_name = ? AND url = ?`, name, url,
	).Scan(&id, &doc.ID, &doc.URL, &doc.Title, &doc.Content, &doc.DomainTitle, &doc.DomainURL, &crawledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc.CrawledAt, _ = time.Parse(time.RFC3339Nano, crawledAt)

	rows, err := s.db.QueryContext(ctx, "SELECT url FROM outbound_urls WHERE document_id = ? ORDER BY rowid", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doc.OutboundURLs = []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		doc.OutboundURLs = append(doc.OutboundURLs, u)
	}
	return &doc, rows.Err()
}

type posting struct {
	docID      int64
	field      string
	count      int
	url        string
	title      string
	contentLen int
	titleLen   int
}

// Search 关键词检索, 按TF-IDF排序
// 标题中的命中权重为正文的两倍
func (s *Store) Search(ctx context.Context, aliasOrName, query string, limit int) ([]Hit, error) {
	name, err := s.Resolve(ctx, aliasOrName)
	if err != nil {
		return nil, err
	}

	terms := uniqueTerms(Analyze(query, s.stop))
	if len(terms) == 0 {
		return nil, nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE index_name = ?", name).Scan(&total); err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	scores := make(map[int64]*Hit)
	for _, term := range terms {
		postings, err := s.postingsFor(ctx, name, term)
		if err != nil {
			return nil, err
		}

		docs := make(map[int64]struct{})
		for _, p := range postings {
			docs[p.docID] = struct{}{}
		}
		if len(docs) == 0 {
			continue
		}
		idf := math.Log(1 + float64(total)/float64(len(docs)))

		for _, p := range postings {
			length, weight := p.contentLen, contentWeight
			if p.field == fieldTitle {
				length, weight = p.titleLen, titleWeight
			}
			if length == 0 {
				continue
			}
			hit, ok := scores[p.docID]
			if !ok {
				hit = &Hit{URL: p.url, Title: p.title}
				scores[p.docID] = hit
			}
			hit.Score += weight * float64(p.count) / float64(length) * idf
		}
	}

	hits := make([]Hit, 0, len(scores))
	for _, h := range scores {
		hits = append(hits, *h)
	}
	sort.Slice(hits, func(i, j int) bool {
		return lessHit(hits[i], hits[j])
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) postingsFor(ctx context.Context, indexName, term string) ([]posting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.document_id, p.field, p.count, d.url, d.title, d.content_len, d.title_len
		FROM postings p
		JOIN documents d ON d.id = p.document_id
		WHERE p.index_name = ? AND p.term = ?`, indexName, term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []posting
	for rows.Next() {
		var p posting
		if err := rows.Scan(&p.docID, &p.field, &p.count, &p.url, &p.title, &p.contentLen, &p.titleLen); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Handle 指向单个索引的写入句柄
type Handle struct {
	store *Store
	name  string
}

// Name 索引名
func (h *Handle) Name() string {
	return h.name
}

// IndexDocument 写入文档, 同一URL的旧文档被替换
func (h *Handle) IndexDocument(ctx context.Context, doc *models.IndexDocument) error {
	if doc == nil || strings.TrimSpace(doc.URL) == "" {
		return fmt.Errorf("%w: 文档缺少URL", ErrIndexWrite)
	}
	if err := h.store.writeDocument(ctx, h.name, doc); err != nil {
		return fmt.Errorf("%w [%s]: %v", ErrIndexWrite, doc.URL, err)
	}
	return nil
}

func (s *Store) writeDocument(ctx context.Context, indexName string, doc *models.IndexDocument) error {
	contentTerms := Analyze(doc.Content, s.stop)
	titleTerms := Analyze(doc.Title, s.stop)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, err := s.indexExists(ctx, tx, indexName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, indexName)
	}

	var oldID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM documents WHERE index_name = ? AND url = ?", indexName, doc.URL).Scan(&oldID)
	switch {
	case err == nil:
		for _, stmt := range []string{
			"DELETE FROM postings WHERE document_id = ?",
			"DELETE FROM outbound_urls WHERE document_id = ?",
			"DELETE FROM documents WHERE id = ?",
		} {
			if _, err := tx.ExecContext(ctx, stmt, oldID); err != nil {
				return err
			}
		}
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	docID := doc.ID
	if docID == "" {
		docID = models.NewID()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (index_name, doc_id, url, title, content, domain_title, domain_url, crawled_at, content_len, title_len)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		indexName, docID, doc.URL, doc.Title, doc.Content, doc.DomainTitle, doc.DomainURL,
		doc.CrawledAt.UTC().Format(time.RFC3339Nano), len(contentTerms), len(titleTerms),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, u := range doc.OutboundURLs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO outbound_urls (document_id, url) VALUES (?, ?)", id, u); err != nil {
			return err
		}
	}

	fields := []struct {
		name  string
		terms []string
	}{
		{fieldContent, contentTerms},
		{fieldTitle, titleTerms},
	}
	for _, f := range fields {
		for term, count := range termFrequencies(f.terms) {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO postings (index_name, term, document_id, field, count) VALUES (?, ?, ?, ?, ?)",
				indexName, term, id, f.name, count,
			); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}
