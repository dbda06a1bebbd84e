package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"

	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
)

var articleColumns = []string{
	"id", "url", "title", "published_at", "source", "fetched_at", "raw_content",
	"summary", "embedding", "processed_at", "cluster_id", "impact_score", "image_url", "profile",
}

var briefColumns = []string{"id", "generated_at", "markdown", "article_ids", "profile"}

// Options configures Open.
type Options struct {
	Driver string
	DSN    string
	// DefaultProfile tags articles stored without a profile.
	DefaultProfile string
}

// SQLRepository persists articles and briefs in SQLite or Postgres.
type SQLRepository struct {
	db             *sql.DB
	dialect        dialect
	sb             sq.StatementBuilderType
	defaultProfile string
	now            func() time.Time
}

var (
	_ ports.ArticleRepository = (*SQLRepository)(nil)
	_ ports.BriefReader       = (*SQLRepository)(nil)
)

// Open connects to the configured database and creates the schema if needed.
func Open(ctx context.Context, opts Options) (*SQLRepository, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.sqlDriver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if d.name == DriverSQLite {
		// a single writer avoids SQLITE_BUSY between stages
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	if err := d.migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newSQLRepository(db, d, opts.DefaultProfile), nil
}

func newSQLRepository(db *sql.DB, d dialect, defaultProfile string) *SQLRepository {
	if defaultProfile == "" {
		defaultProfile = "default"
	}
	return &SQLRepository{
		db:             db,
		dialect:        d,
		sb:             sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		defaultProfile: defaultProfile,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// ArticleExists reports whether the URL is already stored.
func (r *SQLRepository) ArticleExists(ctx context.Context, url string) (bool, error) {
	query, args, err := r.sb.Select("1").From("articles").Where(sq.Eq{"url": url}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query article exists: %w", err)
	}
	return true, nil
}

// AddArticle inserts a new article. A duplicate URL returns the stored id with inserted == false.
func (r *SQLRepository) AddArticle(ctx context.Context, a domain.NewArticle) (int64, bool, error) {
	profile := a.Profile
	if profile == "" {
		profile = r.defaultProfile
	}
	published := a.PublishedAt
	if published.IsZero() {
		published = r.now()
	}

	query, args, err := r.sb.Insert("articles").
		Columns("url", "title", "published_at", "source", "fetched_at", "raw_content", "image_url", "profile").
		Values(a.URL, a.Title, published.UTC(), a.Source, r.now(), a.RawContent, nullString(a.ImageURL), profile).
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build insert article: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("insert article: %w", err)
	}

	existing, err := r.articleIDByURL(ctx, a.URL)
	if err != nil {
		return 0, false, err
	}
	return existing, false, nil
}

func (r *SQLRepository) articleIDByURL(ctx context.Context, url string) (int64, error) {
	query, args, err := r.sb.Select("id").From("articles").Where(sq.Eq{"url": url}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build id lookup: %w", err)
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup article id: %w", err)
	}
	return id, nil
}

// GetUnprocessed selects articles with raw text and no processing timestamp, newest fetched first.
func (r *SQLRepository) GetUnprocessed(ctx context.Context, profile string, limit int) ([]domain.Article, error) {
	q := r.selectArticles().
		Where(sq.Eq{"profile": profile, "processed_at": nil}).
		Where(sq.And{sq.NotEq{"raw_content": nil}, sq.NotEq{"raw_content": ""}}).
		OrderBy("fetched_at DESC", "id DESC")
	return r.queryArticles(ctx, withLimit(q, limit))
}

// GetUnrated selects summarized articles without a score, newest processed first.
func (r *SQLRepository) GetUnrated(ctx context.Context, profile string, limit int) ([]domain.Article, error) {
	q := r.selectArticles().
		Where(sq.Eq{"profile": profile, "impact_score": nil}).
		Where(sq.NotEq{"summary": nil, "processed_at": nil}).
		OrderBy("processed_at DESC", "id DESC")
	return r.queryArticles(ctx, withLimit(q, limit))
}

// UpdateProcessing stores summary, embedding and processing timestamp in one statement.
func (r *SQLRepository) UpdateProcessing(ctx context.Context, id int64, summary string, embedding []float64) error {
	encoded, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	query, args, err := r.sb.Update("articles").
		Set("summary", summary).
		Set("embedding", string(encoded)).
		Set("processed_at", r.now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update processing: %w", err)
	}
	return r.execOne(ctx, "update processing", query, args)
}

// UpdateRating stores the impact score.
func (r *SQLRepository) UpdateRating(ctx context.Context, id int64, score int) error {
	query, args, err := r.sb.Update("articles").
		Set("impact_score", score).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update rating: %w", err)
	}
	return r.execOne(ctx, "update rating", query, args)
}

// GetForBriefing selects embedded articles processed within the lookback window, newest first.
func (r *SQLRepository) GetForBriefing(ctx context.Context, profile string, lookback time.Duration) ([]domain.Article, error) {
	cutoff := r.now().Add(-lookback)
	q := r.selectArticles().
		Where(sq.Eq{"profile": profile}).
		Where(sq.NotEq{"embedding": nil, "processed_at": nil}).
		Where(sq.GtOrEq{"processed_at": cutoff}).
		OrderBy("processed_at DESC", "id DESC")
	return r.queryArticles(ctx, q)
}

// SaveBrief stores a digest and its contributing article ids.
func (r *SQLRepository) SaveBrief(ctx context.Context, markdown string, articleIDs []int64, profile string) (int64, error) {
	if profile == "" {
		profile = r.defaultProfile
	}
	if articleIDs == nil {
		articleIDs = []int64{}
	}
	ids, err := json.Marshal(articleIDs)
	if err != nil {
		return 0, fmt.Errorf("encode article ids: %w", err)
	}

	query, args, err := r.sb.Insert("briefs").
		Columns("generated_at", "markdown", "article_ids", "profile").
		Values(r.now(), markdown, string(ids), profile).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert brief: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert brief: %w", err)
	}
	return id, nil
}

// GetArticle loads one article by id.
func (r *SQLRepository) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	articles, err := r.queryArticles(ctx, r.selectArticles().Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Article{}, err
	}
	if len(articles) == 0 {
		return domain.Article{}, fmt.Errorf("article %d: %w", id, domain.ErrNotFound)
	}
	return articles[0], nil
}

// ListBriefs returns briefs newest first; an empty profile lists every profile.
func (r *SQLRepository) ListBriefs(ctx context.Context, profile string) ([]domain.Brief, error) {
	q := r.sb.Select(briefColumns...).From("briefs").OrderBy("generated_at DESC", "id DESC")
	if profile != "" {
		q = q.Where(sq.Eq{"profile": profile})
	}
	return r.queryBriefs(ctx, q)
}

// GetBrief loads one brief by id.
func (r *SQLRepository) GetBrief(ctx context.Context, id int64) (domain.Brief, error) {
	briefs, err := r.queryBriefs(ctx, r.sb.Select(briefColumns...).From("briefs").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Brief{}, err
	}
	if len(briefs) == 0 {
		return domain.Brief{}, fmt.Errorf("brief %d: %w", id, domain.ErrNotFound)
	}
	return briefs[0], nil
}

// Profiles lists the distinct profiles that have articles or briefs.
func (r *SQLRepository) Profiles(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, table := range []string{"articles", "briefs"} {
		query, args, err := r.sb.Select("profile").Distinct().From(table).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build profiles query: %w", err)
		}
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query %s profiles: %w", table, err)
		}
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan profile: %w", err)
			}
			seen[p] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("rows iteration: %w", err)
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("close rows: %w", err)
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}

func (r *SQLRepository) selectArticles() sq.SelectBuilder {
	return r.sb.Select(articleColumns...).From("articles")
}

func (r *SQLRepository) execOne(ctx context.Context, op, query string, args []any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) queryArticles(ctx context.Context, q sq.SelectBuilder) ([]domain.Article, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}

	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}
	return out, nil
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		a           domain.Article
		rawContent  sql.NullString
		summary     sql.NullString
		embedding   sql.NullString
		processedAt sql.NullTime
		clusterID   sql.NullInt64
		impactScore sql.NullInt64
		imageURL    sql.NullString
	)
	err := row.Scan(&a.ID, &a.URL, &a.Title, &a.PublishedAt, &a.Source, &a.FetchedAt, &rawContent,
		&summary, &embedding, &processedAt, &clusterID, &impactScore, &imageURL, &a.Profile)
	if err != nil {
		return domain.Article{}, fmt.Errorf("scan article: %w", err)
	}

	a.RawContent = rawContent.String
	if summary.Valid {
		a.Summary = &summary.String
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &a.Embedding); err != nil {
			return domain.Article{}, fmt.Errorf("decode embedding of article %d: %w", a.ID, err)
		}
	}
	if processedAt.Valid {
		t := processedAt.Time
		a.ProcessedAt = &t
	}
	if clusterID.Valid {
		v := int(clusterID.Int64)
		a.ClusterID = &v
	}
	if impactScore.Valid {
		v := int(impactScore.Int64)
		a.ImpactScore = &v
	}
	if imageURL.Valid && imageURL.String != "" {
		a.ImageURL = &imageURL.String
	}
	return a, nil
}

func (r *SQLRepository) queryBriefs(ctx context.Context, q sq.SelectBuilder) ([]domain.Brief, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build brief query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query briefs: %w", err)
	}

	var out []domain.Brief
	for rows.Next() {
		var (
			b   domain.Brief
			ids string
		)
		if err := rows.Scan(&b.ID, &b.GeneratedAt, &b.Markdown, &ids, &b.Profile); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan brief: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &b.ContributingArticleIDs); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode article ids of brief %d: %w", b.ID, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}
	return out, nil
}

func withLimit(q sq.SelectBuilder, limit int) sq.SelectBuilder {
	if limit <= 0 {
		return q
	}
	return q.Limit(uint64(limit))
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
