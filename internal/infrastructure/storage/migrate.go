package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"Meridiano/internal/domain"
)

const copyBatch = 500

// CopyStats reports the outcome of Copy.
type CopyStats struct {
	ArticlesCopied  int
	ArticlesSkipped int
	BriefsCopied    int
	BriefsSkipped   int
}

// Copy moves every article and brief from src into dst preserving ids.
// Rows whose id or url already exist in dst are skipped.
func Copy(ctx context.Context, src, dst *SQLRepository, logger *slog.Logger) (CopyStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats CopyStats

	var lastID int64
	for {
		batch, err := src.queryArticles(ctx, src.selectArticles().
			Where(sq.Gt{"id": lastID}).
			OrderBy("id").
			Limit(copyBatch))
		if err != nil {
			return stats, fmt.Errorf("export articles: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, a := range batch {
			inserted, err := dst.importArticle(ctx, a)
			if err != nil {
				return stats, err
			}
			if inserted {
				stats.ArticlesCopied++
			} else {
				stats.ArticlesSkipped++
			}
			lastID = a.ID
		}
		logger.Info("articles batch copied", "last_id", lastID, "copied", stats.ArticlesCopied)
	}

	briefs, err := src.queryBriefs(ctx, src.sb.Select(briefColumns...).From("briefs").OrderBy("id"))
	if err != nil {
		return stats, fmt.Errorf("export briefs: %w", err)
	}
	for _, b := range briefs {
		inserted, err := dst.importBrief(ctx, b)
		if err != nil {
			return stats, err
		}
		if inserted {
			stats.BriefsCopied++
		} else {
			stats.BriefsSkipped++
		}
	}

	if err := dst.syncSequences(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *SQLRepository) importArticle(ctx context.Context, a domain.Article) (bool, error) {
	var embedding any
	if len(a.Embedding) > 0 {
		raw, err := json.Marshal(a.Embedding)
		if err != nil {
			return false, fmt.Errorf("encode embedding of article %d: %w", a.ID, err)
		}
		embedding = string(raw)
	}

	query, args, err := r.sb.Insert("articles").
		Columns(articleColumns...).
		Values(a.ID, a.URL, a.Title, a.PublishedAt.UTC(), a.Source, a.FetchedAt.UTC(), a.RawContent,
			deref(a.Summary), embedding, utcPtr(a.ProcessedAt), deref(a.ClusterID), deref(a.ImpactScore),
			deref(a.ImageURL), a.Profile).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build import article: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("import article %d: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("import article %d rows affected: %w", a.ID, err)
	}
	return n > 0, nil
}

func (r *SQLRepository) importBrief(ctx context.Context, b domain.Brief) (bool, error) {
	ids := b.ContributingArticleIDs
	if ids == nil {
		ids = []int64{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return false, fmt.Errorf("encode ids of brief %d: %w", b.ID, err)
	}

	query, args, err := r.sb.Insert("briefs").
		Columns(briefColumns...).
		Values(b.ID, b.GeneratedAt.UTC(), b.Markdown, string(raw), b.Profile).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build import brief: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("import brief %d: %w", b.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("import brief %d rows affected: %w", b.ID, err)
	}
	return n > 0, nil
}

func (r *SQLRepository) syncSequences(ctx context.Context) error {
	for _, stmt := range r.dialect.syncSequences {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sync %s sequences: %w", r.dialect.name, err)
		}
	}
	return nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func deref[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
