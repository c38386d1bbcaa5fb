package retrieval

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/Abhay-404/Eternal-Memory/internal/tiers"
)

const dateLayout = "2006-01-02"

// maxQueryTerms caps the OR-terms sent to FTS5 for one lexical query.
const maxQueryTerms = 32

var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore keeps embeddings in summary_vectors and mirrors their text
// into the summary_vectors_fts FTS5 table. Both tables come from the
// storage migrations. Similarity search is a full scan.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// ContentHash returns the hash used to detect changed source text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Upsert writes records and replaces their lexical entries in one
// transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	updated := time.Now().UTC().Format(time.RFC3339)
	for _, r := range records {
		if r.ContentHash == "" {
			r.ContentHash = ContentHash(r.Text)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO summary_vectors (id, tier, date, source_text, embedding, content_hash, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				tier = excluded.tier,
				date = excluded.date,
				source_text = excluded.source_text,
				embedding = excluded.embedding,
				content_hash = excluded.content_hash,
				updated_at = excluded.updated_at`,
			r.ID, string(r.Tier), r.Date.Format(dateLayout), r.Text, encodeVector(r.Embedding), r.ContentHash, updated,
		); err != nil {
			return fmt.Errorf("upserting %s: %w", r.ID, err)
		}
		if err := replaceLexical(ctx, tx, r.ID, r.Text); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func replaceLexical(ctx context.Context, tx *sql.Tx, id, text string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM summary_vectors_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("clearing lexical entry %s: %w", id, err)
	}
	if text == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO summary_vectors_fts (id, source_text) VALUES (?, ?)`, id, text); err != nil {
		return fmt.Errorf("indexing %s: %w", id, err)
	}
	return nil
}

// Search scores every stored embedding against vector and returns the topK
// best, highest cosine similarity first. Only the winners are loaded in
// full.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	qNorm := l2(vector)
	if topK <= 0 || qNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM summary_vectors`)
	if err != nil {
		return nil, fmt.Errorf("scanning vectors: %w", err)
	}
	best := topScores{n: topK}
	var scratch []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		if scratch, err = decodeVector(scratch, blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decoding %s: %w", id, err)
		}
		best.offer(id, cosine(vector, qNorm, scratch))
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("scanning vectors: %w", err)
	}
	if len(best.items) == 0 {
		return nil, nil
	}

	ids := make([]string, len(best.items))
	for i, it := range best.items {
		ids[i] = it.id
	}
	records, err := s.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	out := make([]ScoredRecord, 0, len(records))
	for _, it := range best.items {
		if r, ok := byID[it.id]; ok {
			out = append(out, ScoredRecord{Record: r, Score: it.score})
		}
	}
	return out, nil
}

// LexicalSearch ranks records with FTS5 bm25(). The score is negated so
// that higher means more relevant.
func (s *SQLiteStore) LexicalSearch(ctx context.Context, query string, topK int) ([]ScoredRecord, error) {
	match := ftsQuery(query)
	if match == "" || topK <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.tier, v.date, v.source_text, v.content_hash, v.updated_at, -bm25(summary_vectors_fts) AS score
		FROM summary_vectors_fts
		JOIN summary_vectors v ON v.id = summary_vectors_fts.id
		WHERE summary_vectors_fts MATCH ?
		ORDER BY score DESC
		LIMIT ?`, match, topK)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var out []ScoredRecord
	for rows.Next() {
		var (
			r                   ScoredRecord
			tier, date, updated string
			score               float64
		)
		if err := rows.Scan(&r.ID, &tier, &date, &r.Text, &r.ContentHash, &updated, &score); err != nil {
			return nil, fmt.Errorf("scanning lexical row: %w", err)
		}
		if err := r.setMeta(tier, date, updated); err != nil {
			return nil, err
		}
		r.Score = float32(score)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into an FTS5 expression of quoted terms joined
// with OR. Quoting keeps punctuation and FTS operators in user input
// literal. Single-character and repeated terms are dropped.
func ftsQuery(q string) string {
	var terms []string
	for _, w := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		term := `"` + w + `"`
		if len([]rune(w)) < 2 || slices.Contains(terms, term) {
			continue
		}
		terms = append(terms, term)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

func (r *Record) setMeta(tier, date, updated string) error {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return fmt.Errorf("bad date on %s: %w", r.ID, err)
	}
	u, err := time.Parse(time.RFC3339, updated)
	if err != nil {
		return fmt.Errorf("bad updated_at on %s: %w", r.ID, err)
	}
	r.Tier, r.Date, r.UpdatedAt = tiers.Tier(tier), d, u
	return nil
}

// inList renders "(?,?,...)" and its arguments for ids.
func inList(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}

func (s *SQLiteStore) queryRecords(ctx context.Context, where string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tier, date, source_text, embedding, content_hash, updated_at
		FROM summary_vectors `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                   Record
			tier, date, updated string
			blob                []byte
		)
		if err := rows.Scan(&r.ID, &tier, &date, &r.Text, &blob, &r.ContentHash, &updated); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		if r.Embedding, err = decodeVector(nil, blob); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", r.ID, err)
		}
		if err := r.setMeta(tier, date, updated); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetByIDs returns the stored records among ids, in no particular order.
func (s *SQLiteStore) GetByIDs(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	list, args := inList(ids)
	return s.queryRecords(ctx, "WHERE id IN "+list, args...)
}

// ExportAll returns every record ordered by date, then ID.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]Record, error) {
	return s.queryRecords(ctx, "ORDER BY date, id")
}

// ContentHashes returns the stored hash for each of ids that is indexed.
func (s *SQLiteStore) ContentHashes(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	list, args := inList(ids)
	rows, err := s.db.QueryContext(ctx, `SELECT id, content_hash FROM summary_vectors WHERE id IN `+list, args...)
	if err != nil {
		return nil, fmt.Errorf("querying content hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scanning content hash: %w", err)
		}
		out[id] = hash
	}
	return out, rows.Err()
}

// Delete removes a record and its lexical entry. Deleting an unknown ID is
// an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM summary_vectors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	if err := replaceLexical(ctx, tx, id, ""); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summary_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return n, nil
}
