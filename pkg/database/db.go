package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"snapreview/internal/constants"
	"snapreview/internal/models"
	"snapreview/pkg/config"
	errs "snapreview/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
)

type DB struct {
	conn         *sql.DB
	stmts        map[string]*sql.Stmt
	readTimeout  time.Duration
	writeTimeout time.Duration

	subColsOnce sync.Once
	subCols     map[string]bool
	subColsErr  error
}

func New(databaseURL string) (*DB, error) {
	return open(databaseURL, nil)
}

// NewWithConfig creates a database connection with pool settings from config.
func NewWithConfig(databaseURL string, cfg *config.Config) (*DB, error) {
	return open(databaseURL, cfg)
}

func open(databaseURL string, cfg *config.Config) (*DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errs.NewDB("database.New", "database unavailable: DATABASE_URL is not set", nil)
	}

	conn, err := sql.Open("mysql", databaseURL)
	if err != nil {
		return nil, errs.NewDB("database.New", "failed to open connection", err)
	}

	if cfg != nil {
		conn.SetMaxOpenConns(cfg.DBMaxOpenConns)
		conn.SetMaxIdleConns(cfg.DBMaxIdleConns)
		conn.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Minute)
		conn.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Minute)
	} else {
		conn.SetMaxOpenConns(20)
		conn.SetMaxIdleConns(10)
		conn.SetConnMaxLifetime(10 * time.Minute)
		conn.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := conn.Ping(); err != nil {
		return nil, errs.NewDB("database.New", "database unreachable", err)
	}

	rt := constants.DBReadTimeoutDefault
	wt := constants.DBWriteTimeoutDefault
	if cfg != nil {
		if cfg.DBReadTimeout > 0 {
			rt = cfg.DBReadTimeout
		}
		if cfg.DBWriteTimeout > 0 {
			wt = cfg.DBWriteTimeout
		}
	}

	db := &DB{
		conn:         conn,
		stmts:        make(map[string]*sql.Stmt),
		readTimeout:  rt,
		writeTimeout: wt,
	}

	if err := db.prepareStatements(); err != nil {
		return nil, errs.NewDB("database.New", "failed to prepare statements", err)
	}

	return db, nil
}

// prepareStatements prepares frequently used SQL statements. Only the hot
// paths of the pipeline are worth preparing.
func (db *DB) prepareStatements() error {
	statements := map[string]string{
		"insertFeedback": `INSERT INTO business_feedbacks (business_id, feedback, language_code, created_at)
                           VALUES (?, ?, ?, NOW())`,
		"countFeedback": `SELECT COUNT(*) FROM business_feedbacks
                          WHERE business_id = ? AND language_code = ?`,
	}

	for name, query := range statements {
		stmt, err := db.conn.Prepare(query)
		if err != nil {
			return fmt.Errorf("prepare statement %s: %w", name, err)
		}
		db.stmts[name] = stmt
	}
	return nil
}

// Conn exposes the raw pool for transactions and integration tests.
func (db *DB) Conn() *sql.DB { return db.conn }

// Close closes database connection and prepared statements.
func (db *DB) Close() error {
	for _, stmt := range db.stmts {
		stmt.Close()
	}
	return db.conn.Close()
}

// withReadTimeout creates a context with the standard read timeout.
func (db *DB) withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.readTimeout)
}

// withWriteTimeout creates a context with the standard write timeout.
func (db *DB) withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, db.writeTimeout)
}

// --- Businesses ---

// subscriptionColumns probes information_schema once for optional
// subscription columns. Older deployments predate the subscription
// migration; the gate degrades gracefully when columns are absent.
func (db *DB) subscriptionColumns(ctx context.Context) (map[string]bool, error) {
	db.subColsOnce.Do(func() {
		query := `SELECT column_name FROM information_schema.columns
                  WHERE table_schema = DATABASE() AND table_name = 'businesses'
                  AND column_name IN ('subscription_status', 'qr_codes_enabled', 'subscription_expires_at', 'subscription_plan')`
		rows, err := db.conn.QueryContext(ctx, query)
		if err != nil {
			db.subColsErr = errs.NewDB("database.subscriptionColumns", "failed to probe subscription columns", err)
			return
		}
		defer rows.Close()
		cols := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				db.subColsErr = errs.NewDB("database.subscriptionColumns", "failed to scan column name", err)
				return
			}
			cols[strings.ToLower(name)] = true
		}
		db.subCols = cols
		db.subColsErr = rows.Err()
	})
	return db.subCols, db.subColsErr
}

// GetBusinessCtx loads one business including whichever subscription columns
// the schema has.
func (db *DB) GetBusinessCtx(ctx context.Context, businessID string) (*models.Business, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	cols, err := db.subscriptionColumns(rctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT b.id, b.name, b.business_type, b.tags, b.status, b.google_place_id, b.created_at`
	if cols["subscription_status"] {
		query += `, b.subscription_status`
	}
	if cols["subscription_plan"] {
		query += `, b.subscription_plan`
	}
	if cols["subscription_expires_at"] {
		query += `, b.subscription_expires_at`
	}
	if cols["qr_codes_enabled"] {
		query += `, b.qr_codes_enabled`
	}
	query += ` FROM businesses b WHERE b.id = ?`

	var b models.Business
	dest := []any{&b.ID, &b.Name, &b.BusinessType, &b.Tags, &b.Status, &b.GooglePlaceID, &b.CreatedAt}
	if cols["subscription_status"] {
		dest = append(dest, &b.SubscriptionStatus)
	}
	if cols["subscription_plan"] {
		dest = append(dest, &b.SubscriptionPlan)
	}
	if cols["subscription_expires_at"] {
		dest = append(dest, &b.SubscriptionExpiresAt)
	}
	if cols["qr_codes_enabled"] {
		dest = append(dest, &b.QRCodesEnabled)
	}

	err = db.conn.QueryRowContext(rctx, query, businessID).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.GetBusinessCtx", "failed to load business", err)
	}
	return &b, nil
}

// BusinessActiveCtx reports whether the business exists with status=active.
func (db *DB) BusinessActiveCtx(ctx context.Context, businessID string) (bool, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var id string
	err := db.conn.QueryRowContext(rctx,
		`SELECT id FROM businesses WHERE id = ? AND status = ?`, businessID, models.BusinessActive).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.NewDB("database.BusinessActiveCtx", "failed to check business", err)
	}
	return true, nil
}

// GetBusinessesWithLanguagePreferencesCtx returns the active-business x
// language-preference cross-product the batch generator iterates.
func (db *DB) GetBusinessesWithLanguagePreferencesCtx(ctx context.Context) ([]models.BusinessLanguage, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT b.id, b.name, b.business_type, b.tags, blp.language_code, blp.language_name
              FROM businesses b
              JOIN business_language_preferences blp ON b.id = blp.business_id
              WHERE b.status = ?
              ORDER BY b.name, blp.language_code`

	rows, err := db.conn.QueryContext(rctx, query, models.BusinessActive)
	if err != nil {
		return nil, errs.NewDB("database.GetBusinessesWithLanguagePreferencesCtx", "failed to query businesses", err)
	}
	defer rows.Close()

	var out []models.BusinessLanguage
	for rows.Next() {
		var bl models.BusinessLanguage
		if err := rows.Scan(&bl.BusinessID, &bl.BusinessName, &bl.BusinessType, &bl.Tags, &bl.LanguageCode, &bl.LanguageName); err != nil {
			return nil, errs.NewDB("database.GetBusinessesWithLanguagePreferencesCtx", "failed to scan row", err)
		}
		out = append(out, bl)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.GetBusinessesWithLanguagePreferencesCtx", "row iteration error", err)
	}
	return out, nil
}

// --- Stored feedback ---

// CountFeedbackCtx counts stored feedbacks for a (business, language) pair.
func (db *DB) CountFeedbackCtx(ctx context.Context, businessID, languageCode string) (int, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	var n int
	if err := db.stmts["countFeedback"].QueryRowContext(rctx, businessID, languageCode).Scan(&n); err != nil {
		return 0, errs.NewDB("database.CountFeedbackCtx", "failed to count feedback", err)
	}
	return n, nil
}

// GetRandomFeedbacksCtx returns up to limit random stored feedbacks,
// optionally filtered by language.
func (db *DB) GetRandomFeedbacksCtx(ctx context.Context, businessID, languageCode string, limit int) ([]models.Feedback, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT id, business_id, feedback, language_code, created_at
              FROM business_feedbacks WHERE business_id = ?`
	args := []any{businessID}
	if languageCode != "" {
		query += ` AND language_code = ?`
		args = append(args, languageCode)
	}
	query += ` ORDER BY RAND() LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(rctx, query, args...)
	if err != nil {
		return nil, errs.NewDB("database.GetRandomFeedbacksCtx", "failed to query feedbacks", err)
	}
	defer rows.Close()

	var out []models.Feedback
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.BusinessID, &f.Feedback, &f.LanguageCode, &f.CreatedAt); err != nil {
			return nil, errs.NewDB("database.GetRandomFeedbacksCtx", "failed to scan feedback row", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.GetRandomFeedbacksCtx", "row iteration error", err)
	}
	return out, nil
}

// InsertFeedbackCtx stores a single feedback and returns the created row.
func (db *DB) InsertFeedbackCtx(ctx context.Context, businessID, text, languageCode string) (*models.Feedback, error) {
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	res, err := db.stmts["insertFeedback"].ExecContext(wctx, businessID, text, languageCode)
	if err != nil {
		return nil, errs.NewDB("database.InsertFeedbackCtx", "failed to insert feedback", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.NewDB("database.InsertFeedbackCtx", "failed to read insert id", err)
	}
	return &models.Feedback{
		ID:           id,
		BusinessID:   businessID,
		Feedback:     text,
		LanguageCode: languageCode,
		CreatedAt:    time.Now(),
	}, nil
}

// InsertFeedbackBatchCtx persists a batch of generated feedbacks in one
// pass. Individual insert failures are skipped; the count of stored rows is
// returned so the batch service can report partial success.
func (db *DB) InsertFeedbackBatchCtx(ctx context.Context, businessID string, texts []string, languageCode string) (int, error) {
	stored := 0
	var lastErr error
	for _, text := range texts {
		wctx, cancel := db.withWriteTimeout(ctx)
		_, err := db.stmts["insertFeedback"].ExecContext(wctx, businessID, text, languageCode)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		stored++
	}
	if stored == 0 && lastErr != nil {
		return 0, errs.NewDB("database.InsertFeedbackBatchCtx", "all feedback inserts failed", lastErr)
	}
	return stored, nil
}

// DeleteFeedbackCtx removes one stored feedback owned by the business.
func (db *DB) DeleteFeedbackCtx(ctx context.Context, businessID string, feedbackID int64) (bool, error) {
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(wctx,
		`DELETE FROM business_feedbacks WHERE id = ? AND business_id = ?`, feedbackID, businessID)
	if err != nil {
		return false, errs.NewDB("database.DeleteFeedbackCtx", "failed to delete feedback", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.NewDB("database.DeleteFeedbackCtx", "failed to read rows affected", err)
	}
	return n > 0, nil
}

// DeleteFeedbackTx removes a consumed feedback inside the copy-tracking
// transaction.
func (db *DB) DeleteFeedbackTx(ctx context.Context, tx *sql.Tx, businessID string, feedbackID int64) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM business_feedbacks WHERE id = ? AND business_id = ?`, feedbackID, businessID)
	if err != nil {
		return errs.NewDB("database.DeleteFeedbackTx", "failed to delete consumed feedback", err)
	}
	return nil
}

// --- Language preferences ---

func (db *DB) GetLanguagePreferencesCtx(ctx context.Context, businessID string) ([]models.LanguagePreference, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(rctx,
		`SELECT business_id, language_code, language_name
         FROM business_language_preferences WHERE business_id = ? ORDER BY language_code`, businessID)
	if err != nil {
		return nil, errs.NewDB("database.GetLanguagePreferencesCtx", "failed to query preferences", err)
	}
	defer rows.Close()

	var out []models.LanguagePreference
	for rows.Next() {
		var p models.LanguagePreference
		if err := rows.Scan(&p.BusinessID, &p.LanguageCode, &p.LanguageName); err != nil {
			return nil, errs.NewDB("database.GetLanguagePreferencesCtx", "failed to scan preference row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.GetLanguagePreferencesCtx", "row iteration error", err)
	}
	return out, nil
}

// ReplaceLanguagePreferencesCtx swaps the preference set for a business in
// one transaction.
func (db *DB) ReplaceLanguagePreferencesCtx(ctx context.Context, businessID string, prefs []models.LanguagePreference) error {
	wctx, cancel := db.withWriteTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(wctx, nil)
	if err != nil {
		return errs.NewDB("database.ReplaceLanguagePreferencesCtx", "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(wctx,
		`DELETE FROM business_language_preferences WHERE business_id = ?`, businessID); err != nil {
		return errs.NewDB("database.ReplaceLanguagePreferencesCtx", "failed to clear preferences", err)
	}
	for _, p := range prefs {
		if _, err := tx.ExecContext(wctx,
			`INSERT INTO business_language_preferences (business_id, language_code, language_name) VALUES (?, ?, ?)`,
			businessID, p.LanguageCode, p.LanguageName); err != nil {
			return errs.NewDB("database.ReplaceLanguagePreferencesCtx", "failed to insert preference", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.NewDB("database.ReplaceLanguagePreferencesCtx", "failed to commit", err)
	}
	return nil
}

// --- Copy metrics ---

// UpsertCopyMetricTx inserts or increments the (business, language) copy
// counter and returns the new count. The unique key on
// (business_id, language_code) makes concurrent copies safe.
func (db *DB) UpsertCopyMetricTx(ctx context.Context, tx *sql.Tx, businessID, languageCode string) (int64, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO business_copy_metrics (business_id, language_code, copy_count, last_copy_timestamp, updated_at)
         VALUES (?, ?, 1, NOW(), NOW())
         ON DUPLICATE KEY UPDATE
           copy_count = copy_count + 1,
           last_copy_timestamp = NOW(),
           updated_at = NOW()`,
		businessID, languageCode)
	if err != nil {
		return 0, errs.NewDB("database.UpsertCopyMetricTx", "failed to upsert copy metric", err)
	}

	var count int64
	err = tx.QueryRowContext(ctx,
		`SELECT copy_count FROM business_copy_metrics WHERE business_id = ? AND language_code = ?`,
		businessID, languageCode).Scan(&count)
	if err != nil {
		return 0, errs.NewDB("database.UpsertCopyMetricTx", "failed to read updated count", err)
	}
	return count, nil
}

// GetCopyBreakdownTx reads the per-language copy totals inside the tracking
// transaction so the returned snapshot reflects the commit.
func (db *DB) GetCopyBreakdownTx(ctx context.Context, tx *sql.Tx, businessID string) (int64, map[string]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT language_code, copy_count FROM business_copy_metrics WHERE business_id = ?`, businessID)
	if err != nil {
		return 0, nil, errs.NewDB("database.GetCopyBreakdownTx", "failed to query copy metrics", err)
	}
	defer rows.Close()

	var total int64
	breakdown := make(map[string]int64)
	for rows.Next() {
		var code string
		var count int64
		if err := rows.Scan(&code, &count); err != nil {
			return 0, nil, errs.NewDB("database.GetCopyBreakdownTx", "failed to scan copy metric", err)
		}
		breakdown[code] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return 0, nil, errs.NewDB("database.GetCopyBreakdownTx", "row iteration error", err)
	}
	return total, breakdown, nil
}

// GetBusinessMetricsTx reads the aggregate row inside a transaction. Returns
// nil when the business has no metrics row yet.
func (db *DB) GetBusinessMetricsTx(ctx context.Context, tx *sql.Tx, businessID string) (*models.BusinessMetrics, error) {
	var m models.BusinessMetrics
	err := tx.QueryRowContext(ctx,
		`SELECT business_id, total_copy_count, total_qr_scans, total_reviews, average_rating, conversion_rate, last_updated
         FROM business_metrics WHERE business_id = ?`, businessID).
		Scan(&m.BusinessID, &m.TotalCopyCount, &m.TotalQRScans, &m.TotalReviews, &m.AverageRating, &m.ConversionRate, &m.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDB("database.GetBusinessMetricsTx", "failed to read business metrics", err)
	}
	return &m, nil
}

// IncrementScanTx lazily creates the aggregate row on first scan, otherwise
// increments the scan counter and recomputes the conversion rate.
func (db *DB) IncrementScanTx(ctx context.Context, tx *sql.Tx, businessID string) error {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT business_id FROM business_metrics WHERE business_id = ?`, businessID).Scan(&id)
	if err == sql.ErrNoRows {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO business_metrics (business_id, total_copy_count, total_qr_scans, total_reviews, average_rating, conversion_rate, last_updated)
             VALUES (?, 0, 1, 0, 0.0, 0.0, NOW())`, businessID)
		if err != nil {
			return errs.NewDB("database.IncrementScanTx", "failed to create metrics row", err)
		}
		return nil
	}
	if err != nil {
		return errs.NewDB("database.IncrementScanTx", "failed to check metrics row", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE business_metrics
         SET total_qr_scans = total_qr_scans + 1,
             last_updated = NOW(),
             conversion_rate = CASE
               WHEN total_qr_scans + 1 > 0 THEN (total_reviews / (total_qr_scans + 1)) * 100
               ELSE 0.0
             END
         WHERE business_id = ?`, businessID)
	if err != nil {
		return errs.NewDB("database.IncrementScanTx", "failed to increment scan count", err)
	}
	return nil
}

// EnsureMetricsRowTx creates the aggregate row if it does not exist yet, so
// that follow-up updates inside the same transaction always have a target.
func (db *DB) EnsureMetricsRowTx(ctx context.Context, tx *sql.Tx, businessID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO business_metrics (business_id, total_copy_count, total_qr_scans, total_reviews, average_rating, conversion_rate, last_updated)
         VALUES (?, 0, 0, 0, 0.0, 0.0, NOW())
         ON DUPLICATE KEY UPDATE business_id = business_id`, businessID)
	if err != nil {
		return errs.NewDB("database.EnsureMetricsRowTx", "failed to ensure metrics row", err)
	}
	return nil
}

// UpdateTotalCopyCountTx folds the per-language counters into the aggregate
// row after a copy is recorded.
func (db *DB) UpdateTotalCopyCountTx(ctx context.Context, tx *sql.Tx, businessID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE business_metrics
         SET total_copy_count = (SELECT COALESCE(SUM(copy_count), 0) FROM business_copy_metrics WHERE business_id = ?),
             last_updated = NOW()
         WHERE business_id = ?`, businessID, businessID)
	if err != nil {
		return errs.NewDB("database.UpdateTotalCopyCountTx", "failed to update total copy count", err)
	}
	return nil
}

// GetLanguageCopyStatsCtx returns the per-language breakdown for the
// analytics endpoint, joined with preference names.
func (db *DB) GetLanguageCopyStatsCtx(ctx context.Context, businessID string) ([]models.LanguageCopyStat, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT cm.language_code, COALESCE(blp.language_name, UPPER(cm.language_code)), cm.copy_count, cm.last_copy_timestamp
              FROM business_copy_metrics cm
              LEFT JOIN business_language_preferences blp
                ON cm.business_id = blp.business_id AND cm.language_code = blp.language_code
              WHERE cm.business_id = ?
              ORDER BY cm.copy_count DESC`

	rows, err := db.conn.QueryContext(rctx, query, businessID)
	if err != nil {
		return nil, errs.NewDB("database.GetLanguageCopyStatsCtx", "failed to query copy stats", err)
	}
	defer rows.Close()

	var out []models.LanguageCopyStat
	for rows.Next() {
		var s models.LanguageCopyStat
		if err := rows.Scan(&s.LanguageCode, &s.LanguageName, &s.CopyCount, &s.LastCopyTimestamp); err != nil {
			return nil, errs.NewDB("database.GetLanguageCopyStatsCtx", "failed to scan copy stat", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.GetLanguageCopyStatsCtx", "row iteration error", err)
	}
	return out, nil
}

// GetRecentCopyActivityCtx returns day-bucketed copy totals for the last N
// days.
func (db *DB) GetRecentCopyActivityCtx(ctx context.Context, businessID string, days int) ([]models.DailyCopyActivity, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	query := `SELECT DATE(last_copy_timestamp) AS day, SUM(copy_count) AS copies
              FROM business_copy_metrics
              WHERE business_id = ? AND last_copy_timestamp >= DATE_SUB(CURDATE(), INTERVAL ? DAY)
              GROUP BY DATE(last_copy_timestamp)
              ORDER BY day DESC
              LIMIT ?`

	rows, err := db.conn.QueryContext(rctx, query, businessID, days, days)
	if err != nil {
		return nil, errs.NewDB("database.GetRecentCopyActivityCtx", "failed to query recent activity", err)
	}
	defer rows.Close()

	var out []models.DailyCopyActivity
	for rows.Next() {
		var a models.DailyCopyActivity
		if err := rows.Scan(&a.Date, &a.Copies); err != nil {
			return nil, errs.NewDB("database.GetRecentCopyActivityCtx", "failed to scan activity row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("database.GetRecentCopyActivityCtx", "row iteration error", err)
	}
	return out, nil
}

// GetBusinessMetricsCtx is the non-transactional aggregate read used by the
// analytics endpoint.
func (db *DB) GetBusinessMetricsCtx(ctx context.Context, businessID string) (*models.BusinessMetrics, error) {
	rctx, cancel := db.withReadTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(rctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, errs.NewDB("database.GetBusinessMetricsCtx", "failed to begin read transaction", err)
	}
	defer tx.Rollback()
	return db.GetBusinessMetricsTx(rctx, tx, businessID)
}

// --- Reviews ---

// InsertReviewTx stores a submitted review inside the submission
// transaction and fills in the generated ID and timestamp.
func (db *DB) InsertReviewTx(ctx context.Context, tx *sql.Tx, r *models.Review) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO reviews (business_id, customer_name, customer_phone, rating, review_text, ip_address, user_agent, is_approved, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, TRUE, NOW())`,
		r.BusinessID, r.CustomerName, r.CustomerPhone, r.Rating, r.ReviewText, r.IPAddress, r.UserAgent)
	if err != nil {
		return errs.NewDB("database.InsertReviewTx", "failed to insert review", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errs.NewDB("database.InsertReviewTx", "failed to read insert id", err)
	}
	r.ID = id
	r.CreatedAt = time.Now()
	return nil
}

// RecalcReviewAggregatesTx recomputes review totals, average rating and
// conversion rate from approved reviews, inside the same transaction as the
// review insert.
func (db *DB) RecalcReviewAggregatesTx(ctx context.Context, tx *sql.Tx, businessID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE business_metrics
         SET total_reviews = (SELECT COUNT(*) FROM reviews WHERE business_id = ? AND is_approved = TRUE),
             average_rating = (SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE business_id = ? AND is_approved = TRUE),
             conversion_rate = CASE
               WHEN total_qr_scans > 0 THEN ((SELECT COUNT(*) FROM reviews WHERE business_id = ? AND is_approved = TRUE) / total_qr_scans) * 100
               ELSE 0.0
             END,
             last_updated = NOW()
         WHERE business_id = ?`,
		businessID, businessID, businessID, businessID)
	if err != nil {
		return errs.NewDB("database.RecalcReviewAggregatesTx", "failed to recompute review aggregates", err)
	}
	return nil
}
