package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/verdict/internal/logging"
	"github.com/ShayCichocki/verdict/pkg/models"
)

// Supported database/sql driver names.
const (
	// DriverModernc is the pure-Go driver.
	DriverModernc = "sqlite"
	// DriverMattn is the cgo driver.
	DriverMattn = "sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQL is a SQLite-backed store.
type SQL struct {
	db *sql.DB
}

// OpenSQL opens (creating if needed) the database at path, applies pragmas
// and migrations. driver is DriverModernc or DriverMattn; empty means modernc.
func OpenSQL(driver, path string) (*SQL, error) {
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers, which makes CreateIteration's
	// read-then-insert atomic.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.Component("store").Debug().Str("driver", driver).Str("path", path).Msg("sqlite store opened")
	return &SQL{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	stmts := []string{
		"PRAGMA foreign_keys=ON;",
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			if stmt == "PRAGMA journal_mode=WAL;" {
				logging.Component("store").Warn().Err(err).Msg("sqlite: WAL mode not enabled")
				continue
			}
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvaluation(ctx context.Context, x execer, e *models.Evaluation) error {
	idea, err := marshalJSON(e.RawIdea)
	if err != nil {
		return fmt.Errorf("encode idea: %w", err)
	}
	var responses sql.NullString
	if len(e.UserResponses) > 0 {
		s, err := marshalJSON(e.UserResponses)
		if err != nil {
			return fmt.Errorf("encode responses: %w", err)
		}
		responses = sql.NullString{String: s, Valid: true}
	}
	verdictJSON, decision, confidence, err := verdictColumns(e.Verdict)
	if err != nil {
		return err
	}

	_, err = x.ExecContext(ctx, `INSERT INTO evaluations(id, project_id, version, status, raw_idea, user_responses,
		verdict, decision, confidence, error, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.Version, string(e.Status), idea, responses,
		verdictJSON, decision, confidence, e.Error, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func verdictColumns(v *models.Verdict) (sql.NullString, sql.NullString, sql.NullInt64, error) {
	if v == nil {
		return sql.NullString{}, sql.NullString{}, sql.NullInt64{}, nil
	}
	s, err := marshalJSON(v)
	if err != nil {
		return sql.NullString{}, sql.NullString{}, sql.NullInt64{}, fmt.Errorf("encode verdict: %w", err)
	}
	return sql.NullString{String: s, Valid: true},
		sql.NullString{String: string(v.Decision), Valid: true},
		sql.NullInt64{Int64: int64(v.Confidence), Valid: true},
		nil
}

func (s *SQL) CreateProjectWithEvaluation(ctx context.Context, p *models.Project, e *models.Evaluation) error {
	e.ProjectID = p.ID
	if e.Version == 0 {
		e.Version = 1
	}
	p.LatestVersion = e.Version

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO projects(id, user_id, email, title, latest_version, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Email, p.Title, p.LatestVersion, formatTime(p.CreatedAt)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert project: %w", err)
	}
	if err := insertEvaluation(ctx, tx, e); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create project: %w", err)
	}
	return nil
}

const projectColumns = `id, user_id, email, title, latest_version, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (models.Project, error) {
	var p models.Project
	var created string
	if err := row.Scan(&p.ID, &p.UserID, &p.Email, &p.Title, &p.LatestVersion, &created); err != nil {
		return p, err
	}
	p.CreatedAt = parseTime(created)
	return p, nil
}

func (s *SQL) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *SQL) ListProjects(ctx context.Context, userID string) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const evaluationColumns = `id, project_id, version, status, raw_idea, user_responses, verdict, error, created_at, updated_at`

func scanEvaluation(row scanner) (models.Evaluation, error) {
	var (
		e                  models.Evaluation
		status, idea       string
		responses, verdict sql.NullString
		created, updated   string
	)
	if err := row.Scan(&e.ID, &e.ProjectID, &e.Version, &status, &idea, &responses, &verdict, &e.Error, &created, &updated); err != nil {
		return e, err
	}
	e.Status = models.EvaluationStatus(status)
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(idea), &e.RawIdea); err != nil {
		return e, fmt.Errorf("decode idea: %w", err)
	}
	if responses.Valid {
		if err := json.Unmarshal([]byte(responses.String), &e.UserResponses); err != nil {
			return e, fmt.Errorf("decode responses: %w", err)
		}
	}
	if verdict.Valid {
		e.Verdict = &models.Verdict{}
		if err := json.Unmarshal([]byte(verdict.String), e.Verdict); err != nil {
			return e, fmt.Errorf("decode verdict: %w", err)
		}
	}
	return e, nil
}

func (s *SQL) GetProjectHistory(ctx context.Context, projectID string) ([]models.Evaluation, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations
		WHERE project_id = ? ORDER BY version ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("project history: %w", err)
	}
	defer rows.Close()

	out := []models.Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQL) GetStats(ctx context.Context) (models.Stats, error) {
	stats := newStats()
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&stats.Projects); err != nil {
		return stats, fmt.Errorf("count projects: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM evaluations GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("count by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByStatus[models.EvaluationStatus(status)] = n
		stats.Evaluations += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT decision, COUNT(*) FROM evaluations
		WHERE status = ? AND decision IS NOT NULL GROUP BY decision`, string(models.EvaluationCompleted))
	if err != nil {
		return stats, fmt.Errorf("count by decision: %w", err)
	}
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByDecision[models.Decision(decision)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(confidence) FROM evaluations
		WHERE status = ? AND confidence IS NOT NULL`, string(models.EvaluationCompleted)).Scan(&avg); err != nil {
		return stats, fmt.Errorf("average confidence: %w", err)
	}
	stats.AverageConfidence = avg.Float64
	return stats, nil
}

func (s *SQL) GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error) {
	e, err := scanEvaluation(s.db.QueryRowContext(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	return &e, nil
}

func (s *SQL) UpdateEvaluation(ctx context.Context, e *models.Evaluation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update evaluation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var cur string
	err = tx.QueryRowContext(ctx, `SELECT status FROM evaluations WHERE id = ?`, e.ID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read evaluation status: %w", err)
	}
	if err := checkTransition(models.EvaluationStatus(cur), e.Status); err != nil {
		return err
	}

	verdictJSON, decision, confidence, err := verdictColumns(e.Verdict)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE evaluations
		SET status = ?, verdict = ?, decision = ?, confidence = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(e.Status), verdictJSON, decision, confidence, e.Error, formatTime(e.UpdatedAt), e.ID); err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update evaluation: %w", err)
	}
	return nil
}

func (s *SQL) CreateIteration(ctx context.Context, e *models.Evaluation, maxVersions int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create iteration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest int
	err = tx.QueryRowContext(ctx, `SELECT latest_version FROM projects WHERE id = ?`, e.ProjectID).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read latest version: %w", err)
	}
	if maxVersions > 0 && latest >= maxVersions {
		return ErrVersionLimit
	}

	res, err := tx.ExecContext(ctx, `UPDATE projects SET latest_version = ? WHERE id = ? AND latest_version = ?`,
		latest+1, e.ProjectID, latest)
	if err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("bump version: concurrent iteration on project %s", e.ProjectID)
	}

	e.Version = latest + 1
	if err := insertEvaluation(ctx, tx, e); err != nil {
		e.Version = 0
		return err
	}
	if err := tx.Commit(); err != nil {
		e.Version = 0
		return fmt.Errorf("commit create iteration: %w", err)
	}
	return nil
}

// groundworkOutputs is the JSON shape of the per-agent outputs column.
type groundworkOutputs struct {
	CompetitorIntelligence *models.AgentOutput `json:"competitor_intelligence,omitempty"`
	MarketSizing           *models.AgentOutput `json:"market_sizing,omitempty"`
	GapAnalysis            *models.AgentOutput `json:"gap_analysis,omitempty"`
	CustomerPersonas       *models.AgentOutput `json:"customer_personas,omitempty"`
	GTMPlaybook            *models.AgentOutput `json:"gtm_playbook,omitempty"`
	MVPScope               *models.AgentOutput `json:"mvp_scope,omitempty"`
}

func groundworkColumns(g *models.GroundworkResult) (outputs, metrics string, completed sql.NullString, err error) {
	outputs, err = marshalJSON(groundworkOutputs{
		CompetitorIntelligence: g.CompetitorIntelligence,
		MarketSizing:           g.MarketSizing,
		GapAnalysis:            g.GapAnalysis,
		CustomerPersonas:       g.CustomerPersonas,
		GTMPlaybook:            g.GTMPlaybook,
		MVPScope:               g.MVPScope,
	})
	if err != nil {
		return "", "", completed, fmt.Errorf("encode groundwork outputs: %w", err)
	}
	metrics, err = marshalJSON(g.Metrics)
	if err != nil {
		return "", "", completed, fmt.Errorf("encode groundwork metrics: %w", err)
	}
	if g.CompletedAt != nil {
		completed = sql.NullString{String: formatTime(*g.CompletedAt), Valid: true}
	}
	return outputs, metrics, completed, nil
}

func (s *SQL) CreateGroundwork(ctx context.Context, g *models.GroundworkResult) error {
	outputs, metrics, completed, err := groundworkColumns(g)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO groundwork(id, evaluation_id, status, outputs, metrics, error, created_at, completed_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.EvaluationID, string(g.Status), outputs, metrics, g.Error, formatTime(g.CreatedAt), completed)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return ErrNotFound
		}
		return fmt.Errorf("insert groundwork: %w", err)
	}
	return nil
}

func (s *SQL) UpdateGroundwork(ctx context.Context, g *models.GroundworkResult) error {
	outputs, metrics, completed, err := groundworkColumns(g)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE groundwork
		SET status = ?, outputs = ?, metrics = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		string(g.Status), outputs, metrics, g.Error, completed, g.ID)
	if err != nil {
		return fmt.Errorf("update groundwork: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) GetGroundworkByEvaluation(ctx context.Context, evaluationID string) (*models.GroundworkResult, error) {
	var (
		g                        models.GroundworkResult
		status, outputs, metrics string
		created                  string
		completed                sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, evaluation_id, status, outputs, metrics, error, created_at, completed_at
		FROM groundwork WHERE evaluation_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, evaluationID).
		Scan(&g.ID, &g.EvaluationID, &status, &outputs, &metrics, &g.Error, &created, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get groundwork: %w", err)
	}

	g.Status = models.GroundworkStatus(status)
	g.CreatedAt = parseTime(created)
	if completed.Valid {
		t := parseTime(completed.String)
		g.CompletedAt = &t
	}

	var out groundworkOutputs
	if err := json.Unmarshal([]byte(outputs), &out); err != nil {
		return nil, fmt.Errorf("decode groundwork outputs: %w", err)
	}
	g.CompetitorIntelligence = out.CompetitorIntelligence
	g.MarketSizing = out.MarketSizing
	g.GapAnalysis = out.GapAnalysis
	g.CustomerPersonas = out.CustomerPersonas
	g.GTMPlaybook = out.GTMPlaybook
	g.MVPScope = out.MVPScope
	if err := json.Unmarshal([]byte(metrics), &g.Metrics); err != nil {
		return nil, fmt.Errorf("decode groundwork metrics: %w", err)
	}
	return &g, nil
}
