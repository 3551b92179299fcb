package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dinebot-sim/dinebot-sim/sim"
	"github.com/dinebot-sim/dinebot-sim/sim/trace"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is the stored summary of one simulation run.
type Run struct {
	ID          string              `json:"id"`
	Scenario    string              `json:"scenario"`
	Provider    string              `json:"provider"`
	Seed        int64               `json:"seed"`
	Ticks       int64               `json:"ticks"`
	Cancelled   bool                `json:"cancelled"`
	Truncated   bool                `json:"truncated"`
	Deliveries  int                 `json:"deliveries"`
	Successful  int                 `json:"successful"`
	SuccessRate float64             `json:"success_rate"`
	AvgTicks    float64             `json:"avg_ticks"`
	Summary     *trace.TraceSummary `json:"summary,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

const runSelectCols = `id, scenario, provider, seed, ticks, cancelled, truncated, deliveries, successful, success_rate, avg_ticks, summary_json, created_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var summary string
	var createdAt any
	err := row.Scan(&r.ID, &r.Scenario, &r.Provider, &r.Seed, &r.Ticks, &r.Cancelled, &r.Truncated,
		&r.Deliveries, &r.Successful, &r.SuccessRate, &r.AvgTicks, &summary, &createdAt)
	if err != nil {
		return nil, err
	}
	if summary != "" && summary != "{}" {
		r.Summary = &trace.TraceSummary{}
		if err := json.Unmarshal([]byte(summary), r.Summary); err != nil {
			return nil, fmt.Errorf("run %s summary: %w", r.ID, err)
		}
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

// SaveReport stores a run report in one transaction.
func (db *DB) SaveReport(ctx context.Context, rep *sim.Report) error {
	if rep == nil || rep.RunID == "" {
		return fmt.Errorf("save report: run id is required")
	}
	summary := []byte("{}")
	if rep.Summary != nil {
		var err error
		if summary, err = json.Marshal(rep.Summary); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
	}
	var successful int
	var successRate, avgTicks float64
	if rep.Metrics != nil {
		successful = rep.Metrics.Successful
		successRate = rep.Metrics.SuccessRate()
		avgTicks = rep.Metrics.AvgTicks()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, db.Q(`INSERT INTO runs (id, scenario, provider, seed, ticks, cancelled, truncated, deliveries, successful, success_rate, avg_ticks, summary_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rep.RunID, rep.Scenario, rep.Provider, rep.Seed, rep.Ticks, rep.Cancelled, rep.Truncated,
		len(rep.Deliveries), successful, successRate, avgTicks, string(summary))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rep.RunID, err)
	}

	for i, d := range rep.Deliveries {
		_, err = tx.ExecContext(ctx, db.Q(`INSERT INTO deliveries (run_id, seq, order_id, robot_id, table_id, success, ticks_elapsed, path_length, terminal_reason, start_tick, end_tick, replans, waits, decisions) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			rep.RunID, i, d.OrderID, d.RobotID, d.TableID, d.Success, d.TicksElapsed, d.PathLength,
			d.TerminalReason, d.StartTick, d.EndTick, d.Replans, d.Waits, d.Decisions)
		if err != nil {
			return fmt.Errorf("insert delivery %s: %w", d.OrderID, err)
		}
	}

	for _, rt := range rep.Trajectories {
		points, err := json.Marshal(nonNil(rt.Points))
		if err != nil {
			return err
		}
		transitions, err := json.Marshal(nonNil(rt.Transitions))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, db.Q(`INSERT INTO trajectories (run_id, robot_id, points_json, transitions_json) VALUES (?, ?, ?, ?)`),
			rep.RunID, rt.RobotID, string(points), string(transitions))
		if err != nil {
			return fmt.Errorf("insert trajectory %s: %w", rt.RobotID, err)
		}
	}
	return tx.Commit()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runSelectCols + ` FROM runs ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run summary, or ErrRunNotFound.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := db.QueryRowContext(ctx, db.Q(`SELECT `+runSelectCols+` FROM runs WHERE id=?`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// Deliveries returns a run's delivery records in completion order.
func (db *DB) Deliveries(ctx context.Context, runID string) ([]sim.DeliveryRecord, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT order_id, robot_id, table_id, success, ticks_elapsed, path_length, terminal_reason, start_tick, end_tick, replans, waits, decisions FROM deliveries WHERE run_id=? ORDER BY seq`), runID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	out := []sim.DeliveryRecord{}
	for rows.Next() {
		var d sim.DeliveryRecord
		if err := rows.Scan(&d.OrderID, &d.RobotID, &d.TableID, &d.Success, &d.TicksElapsed, &d.PathLength,
			&d.TerminalReason, &d.StartTick, &d.EndTick, &d.Replans, &d.Waits, &d.Decisions); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Trajectories returns a run's per-robot logs in robot-id order.
func (db *DB) Trajectories(ctx context.Context, runID string) ([]*trace.RobotTrace, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT robot_id, points_json, transitions_json FROM trajectories WHERE run_id=? ORDER BY robot_id`), runID)
	if err != nil {
		return nil, fmt.Errorf("list trajectories: %w", err)
	}
	defer rows.Close()
	out := []*trace.RobotTrace{}
	for rows.Next() {
		var rt trace.RobotTrace
		var points, transitions string
		if err := rows.Scan(&rt.RobotID, &points, &transitions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(points), &rt.Points); err != nil {
			return nil, fmt.Errorf("trajectory %s points: %w", rt.RobotID, err)
		}
		if err := json.Unmarshal([]byte(transitions), &rt.Transitions); err != nil {
			return nil, fmt.Errorf("trajectory %s transitions: %w", rt.RobotID, err)
		}
		out = append(out, &rt)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything stored with it.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM deliveries WHERE run_id=?`,
		`DELETE FROM trajectories WHERE run_id=?`,
	} {
		if _, err := tx.ExecContext(ctx, db.Q(q), id); err != nil {
			return fmt.Errorf("delete run %s: %w", id, err)
		}
	}
	res, err := tx.ExecContext(ctx, db.Q(`DELETE FROM runs WHERE id=?`), id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return tx.Commit()
}
