package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/usecase"
)

const (
	processColumns = `id, name, config, complete, successful, current_step, status, error, created_at, updated_at`
	fileColumns    = `id, process_id, name, type, encoding, data, created_at`
	stepColumns    = `id, process_id, number, handler, state, directions, action, started, finished`
)

// ProcessRepository implements usecase.ProcessRepository on top of a Store.
type ProcessRepository struct {
	store *Store
}

func NewProcessRepository(store *Store) *ProcessRepository {
	return &ProcessRepository{store: store}
}

var _ usecase.ProcessRepository = (*ProcessRepository)(nil)

func (r *ProcessRepository) Create(ctx context.Context, tx usecase.Transaction, process *domain.Process) error {
	db := r.store.execer(tx)
	config, err := json.Marshal(process.Config)
	if err != nil {
		return fmt.Errorf("%w: cannot encode config: %v", domain.ErrSystemError, err)
	}

	_, err = db.ExecContext(ctx, `INSERT INTO processes (`+processColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		process.ID, process.Name, string(config), process.Complete, nullBool(process.Successful),
		nullInt(process.CurrentStep), string(process.Status), process.Error,
		formatTime(process.CreatedAt), formatTime(process.UpdatedAt))
	if err != nil {
		return dbError("create process", err)
	}

	for _, f := range process.Files {
		_, err := db.ExecContext(ctx, `INSERT INTO process_files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ID, process.ID, f.Name, f.Type, string(f.Encoding), f.Data, formatTime(f.CreatedAt))
		if err != nil {
			return dbError("create process file", err)
		}
	}
	return nil
}

func (r *ProcessRepository) Update(ctx context.Context, tx usecase.Transaction, process *domain.Process) error {
	config, err := json.Marshal(process.Config)
	if err != nil {
		return fmt.Errorf("%w: cannot encode config: %v", domain.ErrSystemError, err)
	}

	res, err := r.store.execer(tx).ExecContext(ctx, `
		UPDATE processes SET name = ?, config = ?, complete = ?, successful = ?, current_step = ?,
			status = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		process.Name, string(config), process.Complete, nullBool(process.Successful),
		nullInt(process.CurrentStep), string(process.Status), process.Error,
		formatTime(process.UpdatedAt), process.ID)
	if err != nil {
		return dbError("update process", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProcessNotFound
	}
	return nil
}

func (r *ProcessRepository) GetByID(ctx context.Context, id string) (*domain.Process, error) {
	row := r.store.db.QueryRowContext(ctx, `SELECT `+processColumns+` FROM processes WHERE id = ?`, id)
	p, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProcessNotFound
	}
	if err != nil {
		return nil, dbError("get process", err)
	}

	rows, err := r.store.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM process_files WHERE process_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, dbError("get process files", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f domain.ProcessFile
		var encoding, created string
		if err := rows.Scan(&f.ID, &f.ProcessID, &f.Name, &f.Type, &encoding, &f.Data, &created); err != nil {
			return nil, dbError("scan process file", err)
		}
		f.Encoding = domain.FileEncoding(encoding)
		f.CreatedAt = parseTime(created)
		p.Files = append(p.Files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("get process files", err)
	}
	return p, nil
}

func (r *ProcessRepository) List(ctx context.Context, limit, offset int) ([]*domain.Process, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+processColumns+` FROM processes
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, dbError("list processes", err)
	}
	defer rows.Close()

	out := []*domain.Process{}
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, dbError("scan process", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list processes", err)
	}
	return out, nil
}

func (r *ProcessRepository) CreateStep(ctx context.Context, tx usecase.Transaction, step *domain.ProcessStep) error {
	args, err := stepArgs(step)
	if err != nil {
		return err
	}
	_, err = r.store.execer(tx).ExecContext(ctx,
		`INSERT INTO process_steps (`+stepColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return dbError("create step", err)
	}
	return nil
}

func (r *ProcessRepository) UpdateStep(ctx context.Context, tx usecase.Transaction, step *domain.ProcessStep) error {
	args, err := stepArgs(step)
	if err != nil {
		return err
	}
	// Reorder to put the key columns last.
	res, err := r.store.execer(tx).ExecContext(ctx, `
		UPDATE process_steps SET id = ?, handler = ?, state = ?, directions = ?, action = ?, started = ?, finished = ?
		WHERE process_id = ? AND number = ?`,
		args[0], args[3], args[4], args[5], args[6], args[7], args[8], args[1], args[2])
	if err != nil {
		return dbError("update step", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrStepNotFound
	}
	return nil
}

func (r *ProcessRepository) GetStep(ctx context.Context, processID string, number int) (*domain.ProcessStep, error) {
	var (
		step               domain.ProcessStep
		state, started     string
		directions, action sql.NullString
		finished           sql.NullString
	)
	err := r.store.db.QueryRowContext(ctx, `
		SELECT `+stepColumns+` FROM process_steps WHERE process_id = ? AND number = ?`, processID, number).
		Scan(&step.ID, &step.ProcessID, &step.Number, &step.Handler, &state, &directions, &action, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStepNotFound
	}
	if err != nil {
		return nil, dbError("get step", err)
	}

	step.Started = parseTime(started)
	if finished.Valid {
		t := parseTime(finished.String)
		step.Finished = &t
	}
	if err := json.Unmarshal([]byte(state), &step.State); err != nil {
		return nil, fmt.Errorf("%w: corrupted state: %v", domain.ErrDatabaseError, err)
	}
	if directions.Valid {
		if err := json.Unmarshal([]byte(directions.String), &step.Directions); err != nil {
			return nil, fmt.Errorf("%w: corrupted directions: %v", domain.ErrDatabaseError, err)
		}
	}
	if action.Valid {
		if err := json.Unmarshal([]byte(action.String), &step.Action); err != nil {
			return nil, fmt.Errorf("%w: corrupted action: %v", domain.ErrDatabaseError, err)
		}
	}
	return &step, nil
}

func stepArgs(step *domain.ProcessStep) ([]any, error) {
	state, err := json.Marshal(step.State)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode state: %v", domain.ErrSystemError, err)
	}
	directions, err := jsonOrNull(step.Directions)
	if err != nil {
		return nil, err
	}
	action, err := jsonOrNull(step.Action)
	if err != nil {
		return nil, err
	}
	var finished sql.NullString
	if step.Finished != nil {
		finished = sql.NullString{String: formatTime(*step.Finished), Valid: true}
	}
	return []any{step.ID, step.ProcessID, step.Number, step.Handler, string(state), directions, action,
		formatTime(step.Started), finished}, nil
}

func jsonOrNull(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case *domain.Directions:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *domain.ImportAction:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: cannot encode %T: %v", domain.ErrSystemError, v, err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProcess(row scanner) (*domain.Process, error) {
	var (
		p                    domain.Process
		config, status       string
		successful           sql.NullBool
		currentStep          sql.NullInt64
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.Name, &config, &p.Complete, &successful, &currentStep, &status, &p.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Config = domain.ProcessConfig{}
	if err := json.Unmarshal([]byte(config), &p.Config); err != nil {
		return nil, fmt.Errorf("%w: corrupted config of process %s: %v", domain.ErrDatabaseError, p.ID, err)
	}
	if successful.Valid {
		p.Successful = &successful.Bool
	}
	if currentStep.Valid {
		n := int(currentStep.Int64)
		p.CurrentStep = &n
	}
	p.Status = domain.ProcessStatus(status)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func dbError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrDatabaseError, op, err)
}
