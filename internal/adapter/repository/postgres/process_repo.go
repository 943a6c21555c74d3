package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/usecase"
)

const (
	processColumns = `id, name, config, complete, successful, current_step, status, error, created_at, updated_at`
	fileColumns    = `id, process_id, name, type, encoding, data, created_at`
	stepColumns    = `id, process_id, number, handler, state, directions, action, started, finished`
)

// ProcessRepository implements usecase.ProcessRepository.
type ProcessRepository struct {
	db dbtx
}

func NewProcessRepository(pool Pool) *ProcessRepository {
	return &ProcessRepository{db: pool}
}

// Create inserts the process together with its files.
func (r *ProcessRepository) Create(ctx context.Context, tx usecase.Transaction, process *domain.Process) error {
	db := on(tx, r.db)

	config, err := json.Marshal(process.Config)
	if err != nil {
		return fmt.Errorf("%w: cannot encode config: %v", domain.ErrSystemError, err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO processes (`+processColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		process.ID, process.Name, config, process.Complete,
		boolToPg(process.Successful), intToPg(process.CurrentStep),
		string(process.Status), process.Error,
		timeToPgTimestamptz(process.CreatedAt), timeToPgTimestamptz(process.UpdatedAt),
	)
	if err != nil {
		return wrapDBError("create process", err)
	}

	for _, file := range process.Files {
		_, err := db.Exec(ctx, `
			INSERT INTO process_files (`+fileColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			file.ID, process.ID, file.Name, file.Type, string(file.Encoding), file.Data,
			timeToPgTimestamptz(file.CreatedAt),
		)
		if err != nil {
			return wrapDBError("create process file", err)
		}
	}

	return nil
}

// Update stores the mutable fields of a process.
func (r *ProcessRepository) Update(ctx context.Context, tx usecase.Transaction, process *domain.Process) error {
	config, err := json.Marshal(process.Config)
	if err != nil {
		return fmt.Errorf("%w: cannot encode config: %v", domain.ErrSystemError, err)
	}

	tag, err := on(tx, r.db).Exec(ctx, `
		UPDATE processes
		SET name = $2, config = $3, complete = $4, successful = $5, current_step = $6,
		    status = $7, error = $8, updated_at = $9
		WHERE id = $1`,
		process.ID, process.Name, config, process.Complete,
		boolToPg(process.Successful), intToPg(process.CurrentStep),
		string(process.Status), process.Error, timeToPgTimestamptz(process.UpdatedAt),
	)
	if err != nil {
		return wrapDBError("update process", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProcessNotFound
	}
	return nil
}

// GetByID loads a process and its files.
func (r *ProcessRepository) GetByID(ctx context.Context, id string) (*domain.Process, error) {
	row := r.db.QueryRow(ctx, `SELECT `+processColumns+` FROM processes WHERE id = $1`, id)
	process, err := scanProcess(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProcessNotFound
		}
		return nil, wrapDBError("get process", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+fileColumns+` FROM process_files WHERE process_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, wrapDBError("get process files", err)
	}
	defer rows.Close()

	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, wrapDBError("scan process file", err)
		}
		process.Files = append(process.Files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("get process files", err)
	}

	return process, nil
}

// List returns processes newest first, without files.
func (r *ProcessRepository) List(ctx context.Context, limit, offset int) ([]*domain.Process, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+processColumns+` FROM processes
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, wrapDBError("list processes", err)
	}
	defer rows.Close()

	processes := make([]*domain.Process, 0, limit)
	for rows.Next() {
		process, err := scanProcess(rows)
		if err != nil {
			return nil, wrapDBError("scan process", err)
		}
		processes = append(processes, process)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list processes", err)
	}
	return processes, nil
}

// CreateStep inserts a new step. Step numbers are unique per process.
func (r *ProcessRepository) CreateStep(ctx context.Context, tx usecase.Transaction, step *domain.ProcessStep) error {
	args, err := stepArgs(step)
	if err != nil {
		return err
	}

	_, err = on(tx, r.db).Exec(ctx, `
		INSERT INTO process_steps (`+stepColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: step %d of process %s already exists", domain.ErrBadState, step.Number, step.ProcessID)
		}
		return wrapDBError("create step", err)
	}
	return nil
}

// UpdateStep stores the directions, action and finish time of a step.
func (r *ProcessRepository) UpdateStep(ctx context.Context, tx usecase.Transaction, step *domain.ProcessStep) error {
	args, err := stepArgs(step)
	if err != nil {
		return err
	}

	tag, err := on(tx, r.db).Exec(ctx, `
		UPDATE process_steps
		SET id = $1, handler = $4, state = $5, directions = $6, action = $7, started = $8, finished = $9
		WHERE process_id = $2 AND number = $3`, args...)
	if err != nil {
		return wrapDBError("update step", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStepNotFound
	}
	return nil
}

func (r *ProcessRepository) GetStep(ctx context.Context, processID string, number int) (*domain.ProcessStep, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+stepColumns+` FROM process_steps
		WHERE process_id = $1 AND number = $2`, processID, number)

	var (
		step                      domain.ProcessStep
		num                       int32
		state, directions, action []byte
		started, finished         pgtype.Timestamptz
	)
	err := row.Scan(&step.ID, &step.ProcessID, &num, &step.Handler, &state, &directions, &action, &started, &finished)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStepNotFound
		}
		return nil, wrapDBError("get step", err)
	}

	step.Number = int(num)
	step.Started = started.Time
	step.Finished = pgToTime(finished)
	if err := unmarshalOptional(state, &step.State); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(directions, &step.Directions); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(action, &step.Action); err != nil {
		return nil, err
	}
	return &step, nil
}

func stepArgs(step *domain.ProcessStep) ([]any, error) {
	state, err := marshalOptional(step.State)
	if err != nil {
		return nil, err
	}
	directions, err := marshalOptional(step.Directions)
	if err != nil {
		return nil, err
	}
	action, err := marshalOptional(step.Action)
	if err != nil {
		return nil, err
	}
	finished := pgtype.Timestamptz{}
	if step.Finished != nil {
		finished = timeToPgTimestamptz(*step.Finished)
	}
	return []any{
		step.ID, step.ProcessID, int32(step.Number), step.Handler,
		state, directions, action,
		timeToPgTimestamptz(step.Started), finished,
	}, nil
}

func scanProcess(row pgx.Row) (*domain.Process, error) {
	var (
		p                    domain.Process
		config               []byte
		successful           pgtype.Bool
		currentStep          pgtype.Int4
		status               string
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&p.ID, &p.Name, &config, &p.Complete, &successful, &currentStep,
		&status, &p.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.Config = domain.ProcessConfig{}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &p.Config); err != nil {
			return nil, fmt.Errorf("%w: corrupted config of process %s: %v", domain.ErrDatabaseError, p.ID, err)
		}
	}
	if successful.Valid {
		p.Successful = &successful.Bool
	}
	if currentStep.Valid {
		n := int(currentStep.Int32)
		p.CurrentStep = &n
	}
	p.Status = domain.ProcessStatus(status)
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}

func scanFile(row pgx.Row) (*domain.ProcessFile, error) {
	var (
		f         domain.ProcessFile
		encoding  string
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&f.ID, &f.ProcessID, &f.Name, &f.Type, &encoding, &f.Data, &createdAt); err != nil {
		return nil, err
	}
	f.Encoding = domain.FileEncoding(encoding)
	f.CreatedAt = createdAt.Time
	return &f, nil
}

// marshalOptional encodes a JSONB value, keeping nil pointers as SQL NULL.
func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode %T: %v", domain.ErrSystemError, v, err)
	}
	return data, nil
}

func unmarshalOptional[T any](data []byte, out **T) error {
	if len(data) == 0 {
		*out = nil
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: corrupted %T: %v", domain.ErrDatabaseError, v, err)
	}
	*out = v
	return nil
}

func wrapDBError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrDatabaseError, op, err)
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func pgToTime(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func boolToPg(b *bool) pgtype.Bool {
	if b == nil {
		return pgtype.Bool{}
	}
	return pgtype.Bool{Bool: *b, Valid: true}
}

func intToPg(n *int) pgtype.Int4 {
	if n == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*n), Valid: true}
}
