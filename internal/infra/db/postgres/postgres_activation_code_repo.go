package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"game-activation-ledger/internal/domain"
	"game-activation-ledger/internal/domain/model"
	"game-activation-ledger/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.ActivationCodeRepository = (*activationCodeRepo)(nil)

type activationCodeRepo struct {
	pool *pgxpool.Pool
}

func NewActivationCodeRepo(pool *pgxpool.Pool) repository.ActivationCodeRepository {
	return &activationCodeRepo{pool: pool}
}

const codeColumns = `id, code, game_id, status, user_id, activated_at, created_at, batch_tag`

func scanCode(row pgx.Row) (*model.ActivationCode, error) {
	var ac model.ActivationCode
	var status string
	if err := row.Scan(&ac.ID, &ac.Code, &ac.GameID, &status, &ac.UserID, &ac.ActivatedAt, &ac.CreatedAt, &ac.BatchTag); err != nil {
		return nil, err
	}
	ac.Status = model.CodeStatus(status)
	return &ac, nil
}

// Create reserves the code string in code_registry and inserts the code row in a
// single statement, so it is atomic even without an enclosing transaction.
func (r *activationCodeRepo) Create(ctx context.Context, tx repository.Tx, code *model.ActivationCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	const q = `
WITH reg AS (
  INSERT INTO code_registry (code, issued_at) VALUES ($2, $6) RETURNING code
)
INSERT INTO activation_codes (id, code, game_id, status, created_at, batch_tag)
SELECT $1, reg.code, $3, $4, $6, $5 FROM reg;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		code.ID, code.Code, code.GameID, string(model.CodeStatusUnused), code.BatchTag, code.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return domain.ErrGameNotFound
	}
	return fmt.Errorf("insert activation code: %w", err)
}

// FindByCode returns the code in any state. Inside a transaction the row is
// locked FOR UPDATE so concurrent redemptions of the same code serialize here.
func (r *activationCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.ActivationCode, error) {
	q := `SELECT ` + codeColumns + ` FROM activation_codes WHERE code = $1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	return r.findOne(ctx, tx, q, code)
}

func (r *activationCodeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ActivationCode, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + codeColumns + ` FROM activation_codes WHERE id = $1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	return r.findOne(ctx, tx, q, id)
}

func (r *activationCodeRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg interface{}) (*model.ActivationCode, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	ac, err := scanCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return ac, nil
}

// MarkActivated is a conditional update: it only matches an UNUSED row.
func (r *activationCodeRepo) MarkActivated(ctx context.Context, tx repository.Tx, id, userID string, at time.Time) error {
	const q = `
UPDATE activation_codes
   SET status = 'ACTIVATED', user_id = $2, activated_at = $3
 WHERE id = $1 AND status = 'UNUSED';
`
	tag, err := execSQL(ctx, r.pool, tx, q, id, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("activate code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCodeAlreadyUsed
	}
	return nil
}

func (r *activationCodeRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM activation_codes WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// selectorWhere renders the WHERE clause for a selector. IDs must already be valid UUIDs.
func selectorWhere(sel model.CodeSelector) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if sel.BatchTag != "" {
		args = append(args, sel.BatchTag)
		conds = append(conds, fmt.Sprintf("batch_tag = $%d", len(args)))
	}
	if len(sel.IDs) > 0 {
		args = append(args, sel.IDs)
		conds = append(conds, fmt.Sprintf("id = ANY($%d::uuid[])", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func (r *activationCodeRepo) CountSelected(ctx context.Context, tx repository.Tx, sel model.CodeSelector) (int, int, error) {
	if sel.Empty() {
		return 0, 0, domain.ErrInvalidArgument
	}
	where, args := selectorWhere(sel)
	q := `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'ACTIVATED') FROM activation_codes WHERE ` + where
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return 0, 0, err
	}
	var total, activated int
	if err := row.Scan(&total, &activated); err != nil {
		return 0, 0, fmt.Errorf("count selected codes: %w", err)
	}
	return total, activated, nil
}

func (r *activationCodeRepo) DeleteUnused(ctx context.Context, tx repository.Tx, sel model.CodeSelector) (int, error) {
	if sel.Empty() {
		return 0, domain.ErrInvalidArgument
	}
	where, args := selectorWhere(sel)
	q := `DELETE FROM activation_codes WHERE status = 'UNUSED' AND ` + where
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete unused codes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *activationCodeRepo) List(ctx context.Context, tx repository.Tx, f model.CodeFilter, p model.PageRequest) ([]*model.ActivationCode, int, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.GameID != "" {
		add("game_id = $%d", f.GameID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.BatchTag != "" {
		add("batch_tag = $%d", f.BatchTag)
	}
	if kw := strings.ToUpper(strings.TrimSpace(f.Keyword)); kw != "" {
		add(`code LIKE '%%' || $%d || '%%' ESCAPE '\'`, escapeLike(kw))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM activation_codes`+where, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count codes: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM activation_codes%s ORDER BY created_at DESC, code LIMIT $%d OFFSET $%d`,
		codeColumns, where, len(args)+1, len(args)+2)
	rows, err := queryRows(ctx, r.pool, tx, q, append(args, p.PageSize, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list codes: %w", err)
	}
	defer rows.Close()

	out := make([]*model.ActivationCode, 0, p.PageSize)
	for rows.Next() {
		ac, err := scanCode(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out = append(out, ac)
	}
	return out, total, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
