package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevinvdv/reviewflow/model"
)

// PgTaskStore is a PostgreSQL-backed TaskStore using pgx/v5.
type PgTaskStore struct {
	pool *pgxpool.Pool
}

// NewPgTaskStore creates a new PostgreSQL task store.
func NewPgTaskStore(pool *pgxpool.Pool) *PgTaskStore {
	return &PgTaskStore{pool: pool}
}

// EnsureSchema creates the task tables if they do not exist yet.
func (s *PgTaskStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_items (
			id            TEXT PRIMARY KEY,
			submission_id TEXT NOT NULL,
			workflow_type TEXT NOT NULL,
			tenant_id     TEXT NOT NULL,
			submitter_id  TEXT NOT NULL,
			collection_id TEXT NOT NULL DEFAULT '',
			current_step  TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL,
			version       INTEGER NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS workflow_items_submission_idx
			ON workflow_items (tenant_id, submission_id) WHERE status = 'active';

		CREATE TABLE IF NOT EXISTS pool_tasks (
			id           TEXT PRIMARY KEY,
			item_id      TEXT NOT NULL REFERENCES workflow_items (id),
			step_id      TEXT NOT NULL,
			principal_id TEXT NOT NULL DEFAULT '',
			group_id     TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS pool_tasks_item_step_idx ON pool_tasks (item_id, step_id);
		CREATE INDEX IF NOT EXISTS pool_tasks_principal_idx ON pool_tasks (principal_id);

		CREATE TABLE IF NOT EXISTS claimed_tasks (
			id           TEXT PRIMARY KEY,
			item_id      TEXT NOT NULL REFERENCES workflow_items (id),
			step_id      TEXT NOT NULL,
			principal_id TEXT NOT NULL,
			claimed_at   TIMESTAMPTZ NOT NULL,
			UNIQUE (item_id, principal_id)
		);
		CREATE INDEX IF NOT EXISTS claimed_tasks_item_step_idx ON claimed_tasks (item_id, step_id);

		CREATE TABLE IF NOT EXISTS requirement_records (
			item_id      TEXT NOT NULL REFERENCES workflow_items (id),
			step_id      TEXT NOT NULL,
			principal_id TEXT NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (item_id, step_id, principal_id)
		);

		CREATE TABLE IF NOT EXISTS step_rosters (
			item_id      TEXT NOT NULL REFERENCES workflow_items (id),
			step_id      TEXT NOT NULL,
			principal_id TEXT NOT NULL,
			group_id     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (item_id, step_id, principal_id)
		);

		CREATE TABLE IF NOT EXISTS workflow_events (
			id         TEXT PRIMARY KEY,
			item_id    TEXT NOT NULL REFERENCES workflow_items (id),
			step_id    TEXT NOT NULL DEFAULT '',
			event      TEXT NOT NULL,
			actor_id   TEXT NOT NULL,
			comment    TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS workflow_events_item_idx ON workflow_events (item_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure task schema: %w", err)
	}
	return nil
}

// HealthCheck reports whether the database is reachable.
func (s *PgTaskStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const itemColumns = `id, submission_id, workflow_type, tenant_id, submitter_id,
	collection_id, current_step, status, version, created_at, updated_at`

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetItem retrieves a workflow item by ID, scoped to a tenant.
func (s *PgTaskStore) GetItem(ctx context.Context, tenantID, itemID string) (model.WorkflowItem, error) {
	return getItem(ctx, s.pool, tenantID, itemID, false)
}

func getItem(ctx context.Context, q querier, tenantID, itemID string, forUpdate bool) (model.WorkflowItem, error) {
	sql := `
		SELECT ` + itemColumns + `
		FROM workflow_items
		WHERE id = $1 AND tenant_id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var item model.WorkflowItem
	err := q.QueryRow(ctx, sql, itemID, tenantID).Scan(
		&item.ID, &item.SubmissionID, &item.WorkflowType, &item.TenantID, &item.SubmitterID,
		&item.CollectionID, &item.CurrentStep, &item.Status, &item.Version,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkflowItem{}, model.NewNotFoundError(
			fmt.Sprintf("workflow item %q not found", itemID),
		)
	}
	if err != nil {
		return model.WorkflowItem{}, fmt.Errorf("query workflow item: %w", err)
	}
	return item, nil
}

// HasActiveItemForSubmission reports whether an active item exists for the
// submission.
func (s *PgTaskStore) HasActiveItemForSubmission(ctx context.Context, tenantID, submissionID string) (bool, error) {
	return hasActiveItem(ctx, s.pool, tenantID, submissionID)
}

func hasActiveItem(ctx context.Context, q querier, tenantID, submissionID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM workflow_items
			WHERE tenant_id = $1 AND submission_id = $2 AND status = 'active'
		)`,
		tenantID, submissionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query active item: %w", err)
	}
	return exists, nil
}

// PoolTasks returns the pool tasks for one (item, step).
func (s *PgTaskStore) PoolTasks(ctx context.Context, itemID, stepID string) ([]model.PoolTask, error) {
	return queryPoolTasks(ctx, s.pool, `
		SELECT id, item_id, step_id, principal_id, group_id, created_at
		FROM pool_tasks
		WHERE item_id = $1 AND step_id = $2
		ORDER BY principal_id`,
		itemID, stepID)
}

// PooledTasksFor returns pool tasks across items naming the principal
// directly or via one of their groups.
func (s *PgTaskStore) PooledTasksFor(ctx context.Context, tenantID, principalID string, groups []string) ([]model.PoolTask, error) {
	if groups == nil {
		groups = []string{}
	}
	return queryPoolTasks(ctx, s.pool, `
		SELECT p.id, p.item_id, p.step_id, p.principal_id, p.group_id, p.created_at
		FROM pool_tasks p
		JOIN workflow_items i ON i.id = p.item_id
		WHERE i.tenant_id = $1
		  AND (p.principal_id = $2 OR (p.group_id <> '' AND p.group_id = ANY($3)))
		ORDER BY p.item_id, p.principal_id`,
		tenantID, principalID, groups)
}

func queryPoolTasks(ctx context.Context, q querier, sql string, args ...any) ([]model.PoolTask, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query pool tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.PoolTask
	for rows.Next() {
		var t model.PoolTask
		if err := rows.Scan(&t.ID, &t.ItemID, &t.StepID, &t.PrincipalID, &t.GroupID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pool task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// StepClaims returns the claimed tasks for one (item, step).
func (s *PgTaskStore) StepClaims(ctx context.Context, itemID, stepID string) ([]model.ClaimedTask, error) {
	return queryClaims(ctx, s.pool, `
		SELECT id, item_id, step_id, principal_id, claimed_at
		FROM claimed_tasks
		WHERE item_id = $1 AND step_id = $2
		ORDER BY claimed_at`,
		itemID, stepID)
}

// StepTasks returns the pool tasks and claims for one (item, step) out of a
// repeatable-read transaction, so both lists reflect the same snapshot.
func (s *PgTaskStore) StepTasks(ctx context.Context, itemID, stepID string) ([]model.PoolTask, []model.ClaimedTask, error) {
	dbTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	pool, err := queryPoolTasks(ctx, dbTx, `
		SELECT id, item_id, step_id, principal_id, group_id, created_at
		FROM pool_tasks
		WHERE item_id = $1 AND step_id = $2
		ORDER BY principal_id`,
		itemID, stepID)
	if err != nil {
		return nil, nil, err
	}
	claims, err := queryClaims(ctx, dbTx, `
		SELECT id, item_id, step_id, principal_id, claimed_at
		FROM claimed_tasks
		WHERE item_id = $1 AND step_id = $2
		ORDER BY claimed_at`,
		itemID, stepID)
	if err != nil {
		return nil, nil, err
	}
	return pool, claims, dbTx.Commit(ctx)
}

// ClaimFor returns the principal's claim on the item, if any.
func (s *PgTaskStore) ClaimFor(ctx context.Context, itemID, principalID string) (model.ClaimedTask, bool, error) {
	return claimFor(ctx, s.pool, itemID, principalID)
}

func claimFor(ctx context.Context, q querier, itemID, principalID string) (model.ClaimedTask, bool, error) {
	var c model.ClaimedTask
	err := q.QueryRow(ctx, `
		SELECT id, item_id, step_id, principal_id, claimed_at
		FROM claimed_tasks
		WHERE item_id = $1 AND principal_id = $2`,
		itemID, principalID,
	).Scan(&c.ID, &c.ItemID, &c.StepID, &c.PrincipalID, &c.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ClaimedTask{}, false, nil
	}
	if err != nil {
		return model.ClaimedTask{}, false, fmt.Errorf("query claim: %w", err)
	}
	return c, true, nil
}

// ClaimedTasksFor returns all claims held by the principal.
func (s *PgTaskStore) ClaimedTasksFor(ctx context.Context, tenantID, principalID string) ([]model.ClaimedTask, error) {
	return queryClaims(ctx, s.pool, `
		SELECT c.id, c.item_id, c.step_id, c.principal_id, c.claimed_at
		FROM claimed_tasks c
		JOIN workflow_items i ON i.id = c.item_id
		WHERE i.tenant_id = $1 AND c.principal_id = $2
		ORDER BY c.claimed_at`,
		tenantID, principalID)
}

func queryClaims(ctx context.Context, q querier, sql string, args ...any) ([]model.ClaimedTask, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query claimed tasks: %w", err)
	}
	defer rows.Close()

	var claims []model.ClaimedTask
	for rows.Next() {
		var c model.ClaimedTask
		if err := rows.Scan(&c.ID, &c.ItemID, &c.StepID, &c.PrincipalID, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claimed task: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// Requirements returns completion records for one (item, step).
func (s *PgTaskStore) Requirements(ctx context.Context, itemID, stepID string) ([]model.RequirementRecord, error) {
	return queryRequirements(ctx, s.pool, itemID, stepID)
}

func queryRequirements(ctx context.Context, q querier, itemID, stepID string) ([]model.RequirementRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT item_id, step_id, principal_id, completed_at
		FROM requirement_records
		WHERE item_id = $1 AND step_id = $2`,
		itemID, stepID)
	if err != nil {
		return nil, fmt.Errorf("query requirement records: %w", err)
	}
	defer rows.Close()

	var recs []model.RequirementRecord
	for rows.Next() {
		var r model.RequirementRecord
		if err := rows.Scan(&r.ItemID, &r.StepID, &r.PrincipalID, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan requirement record: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Roster returns the eligibility snapshot for one (item, step).
func (s *PgTaskStore) Roster(ctx context.Context, itemID, stepID string) ([]model.RosterEntry, error) {
	return queryRoster(ctx, s.pool, itemID, stepID)
}

func queryRoster(ctx context.Context, q querier, itemID, stepID string) ([]model.RosterEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT item_id, step_id, principal_id, group_id
		FROM step_rosters
		WHERE item_id = $1 AND step_id = $2
		ORDER BY principal_id`,
		itemID, stepID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	var entries []model.RosterEntry
	for rows.Next() {
		var e model.RosterEntry
		if err := rows.Scan(&e.ItemID, &e.StepID, &e.PrincipalID, &e.GroupID); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Events returns the item's audit trail ordered by timestamp.
func (s *PgTaskStore) Events(ctx context.Context, itemID string) ([]model.WorkflowEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, item_id, step_id, event, actor_id, comment, created_at
		FROM workflow_events
		WHERE item_id = $1
		ORDER BY created_at ASC`,
		itemID)
	if err != nil {
		return nil, fmt.Errorf("query workflow events: %w", err)
	}
	defer rows.Close()

	var events []model.WorkflowEvent
	for rows.Next() {
		var evt model.WorkflowEvent
		if err := rows.Scan(&evt.ID, &evt.ItemID, &evt.StepID, &evt.Event,
			&evt.ActorID, &evt.Comment, &evt.Timestamp); err != nil {
			return nil, fmt.Errorf("scan workflow event: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// StepActor returns the principal who most recently completed the step.
func (s *PgTaskStore) StepActor(ctx context.Context, itemID, stepID string) (string, error) {
	var actor string
	err := s.pool.QueryRow(ctx, `
		SELECT actor_id
		FROM workflow_events
		WHERE item_id = $1 AND step_id = $2 AND event = $3
		ORDER BY created_at DESC
		LIMIT 1`,
		itemID, stepID, model.EventActionDone,
	).Scan(&actor)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query step actor: %w", err)
	}
	return actor, nil
}

// InTx runs fn inside a database transaction.
func (s *PgTaskStore) InTx(ctx context.Context, fn func(tx TaskTx) error) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// pgTx implements TaskTx over an open pgx transaction. It carries the
// transaction's context because TaskTx mirrors the in-memory mutation
// surface, which takes none.
type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) CreateItem(item model.WorkflowItem) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO workflow_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.SubmissionID, item.WorkflowType, item.TenantID, item.SubmitterID,
		item.CollectionID, item.CurrentStep, item.Status, item.Version,
		item.CreatedAt, item.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return model.NewConflictError(
			fmt.Sprintf("workflow item %q already exists", item.ID),
		)
	}
	if err != nil {
		return fmt.Errorf("insert workflow item: %w", err)
	}
	return nil
}

// GetItem inside a transaction locks the item row, serializing transitions
// on one item across engine processes that share the database.
func (t *pgTx) GetItem(tenantID, itemID string) (model.WorkflowItem, error) {
	return getItem(t.ctx, t.tx, tenantID, itemID, true)
}

func (t *pgTx) UpdateItem(item model.WorkflowItem) error {
	tag, err := t.tx.Exec(t.ctx, `
		UPDATE workflow_items SET
			current_step = $1,
			status = $2,
			version = $3,
			updated_at = $4
		WHERE id = $5 AND version = $6`,
		item.CurrentStep, item.Status, item.Version+1,
		time.Now().UTC(),
		item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConcurrentTransitionError(item.ID)
	}
	return nil
}

func (t *pgTx) HasActiveItemForSubmission(tenantID, submissionID string) (bool, error) {
	return hasActiveItem(t.ctx, t.tx, tenantID, submissionID)
}

func (t *pgTx) InsertPoolTasks(tasks []model.PoolTask) error {
	for _, task := range tasks {
		_, err := t.tx.Exec(t.ctx, `
			INSERT INTO pool_tasks (id, item_id, step_id, principal_id, group_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			task.ID, task.ItemID, task.StepID, task.PrincipalID, task.GroupID, task.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert pool task: %w", err)
		}
	}
	return nil
}

func (t *pgTx) PoolTasks(itemID, stepID string) ([]model.PoolTask, error) {
	return queryPoolTasks(t.ctx, t.tx, `
		SELECT id, item_id, step_id, principal_id, group_id, created_at
		FROM pool_tasks
		WHERE item_id = $1 AND step_id = $2
		ORDER BY principal_id`,
		itemID, stepID)
}

func (t *pgTx) DeletePoolTask(id string) error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM pool_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pool task: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteStepPoolTasks(itemID, stepID string) error {
	_, err := t.tx.Exec(t.ctx, `
		DELETE FROM pool_tasks WHERE item_id = $1 AND step_id = $2`,
		itemID, stepID)
	if err != nil {
		return fmt.Errorf("delete step pool tasks: %w", err)
	}
	return nil
}

func (t *pgTx) InsertClaim(claim model.ClaimedTask) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO claimed_tasks (id, item_id, step_id, principal_id, claimed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		claim.ID, claim.ItemID, claim.StepID, claim.PrincipalID, claim.ClaimedAt,
	)
	if isUniqueViolation(err) {
		return model.NewConflictError(
			fmt.Sprintf("principal %q already holds a claim on item %q", claim.PrincipalID, claim.ItemID),
		)
	}
	if err != nil {
		return fmt.Errorf("insert claimed task: %w", err)
	}
	return nil
}

// InsertExclusiveClaim inserts the claim only while no claim exists for the
// (item, step), so the single-holder rule survives concurrent transactions.
func (t *pgTx) InsertExclusiveClaim(claim model.ClaimedTask) error {
	tag, err := t.tx.Exec(t.ctx, `
		INSERT INTO claimed_tasks (id, item_id, step_id, principal_id, claimed_at)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM claimed_tasks WHERE item_id = $2 AND step_id = $3
		)`,
		claim.ID, claim.ItemID, claim.StepID, claim.PrincipalID, claim.ClaimedAt,
	)
	if isUniqueViolation(err) {
		return model.NewConflictError(
			fmt.Sprintf("principal %q already holds a claim on item %q", claim.PrincipalID, claim.ItemID),
		)
	}
	if err != nil {
		return fmt.Errorf("insert claimed task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewAlreadyClaimedError(claim.StepID)
	}
	return nil
}

func (t *pgTx) StepClaims(itemID, stepID string) ([]model.ClaimedTask, error) {
	return queryClaims(t.ctx, t.tx, `
		SELECT id, item_id, step_id, principal_id, claimed_at
		FROM claimed_tasks
		WHERE item_id = $1 AND step_id = $2
		ORDER BY claimed_at`,
		itemID, stepID)
}

func (t *pgTx) ClaimFor(itemID, principalID string) (model.ClaimedTask, bool, error) {
	return claimFor(t.ctx, t.tx, itemID, principalID)
}

func (t *pgTx) DeleteClaim(id string) error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM claimed_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete claimed task: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteStepClaims(itemID, stepID string) error {
	_, err := t.tx.Exec(t.ctx, `
		DELETE FROM claimed_tasks WHERE item_id = $1 AND step_id = $2`,
		itemID, stepID)
	if err != nil {
		return fmt.Errorf("delete step claims: %w", err)
	}
	return nil
}

func (t *pgTx) InsertRequirement(rec model.RequirementRecord) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO requirement_records (item_id, step_id, principal_id, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id, step_id, principal_id) DO NOTHING`,
		rec.ItemID, rec.StepID, rec.PrincipalID, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert requirement record: %w", err)
	}
	return nil
}

func (t *pgTx) Requirements(itemID, stepID string) ([]model.RequirementRecord, error) {
	return queryRequirements(t.ctx, t.tx, itemID, stepID)
}

func (t *pgTx) ClearRequirements(itemID, stepID string) error {
	_, err := t.tx.Exec(t.ctx, `
		DELETE FROM requirement_records WHERE item_id = $1 AND step_id = $2`,
		itemID, stepID)
	if err != nil {
		return fmt.Errorf("clear requirement records: %w", err)
	}
	return nil
}

func (t *pgTx) InsertRoster(entries []model.RosterEntry) error {
	for _, e := range entries {
		_, err := t.tx.Exec(t.ctx, `
			INSERT INTO step_rosters (item_id, step_id, principal_id, group_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (item_id, step_id, principal_id) DO NOTHING`,
			e.ItemID, e.StepID, e.PrincipalID, e.GroupID,
		)
		if err != nil {
			return fmt.Errorf("insert roster entry: %w", err)
		}
	}
	return nil
}

func (t *pgTx) Roster(itemID, stepID string) ([]model.RosterEntry, error) {
	return queryRoster(t.ctx, t.tx, itemID, stepID)
}

func (t *pgTx) ClearRoster(itemID, stepID string) error {
	_, err := t.tx.Exec(t.ctx, `
		DELETE FROM step_rosters WHERE item_id = $1 AND step_id = $2`,
		itemID, stepID)
	if err != nil {
		return fmt.Errorf("clear roster: %w", err)
	}
	return nil
}

func (t *pgTx) PurgeItemTasks(itemID string) error {
	for _, stmt := range []string{
		`DELETE FROM pool_tasks WHERE item_id = $1`,
		`DELETE FROM claimed_tasks WHERE item_id = $1`,
		`DELETE FROM requirement_records WHERE item_id = $1`,
		`DELETE FROM step_rosters WHERE item_id = $1`,
	} {
		if _, err := t.tx.Exec(t.ctx, stmt, itemID); err != nil {
			return fmt.Errorf("purge item tasks: %w", err)
		}
	}
	return nil
}

func (t *pgTx) AppendEvent(event model.WorkflowEvent) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO workflow_events (id, item_id, step_id, event, actor_id, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.ItemID, event.StepID, event.Event,
		event.ActorID, event.Comment, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert workflow event: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
