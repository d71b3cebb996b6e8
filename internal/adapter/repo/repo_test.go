package repo

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engine/internal/domain"
	"engine/internal/sqlinline"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// stubDB satisfies infra.SQLExecutor. Each call records the statement it saw
// and replays the programmed response for it.
type stubDB struct {
	tags    map[string]pgconn.CommandTag
	rows    map[string]stubRow
	execLog []string
	rowLog  []string
}

func newStubDB() *stubDB {
	return &stubDB{
		tags: make(map[string]pgconn.CommandTag),
		rows: make(map[string]stubRow),
	}
}

func (s *stubDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execLog = append(s.execLog, query)
	return s.tags[query], nil
}

func (s *stubDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.rowLog = append(s.rowLog, query)
	return s.rows[query]
}

func (s *stubDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func setString(dest any, v string) {
	*dest.(*string) = v
}

func TestSpendMapsEmptyResultToInsufficientBalance(t *testing.T) {
	db := newStubDB()
	ledger := NewCreditLedger(db)

	_, err := ledger.Spend(context.Background(), "acct", 8, "image_generation job", nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.Len(t, db.rowLog, 1)
	assert.Equal(t, sqlinline.QSpendCredits, db.rowLog[0])
}

func TestSpendRejectsNonPositiveAmount(t *testing.T) {
	db := newStubDB()
	ledger := NewCreditLedger(db)

	_, err := ledger.Spend(context.Background(), "acct", 0, "zero", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, db.rowLog, "validation failures never reach the database")
}

func TestSpendReturnsTransactionID(t *testing.T) {
	db := newStubDB()
	db.rows[sqlinline.QSpendCredits] = stubRow{scan: func(dest ...any) error {
		setString(dest[0], "tx-123")
		return nil
	}}
	ledger := NewCreditLedger(db)

	txID, err := ledger.Spend(context.Background(), "acct", 8, "image_generation job",
		map[string]any{domain.MetaJobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, "tx-123", txID)
}

func TestRefundRequiresOriginalTransactionID(t *testing.T) {
	db := newStubDB()
	ledger := NewCreditLedger(db)

	_, err := ledger.Refund(context.Background(), "acct", 8, "refund", map[string]any{
		domain.MetaJobID: "job-1",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, db.rowLog)
}

func TestBalanceReadsZeroForUnknownAccount(t *testing.T) {
	db := newStubDB()
	ledger := NewCreditLedger(db)

	balance, err := ledger.Balance(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestGrantValidatesKind(t *testing.T) {
	db := newStubDB()
	ledger := NewCreditLedger(db)

	_, err := ledger.Grant(context.Background(), "acct", 10, domain.TransactionKindRefund, "wrong", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateJobValidatesBeforeInsert(t *testing.T) {
	db := newStubDB()
	jobs := NewJobStore(db)
	ctx := context.Background()

	_, err := jobs.Create(ctx, domain.NewJob{OwnerID: "o", Type: "resize"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = jobs.Create(ctx, domain.NewJob{Type: domain.JobTypeExport})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, db.rowLog)
}

func TestCreateJobReturnsStampedRecord(t *testing.T) {
	now := time.Now()
	db := newStubDB()
	db.rows[sqlinline.QInsertJob] = stubRow{scan: func(dest ...any) error {
		*dest[0].(*time.Time) = now
		*dest[1].(*time.Time) = now
		return nil
	}}
	jobs := NewJobStore(db)

	job, err := jobs.Create(context.Background(), domain.NewJob{
		OwnerID: "owner-1",
		Type:    domain.JobTypeImageGeneration,
		Input:   []byte(`{"prompt":"x"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, now, job.CreatedAt)
}

func TestClaimNextEmptyQueue(t *testing.T) {
	db := newStubDB()
	jobs := NewJobStore(db)

	_, err := jobs.ClaimNext(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoJob)
	require.Len(t, db.rowLog, 1)
	assert.Equal(t, sqlinline.QClaimNextJob, db.rowLog[0])
}

func TestClaimMissReclassifies(t *testing.T) {
	db := newStubDB()
	jobs := NewJobStore(db)

	// Claim matched nothing and the follow-up lookup finds nothing either.
	_, err := jobs.Claim(context.Background(), "missing-id")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, []string{sqlinline.QClaimJob, sqlinline.QSelectJobByID}, db.rowLog)
}

func progressMissDB(status domain.JobStatus, current int) *stubDB {
	db := newStubDB()
	db.rows[sqlinline.QSelectJobStatusProgress] = stubRow{scan: func(dest ...any) error {
		*dest[0].(*domain.JobStatus) = status
		*dest[1].(*int) = current
		return nil
	}}
	return db
}

func TestReportProgressClassifiesMisses(t *testing.T) {
	ctx := context.Background()

	// Cancelled surfaces the cooperative abort signal.
	jobs := NewJobStore(progressMissDB(domain.JobStatusCancelled, 40))
	err := jobs.ReportProgress(ctx, "job-1", 50, nil, "")
	assert.ErrorIs(t, err, domain.ErrJobCancelled)

	// Completed and failed are silent no-ops.
	jobs = NewJobStore(progressMissDB(domain.JobStatusCompleted, 100))
	assert.NoError(t, jobs.ReportProgress(ctx, "job-1", 50, nil, ""))
	jobs = NewJobStore(progressMissDB(domain.JobStatusFailed, 40))
	assert.NoError(t, jobs.ReportProgress(ctx, "job-1", 50, nil, ""))

	// A processing row that did not match means the update went backwards.
	jobs = NewJobStore(progressMissDB(domain.JobStatusProcessing, 80))
	err = jobs.ReportProgress(ctx, "job-1", 50, nil, "")
	assert.ErrorIs(t, err, domain.ErrProgressRegression)

	// Unknown id.
	jobs = NewJobStore(newStubDB())
	err = jobs.ReportProgress(ctx, "job-1", 50, nil, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReportProgressRangeCheck(t *testing.T) {
	jobs := NewJobStore(newStubDB())
	err := jobs.ReportProgress(context.Background(), "job-1", 101, nil, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReportProgressMatchedRow(t *testing.T) {
	db := newStubDB()
	db.tags[sqlinline.QReportJobProgress] = pgconn.NewCommandTag("UPDATE 1")
	jobs := NewJobStore(db)

	err := jobs.ReportProgress(context.Background(), "job-1", 50, nil, "halfway")
	assert.NoError(t, err)
	assert.Empty(t, db.rowLog, "a matched update needs no reclassification")
}

func TestCompleteMissOnMissingJob(t *testing.T) {
	db := newStubDB()
	jobs := NewJobStore(db)

	err := jobs.Complete(context.Background(), "job-1", []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFailStaleReturnsCount(t *testing.T) {
	db := newStubDB()
	db.tags[sqlinline.QFailStaleJobs] = pgconn.NewCommandTag("UPDATE 3")
	jobs := NewJobStore(db)

	reaped, err := jobs.FailStale(context.Background(), time.Now().Add(-30*time.Minute), "stale")
	require.NoError(t, err)
	assert.Equal(t, 3, reaped)
}

func TestListForOwnerValidatesStatuses(t *testing.T) {
	jobs := NewJobStore(newStubDB())
	_, err := jobs.ListForOwner(context.Background(), "owner-1", []domain.JobStatus{"sleeping"}, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
