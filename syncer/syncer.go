// Package syncer mirrors the finance collections of the document store into the relational store.
//
// A run walks START → SYNC_LEDGER → SYNC_CATEGORIES → SYNC_ACCOUNTS → CLOSE → END. Any error
// jumps to ERROR_END and skips the remaining stages; stages that already committed stay committed.
// Runs are never retried or resumed.
package syncer

import (
	"context"
	"fmt"
	"time"

	"agrofin/finsync/appcontext"
	"agrofin/finsync/model"
	"agrofin/finsync/normalize"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// State is a step of the sync state machine.
type State string

const (
	StateStart          State = "START"
	StateSyncLedger     State = "SYNC_LEDGER"
	StateSyncCategories State = "SYNC_CATEGORIES"
	StateSyncAccounts   State = "SYNC_ACCOUNTS"
	StateClose          State = "CLOSE"
	StateEnd            State = "END"
	StateErrorEnd       State = "ERROR_END"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the verdict of a run.
type Result struct {
	Status    string   `json:"status"`
	Logs      []string `json:"logs"`
	TotalLogs int      `json:"total_logs"`
}

// DocumentSource reads the three finance collections.
type DocumentSource interface {
	LedgerEntries(ctx context.Context) ([]bson.M, error)
	Categories(ctx context.Context) ([]bson.M, error)
	Accounts(ctx context.Context) ([]bson.M, error)
}

// Target writes normalized rows to the relational store.
type Target interface {
	SyncLedgerEntries(ctx context.Context, rows [][]any) (int64, error)
	SyncCategories(ctx context.Context, rows [][]any) (int64, error)
	SyncAccounts(ctx context.Context, rows [][]any) (int64, error)
	RecordRun(ctx context.Context, run model.SyncRun) error
}

// Stores is an open pair of source and target.
type Stores struct {
	Source DocumentSource
	Target Target
	Close  func(ctx context.Context) error
}

// Opener connects to both stores at the start of a run.
type Opener func(ctx context.Context) (*Stores, error)

type stage struct {
	state       State
	table       model.Table
	fetch       func(src DocumentSource, ctx context.Context) ([]bson.M, error)
	write       func(dst Target, ctx context.Context, rows [][]any) (int64, error)
	dropIgnored bool
}

var stages = []stage{
	{
		state:       StateSyncLedger,
		table:       model.Ledger,
		fetch:       DocumentSource.LedgerEntries,
		write:       Target.SyncLedgerEntries,
		dropIgnored: true,
	},
	{
		state: StateSyncCategories,
		table: model.Categories,
		fetch: DocumentSource.Categories,
		write: Target.SyncCategories,
	},
	{
		state: StateSyncAccounts,
		table: model.Accounts,
		fetch: DocumentSource.Accounts,
		write: Target.SyncAccounts,
	},
}

// Syncer runs the synchronization job.
type Syncer struct {
	open  Opener
	now   func() time.Time
	newID func() string
}

// New creates a Syncer that obtains its connections from open.
func New(open Opener) *Syncer {
	return &Syncer{
		open:  open,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// RunSync performs one full run and never returns an error: failures become an "error" verdict
// with the partial trail preserved.
func (s *Syncer) RunSync(ctx context.Context) Result {
	runID := s.newID()
	ctx, logger := appcontext.With(ctx, "run", runID)
	started := s.now()

	trail := &Trail{}
	trail.Addf("%s: run %s", StateStart, runID)
	logger.InfoContext(ctx, "Starting finance sync")

	stores, err := s.openStores(ctx)
	if err != nil {
		trail.Addf("%s: %s failed: %s", StateErrorEnd, StateStart, err)
		logger.ErrorContext(ctx, "Could not open stores", "error", err)
		return finish(trail, StatusError)
	}
	trail.Addf("%s: connected to document store and relational store", StateStart)

	failed := State("")
	for _, st := range stages {
		if err := runStage(ctx, stores, st, trail); err != nil {
			failed = st.state
			logger.ErrorContext(ctx, "Sync stage failed", "stage", st.state, "error", err)
			trail.Addf("%s: %s", st.state, err)
			break
		}
	}

	status := StatusSuccess
	if failed != "" {
		status = StatusError
	}

	// Two more lines follow the record: the close outcome and the terminal state.
	s.recordRun(ctx, stores.Target, model.SyncRun{
		RunID:       runID,
		StartedAt:   started.UTC(),
		FinishedAt:  s.now().UTC(),
		Status:      status,
		TotalLogs:   trail.Len() + 2,
		FailedStage: string(failed),
	})

	if err := closeStores(ctx, stores); err != nil {
		logger.ErrorContext(ctx, "Error closing connections", "error", err)
		trail.Addf("%s: failed to close connections: %s", StateClose, err)
	} else {
		trail.Addf("%s: connections closed", StateClose)
	}

	if failed != "" {
		trail.Addf("%s: %s failed, remaining stages skipped", StateErrorEnd, failed)
	} else {
		trail.Addf("%s: sync completed successfully", StateEnd)
	}

	trail.Log(logger)
	return finish(trail, status)
}

func (s *Syncer) openStores(ctx context.Context) (stores *Stores, err error) {
	defer func() {
		if r := recover(); r != nil {
			stores, err = nil, fmt.Errorf("panic while connecting: %v", r)
		}
	}()
	stores, err = s.open(ctx)
	if err == nil && stores == nil {
		err = fmt.Errorf("opener returned no stores")
	}
	return stores, err
}

func runStage(ctx context.Context, stores *Stores, st stage, trail *Trail) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	docs, err := st.fetch(stores.Source, ctx)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", st.table.Collection, err)
	}
	trail.Addf("%s: read %d documents from %s", st.state, len(docs), st.table.Collection)

	if st.dropIgnored {
		kept := docs[:0:0]
		for _, doc := range docs {
			if !normalize.IsIgnored(doc) {
				kept = append(kept, doc)
			}
		}
		if skipped := len(docs) - len(kept); skipped > 0 {
			trail.Addf("%s: skipped %d ignored documents", st.state, skipped)
		}
		docs = kept
	}

	written, err := st.write(stores.Target, ctx, normalize.Rows(docs, st.table))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", st.table.Name, err)
	}
	trail.Addf("%s: wrote %d rows to %s", st.state, written, st.table.Name)
	return nil
}

func (s *Syncer) recordRun(ctx context.Context, target Target, run model.SyncRun) {
	logger := appcontext.LoggerFromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.WarnContext(ctx, "Panic while recording sync run", "panic", r)
		}
	}()
	if err := target.RecordRun(ctx, run); err != nil {
		logger.WarnContext(ctx, "Could not record sync run", "error", err)
	}
}

func closeStores(ctx context.Context, stores *Stores) (err error) {
	if stores.Close == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stores.Close(ctx)
}

func finish(trail *Trail, status string) Result {
	logs := trail.Lines()
	return Result{Status: status, Logs: logs, TotalLogs: len(logs)}
}
