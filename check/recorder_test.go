package check

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"clientpin/term"
)

func TestRecordCheck_InsertsForNewClient(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRecorderRepo()
	notifier := &fakeNotifier{}
	rec := NewRecorder(pool, repo, notifier, nil, zerolog.Nop())

	clientID := "c1"
	termID := "t1"
	got, err := rec.RecordCheck(context.Background(), RecordParams{
		ClientID:    &clientID,
		ClientPhone: "+79160000001",
		Outcome:     term.Outcome{TermID: &termID, Status: term.StatusUnique},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pool.tx.committed {
		t.Fatal("expected commit")
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(repo.inserted))
	}
	if got.ResultStatus != term.StatusUnique {
		t.Fatalf("expected status %q, got %q", term.StatusUnique, got.ResultStatus)
	}
	if len(repo.history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(repo.history))
	}
	h := repo.history[0]
	if h.CheckID != got.ID || h.ResultStatus != term.StatusUnique {
		t.Fatalf("unexpected history entry: %+v", h)
	}
	if h.MatchedTermID == nil || *h.MatchedTermID != termID {
		t.Fatalf("expected matched term in history, got %v", h.MatchedTermID)
	}
}

func TestRecordCheck_CRMOnlyAlwaysInserts(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRecorderRepo()
	rec := NewRecorder(pool, repo, &fakeNotifier{}, nil, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if _, err := rec.RecordCheck(context.Background(), RecordParams{
			ClientPhone: "+79160000001",
			Outcome:     term.Outcome{Status: term.StatusUnique},
		}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if len(repo.inserted) != 3 {
		t.Fatalf("expected 3 inserts for CRM-only evaluations, got %d", len(repo.inserted))
	}
}

func TestRecordCheck_OverwritesLiveCheck(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRecorderRepo()
	rec := NewRecorder(pool, repo, &fakeNotifier{}, nil, zerolog.Nop())

	clientID := "c1"
	first, err := rec.RecordCheck(context.Background(), RecordParams{
		ClientID: &clientID,
		Outcome:  term.Outcome{Status: term.StatusUnique},
	})
	if err != nil {
		t.Fatalf("first record: %v", err)
	}

	second, err := rec.RecordCheck(context.Background(), RecordParams{
		ClientID: &clientID,
		Outcome:  term.Outcome{Status: term.StatusNotUnique},
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected in-place overwrite, got new row %q vs %q", second.ID, first.ID)
	}
	if second.ResultStatus != term.StatusNotUnique {
		t.Fatalf("expected updated status, got %q", second.ResultStatus)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected a single insert, got %d", len(repo.inserted))
	}
	if len(repo.history) != 2 {
		t.Fatalf("expected history per evaluation, got %d", len(repo.history))
	}
}

func TestRecordCheck_FixedCheckImmutable(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRecorderRepo()
	rec := NewRecorder(pool, repo, &fakeNotifier{}, nil, zerolog.Nop())

	clientID := "c1"
	repo.live[clientID] = Check{ID: "chk-1", ClientID: &clientID, ResultStatus: term.StatusPinned, Fixed: true}

	got, err := rec.RecordCheck(context.Background(), RecordParams{
		ClientID: &clientID,
		Outcome:  term.Outcome{Status: term.StatusUnique},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !got.Fixed || got.ResultStatus != term.StatusPinned {
		t.Fatalf("fixed check must be returned untouched, got %+v", got)
	}
	if len(repo.updated) != 0 || len(repo.inserted) != 0 {
		t.Fatal("fixed check must not be written")
	}
	if len(repo.history) != 1 {
		t.Fatalf("expected history entry even for fixed check, got %d", len(repo.history))
	}
	if repo.history[0].ResultStatus != term.StatusUnique {
		t.Fatalf("history must record what re-evaluation produced, got %q", repo.history[0].ResultStatus)
	}
	if !pool.tx.committed {
		t.Fatal("expected commit")
	}
}

func TestRecordCheck_HistoryFailureRollsBack(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRecorderRepo()
	repo.historyErr = errors.New("disk full")
	rec := NewRecorder(pool, repo, &fakeNotifier{}, nil, zerolog.Nop())

	clientID := "c1"
	if _, err := rec.RecordCheck(context.Background(), RecordParams{
		ClientID: &clientID,
		Outcome:  term.Outcome{Status: term.StatusUnique},
	}); err == nil {
		t.Fatal("expected error")
	}
	if pool.tx.committed {
		t.Fatal("expected commit to be skipped")
	}
	if !pool.tx.rolled {
		t.Fatal("expected rollback")
	}
}

func TestRecordCheck_NotificationDispatch(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRecorderRepo()
	notifier := &fakeNotifier{}
	rules := map[string]NotificationRule{
		term.StatusError: {TemplateSlug: "check_no_rule_matched", Recipients: []string{"admins"}},
	}
	rec := NewRecorder(pool, repo, notifier, rules, zerolog.Nop())

	clientID := "c1"
	if _, err := rec.RecordCheck(context.Background(), RecordParams{
		ClientID:    &clientID,
		ClientPhone: "+79160000001",
		Outcome:     term.Outcome{Status: term.StatusError},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	if notifier.sent[0].slug != "check_no_rule_matched" || notifier.sent[0].recipient != "admins" {
		t.Fatalf("unexpected notification: %+v", notifier.sent[0])
	}

	notifier.sent = nil
	if _, err := rec.RecordCheck(context.Background(), RecordParams{
		ClientID: &clientID,
		Outcome:  term.Outcome{Status: term.StatusUnique},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no notification for unconfigured status, got %d", len(notifier.sent))
	}
}

type fakeRecorderRepo struct {
	live       map[string]Check
	inserted   []Check
	updated    []Check
	history    []HistoryEntry
	historyErr error
	nextID     int
}

func newFakeRecorderRepo() *fakeRecorderRepo {
	return &fakeRecorderRepo{live: make(map[string]Check), nextID: 1}
}

func (f *fakeRecorderRepo) GetLiveForUpdate(ctx context.Context, tx pgx.Tx, clientID string) (Check, error) {
	c, ok := f.live[clientID]
	if !ok {
		return Check{}, ErrCheckNotFound
	}
	return c, nil
}

func (f *fakeRecorderRepo) Insert(ctx context.Context, tx pgx.Tx, params InsertCheckParams) (Check, error) {
	c := Check{
		ID:               fmt.Sprintf("chk-%d", f.nextID),
		ClientID:         params.ClientID,
		ResultStatus:     params.ResultStatus,
		MatchedContactID: params.MatchedContactID,
	}
	f.nextID++
	f.inserted = append(f.inserted, c)
	if params.ClientID != nil {
		f.live[*params.ClientID] = c
	}
	return c, nil
}

func (f *fakeRecorderRepo) UpdateResult(ctx context.Context, tx pgx.Tx, checkID, resultStatus string, contactID *int64) (Check, error) {
	for clientID, c := range f.live {
		if c.ID == checkID && !c.Fixed {
			c.ResultStatus = resultStatus
			c.MatchedContactID = contactID
			f.live[clientID] = c
			f.updated = append(f.updated, c)
			return c, nil
		}
	}
	return Check{}, ErrCheckNotFound
}

func (f *fakeRecorderRepo) InsertHistory(ctx context.Context, tx pgx.Tx, entry HistoryEntry) error {
	if f.historyErr != nil {
		return f.historyErr
	}
	f.history = append(f.history, entry)
	return nil
}

type sentNotification struct {
	recipient string
	slug      string
	payload   map[string]any
}

type fakeNotifier struct {
	sent []sentNotification
}

func (f *fakeNotifier) Notify(ctx context.Context, recipientID, templateSlug string, payload map[string]any) error {
	f.sent = append(f.sent, sentNotification{recipient: recipientID, slug: templateSlug, payload: payload})
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
