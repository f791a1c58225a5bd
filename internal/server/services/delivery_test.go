package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/driftletter/driftletter/internal/common"
	"github.com/driftletter/driftletter/internal/logging"
	"github.com/driftletter/driftletter/internal/server/config"
	"github.com/driftletter/driftletter/internal/server/matching"
	"github.com/driftletter/driftletter/internal/server/models"
	"github.com/driftletter/driftletter/internal/server/repositories/repomanager"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabaseDSN = ""
	return cfg
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newDeliveryStack wires the full service stack over the in-memory
// repositories (nil *sql.DB).
func newDeliveryStack(t *testing.T) (*DeliveryService, *UserService, repomanager.RepositoryManager) {
	t.Helper()
	cfg := testConfig()
	rm := repomanager.NewInMemoryRepositoryManager()
	us := NewUserService(nil, rm, cfg)
	ls := NewLetterService(nil, rm, cfg)
	ds := NewDeliveryService(nil, rm, ls, us, matching.New(nil), testLogger())
	return ds, us, rm
}

func mustEnsure(t *testing.T, us *UserService, id string) {
	t.Helper()
	if _, err := us.Ensure(context.Background(), id); err != nil {
		t.Fatalf("Ensure(%s) error: %v", id, err)
	}
}

func sentIDs(t *testing.T, us *UserService, id string) []string {
	t.Helper()
	ids, err := us.SentLetterIDs(context.Background(), id)
	if err != nil {
		t.Fatalf("SentLetterIDs(%s) error: %v", id, err)
	}
	return ids
}

func receivedIDs(t *testing.T, us *UserService, id string) []string {
	t.Helper()
	ids, err := us.ReceivedLetterIDs(context.Background(), id)
	if err != nil {
		t.Fatalf("ReceivedLetterIDs(%s) error: %v", id, err)
	}
	return ids
}

func TestSubmit_AssignsToSoleCandidate(t *testing.T) {
	ds, us, _ := newDeliveryStack(t)
	ctx := context.Background()

	mustEnsure(t, us, "B")

	letter, err := ds.Submit(ctx, SubmitRequest{SenderID: "A", Title: "Hello", Content: "World"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	if letter.RecipientState != models.StateAssigned || letter.RecipientID != "B" {
		t.Fatalf("want assigned to B, got %s/%s", letter.RecipientState, letter.RecipientID)
	}
	if got := sentIDs(t, us, "A"); len(got) != 1 || got[0] != letter.ID {
		t.Fatalf("A.sent = %v, want [%s]", got, letter.ID)
	}
	if got := receivedIDs(t, us, "B"); len(got) != 1 || got[0] != letter.ID {
		t.Fatalf("B.received = %v, want [%s]", got, letter.ID)
	}
}

func TestSubmit_RejectsWithEmptyPool(t *testing.T) {
	ds, us, _ := newDeliveryStack(t)
	ctx := context.Background()

	letter, err := ds.Submit(ctx, SubmitRequest{SenderID: "A", Content: "World"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	if letter.RecipientState != models.StateRejected {
		t.Fatalf("want rejected, got %s", letter.RecipientState)
	}
	if letter.RecipientID != "" {
		t.Fatalf("rejected letter must not carry a recipient: %+v", letter)
	}
	if got := sentIDs(t, us, "A"); len(got) != 1 || got[0] != letter.ID {
		t.Fatalf("A.sent = %v, want [%s]", got, letter.ID)
	}
}

func TestSubmit_RegistersUnknownSender(t *testing.T) {
	ds, us, _ := newDeliveryStack(t)
	ctx := context.Background()

	if _, err := ds.Submit(ctx, SubmitRequest{SenderID: "A", Content: "hi"}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	exists, err := us.Exists(ctx, "A")
	if err != nil {
		t.Fatalf("Exists error: %v", err)
	}
	if !exists {
		t.Fatalf("submission must register the sender")
	}
}

func TestSubmit_ValidatesInput(t *testing.T) {
	ds, _, _ := newDeliveryStack(t)
	ctx := context.Background()

	cases := []SubmitRequest{
		{SenderID: "", Content: "x"},
		{SenderID: strings.Repeat("a", 129), Content: "x"},
		{SenderID: "A", Content: ""},
		{SenderID: "A", Content: strings.Repeat("x", 4097)},
		{SenderID: "A", Title: strings.Repeat("t", 257), Content: "x"},
	}

	for _, req := range cases {
		if _, err := ds.Submit(ctx, req); !errors.Is(err, common.ErrorInvalidInput) {
			t.Fatalf("req %+v: want common.ErrorInvalidInput, got %v", req, err)
		}
	}
}

func TestSubmit_IdempotencyTokenDeduplicates(t *testing.T) {
	ds, us, _ := newDeliveryStack(t)
	ctx := context.Background()

	mustEnsure(t, us, "B")

	req := SubmitRequest{SenderID: "A", Token: "tok-1", Title: "Hello", Content: "World"}

	first, err := ds.Submit(ctx, req)
	if err != nil {
		t.Fatalf("first Submit error: %v", err)
	}
	second, err := ds.Submit(ctx, req)
	if err != nil {
		t.Fatalf("second Submit error: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("retry created a second letter: %s vs %s", first.ID, second.ID)
	}
	if got := receivedIDs(t, us, "B"); len(got) != 1 {
		t.Fatalf("B.received = %v, want exactly one entry", got)
	}
	if got := sentIDs(t, us, "A"); len(got) != 1 {
		t.Fatalf("A.sent = %v, want exactly one entry", got)
	}
}

func TestSubmit_ConcurrentRetriesOneLetterPerToken(t *testing.T) {
	ds, us, _ := newDeliveryStack(t)
	ctx := context.Background()

	mustEnsure(t, us, "B")

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]*models.Letter, attempts)
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ds.Submit(ctx, SubmitRequest{
				SenderID: "A", Token: "tok-1", Content: "World",
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < attempts; i++ {
		if errs[i] != nil {
			t.Fatalf("attempt %d error: %v", i, errs[i])
		}
		if results[i].ID != results[0].ID {
			t.Fatalf("attempt %d produced a different letter: %s vs %s", i, results[i].ID, results[0].ID)
		}
	}
	if got := receivedIDs(t, us, "B"); len(got) != 1 {
		t.Fatalf("B.received = %v, want exactly one entry", got)
	}
}

func TestSubmit_ConcurrentSendersBothDelivered(t *testing.T) {
	ds, us, _ := newDeliveryStack(t)
	ctx := context.Background()

	mustEnsure(t, us, "B")

	var wg sync.WaitGroup
	var fromA, fromC *models.Letter
	var errA, errC error

	wg.Add(2)
	go func() {
		defer wg.Done()
		fromA, errA = ds.Submit(ctx, SubmitRequest{SenderID: "A", Content: "from A"})
	}()
	go func() {
		defer wg.Done()
		fromC, errC = ds.Submit(ctx, SubmitRequest{SenderID: "C", Content: "from C"})
	}()
	wg.Wait()

	if errA != nil || errC != nil {
		t.Fatalf("Submit errors: %v, %v", errA, errC)
	}
	if fromA.ID == fromC.ID {
		t.Fatalf("distinct submissions share a letter id")
	}

	// Senders join the pool on submission, so either letter may land on B
	// or on the other sender. Both must be assigned to someone else and
	// recorded exactly once.
	for _, letter := range []*models.Letter{fromA, fromC} {
		if letter.RecipientState != models.StateAssigned {
			t.Fatalf("letter %s not assigned: %+v", letter.ID, letter)
		}
		if letter.RecipientID == letter.SenderID {
			t.Fatalf("letter %s delivered to its own sender", letter.ID)
		}
		got := receivedIDs(t, us, letter.RecipientID)
		count := 0
		for _, id := range got {
			if id == letter.ID {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("letter %s appears %d times in %s.received (%v)", letter.ID, count, letter.RecipientID, got)
		}
	}
}

func TestSubmit_HonorsExclusions(t *testing.T) {
	ds, us, _ := newDeliveryStack(t)
	ctx := context.Background()

	mustEnsure(t, us, "B")
	err := us.SetPreferences(ctx, "B", models.Preferences{ExcludeTopics: []string{"goodbyes"}})
	if err != nil {
		t.Fatalf("SetPreferences error: %v", err)
	}

	letter, err := ds.Submit(ctx, SubmitRequest{
		SenderID: "A", Content: "farewell",
		Tags: map[string]string{"topic": "goodbyes"},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if letter.RecipientState != models.StateRejected {
		t.Fatalf("excluded topic must reject when nobody else is eligible, got %s", letter.RecipientState)
	}
}

func TestReconcile_FinishesInterruptedSubmission(t *testing.T) {
	ds, us, rm := newDeliveryStack(t)
	ctx := context.Background()

	mustEnsure(t, us, "A")
	mustEnsure(t, us, "B")

	// A letter left waiting, as after a crash between creation and match.
	stuck := &models.Letter{
		ID: "l-stuck", SenderID: "A", Content: "hello",
		RecipientState: models.StateWaiting,
	}
	if err := rm.Letters(nil).Create(ctx, stuck); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	finished, err := ds.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if finished != 1 {
		t.Fatalf("want 1 finished letter, got %d", finished)
	}

	final, err := rm.Letters(nil).Get(ctx, "l-stuck")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if final.RecipientState != models.StateAssigned || final.RecipientID != "B" {
		t.Fatalf("want assigned to B, got %s/%s", final.RecipientState, final.RecipientID)
	}
	if got := sentIDs(t, us, "A"); len(got) != 1 || got[0] != "l-stuck" {
		t.Fatalf("A.sent = %v", got)
	}
	if got := receivedIDs(t, us, "B"); len(got) != 1 || got[0] != "l-stuck" {
		t.Fatalf("B.received = %v", got)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	ds, us, rm := newDeliveryStack(t)
	ctx := context.Background()

	mustEnsure(t, us, "A")
	mustEnsure(t, us, "B")

	stuck := &models.Letter{
		ID: "l-stuck", SenderID: "A", Content: "hello",
		RecipientState: models.StateWaiting,
	}
	if err := rm.Letters(nil).Create(ctx, stuck); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if _, err := ds.Reconcile(ctx); err != nil {
		t.Fatalf("first Reconcile error: %v", err)
	}
	first, err := rm.Letters(nil).Get(ctx, "l-stuck")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}

	if _, err := ds.Reconcile(ctx); err != nil {
		t.Fatalf("second Reconcile error: %v", err)
	}
	second, err := rm.Letters(nil).Get(ctx, "l-stuck")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}

	if first.RecipientState != second.RecipientState || first.RecipientID != second.RecipientID {
		t.Fatalf("reconcile changed a terminal letter: %+v vs %+v", first, second)
	}
	if got := receivedIDs(t, us, "B"); len(got) != 1 {
		t.Fatalf("B.received = %v, want exactly one entry", got)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	ds, us, rm := newDeliveryStack(t)
	ctx := context.Background()

	mustEnsure(t, us, "B")

	letter, err := ds.Submit(ctx, SubmitRequest{SenderID: "A", Content: "hello"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if letter.RecipientState != models.StateAssigned {
		t.Fatalf("precondition: want assigned, got %s", letter.RecipientState)
	}

	if err := rm.Letters(nil).Assign(ctx, letter.ID, "C"); !errors.Is(err, common.ErrorInvalidTransition) {
		t.Fatalf("re-assign: want common.ErrorInvalidTransition, got %v", err)
	}
	if err := rm.Letters(nil).Reject(ctx, letter.ID); !errors.Is(err, common.ErrorInvalidTransition) {
		t.Fatalf("reject after assign: want common.ErrorInvalidTransition, got %v", err)
	}

	final, err := rm.Letters(nil).Get(ctx, letter.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if final.RecipientID != letter.RecipientID {
		t.Fatalf("assignee changed: %s vs %s", final.RecipientID, letter.RecipientID)
	}
}
