package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
	"github.com/aryan0dhankhar/payhub/internal/infrastructure/inproc"
	"github.com/aryan0dhankhar/payhub/internal/infrastructure/storage"
	"github.com/aryan0dhankhar/payhub/internal/repository/memory"
)

const validPDF = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n"

type fixture struct {
	store  *memory.Store
	files  *storage.LocalStore
	queue  *inproc.JobQueue
	events *inproc.Broadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files, err := storage.NewLocalStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	return &fixture{
		store:  memory.NewStore(),
		files:  files,
		queue:  inproc.NewJobQueue(8),
		events: inproc.NewBroadcaster(),
	}
}

// uploaded stores a payslip with document content uploaded at the given time.
func (f *fixture) uploaded(t *testing.T, content string, at time.Time) *domain.Payslip {
	t.Helper()
	ctx := context.Background()
	p := &domain.Payslip{
		InstitutionID: "inst-1",
		UserID:        "user-1",
		Month:         "January",
		Year:          2024,
		GrossPay:      100,
		NetPay:        90,
		Status:        domain.PayslipProcessing,
	}
	if err := f.store.Payslips().Create(ctx, p); err != nil {
		t.Fatalf("create payslip: %v", err)
	}
	path, err := f.files.Save(ctx, "payslip", ".pdf", strings.NewReader(content))
	if err != nil {
		t.Fatalf("save document: %v", err)
	}
	p, err = f.store.Payslips().AttachFile(ctx, domain.Scope{InstitutionID: "inst-1"}, p.ID, path, "jan.pdf", at)
	if err != nil {
		t.Fatalf("attach file: %v", err)
	}
	return p
}

func (f *fixture) processor() *PayslipProcessor {
	p := NewPayslipProcessor(f.queue, f.store.Payslips(), f.files, f.events, nil, 1)
	p.pollTimeout = 50 * time.Millisecond
	p.retry.InitialBackoff = time.Millisecond
	return p
}

func (f *fixture) status(t *testing.T, id string) domain.PayslipStatus {
	t.Helper()
	p, err := f.store.Payslips().GetByID(context.Background(), domain.Scope{}, id)
	if err != nil {
		t.Fatalf("get payslip: %v", err)
	}
	return p.Status
}

func TestProcessorMarksValidDocumentAvailable(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, release, _ := f.events.Subscribe(ctx)
	defer release()

	p := f.uploaded(t, validPDF, time.Now())
	result := f.processor().process(ctx, domain.PayslipJob{PayslipID: p.ID, InstitutionID: p.InstitutionID})
	if result != "available" {
		t.Fatalf("expected available, got %s", result)
	}
	if got := f.status(t, p.ID); got != domain.PayslipAvailable {
		t.Fatalf("expected AVAILABLE, got %s", got)
	}

	select {
	case ev := <-events:
		if ev.PayslipID != p.ID || ev.Status != domain.PayslipAvailable || ev.ProcessedAt == nil {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a status event")
	}
}

func TestProcessorFailsInvalidDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proc := f.processor()

	for _, content := range []string{"", "hello world", "%PDF-1.4\ntruncated"} {
		p := f.uploaded(t, content, time.Now())
		if result := proc.process(ctx, domain.PayslipJob{PayslipID: p.ID, InstitutionID: p.InstitutionID}); result != "failed" {
			t.Fatalf("content %q: expected failed, got %s", content, result)
		}
		if got := f.status(t, p.ID); got != domain.PayslipFailed {
			t.Fatalf("content %q: expected FAILED, got %s", content, got)
		}
	}
}

func TestProcessorTrailerCheckCanBeDisabled(t *testing.T) {
	t.Setenv("FLAG_STRICT_PDF_CHECK", "false")
	f := newFixture(t)

	p := f.uploaded(t, "%PDF-1.4\ntruncated", time.Now())
	if result := f.processor().process(context.Background(), domain.PayslipJob{PayslipID: p.ID, InstitutionID: p.InstitutionID}); result != "available" {
		t.Fatalf("expected available, got %s", result)
	}
}

func TestProcessorSkipsFinishedAndMissingPayslips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proc := f.processor()

	p := f.uploaded(t, validPDF, time.Now())
	if _, err := f.store.Payslips().Transition(ctx, p.ID, domain.PayslipProcessing, domain.PayslipFailed, time.Now()); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if result := proc.process(ctx, domain.PayslipJob{PayslipID: p.ID, InstitutionID: p.InstitutionID}); result != "skipped" {
		t.Fatalf("expected skipped, got %s", result)
	}
	if result := proc.process(ctx, domain.PayslipJob{PayslipID: "missing", InstitutionID: "inst-1"}); result != "dropped" {
		t.Fatalf("expected dropped, got %s", result)
	}
}

// reuploadingRepo attaches a new document just before the worker records
// its verdict on the old one.
type reuploadingRepo struct {
	domain.PayslipRepository
	t    *testing.T
	f    *fixture
	path string
}

func (r *reuploadingRepo) FinishProcessing(ctx context.Context, id, filePath string, to domain.PayslipStatus, at time.Time) (*domain.Payslip, error) {
	path, err := r.f.files.Save(ctx, "payslip", ".pdf", strings.NewReader("unchecked"))
	if err != nil {
		r.t.Fatalf("save replacement: %v", err)
	}
	if _, err := r.PayslipRepository.AttachFile(ctx, domain.Scope{InstitutionID: "inst-1"}, id, path, "feb.pdf", time.Now()); err != nil {
		r.t.Fatalf("attach replacement: %v", err)
	}
	r.path = path
	return r.PayslipRepository.FinishProcessing(ctx, id, filePath, to, at)
}

func TestProcessorIgnoresDocumentReplacedMidway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.uploaded(t, validPDF, time.Now())

	repo := &reuploadingRepo{PayslipRepository: f.store.Payslips(), t: t, f: f}
	proc := NewPayslipProcessor(f.queue, repo, f.files, f.events, nil, 1)
	proc.retry.MaxAttempts = 1

	if result := proc.process(ctx, domain.PayslipJob{PayslipID: p.ID, InstitutionID: p.InstitutionID}); result != "skipped" {
		t.Fatalf("expected skipped, got %s", result)
	}
	got, err := f.store.Payslips().GetByID(ctx, domain.Scope{}, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.PayslipProcessing || got.FilePath != repo.path {
		t.Fatalf("replacement must stay PROCESSING, got %s with %q", got.Status, got.FilePath)
	}
}

func TestProcessorConsumesQueue(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, release, _ := f.events.Subscribe(ctx)
	defer release()

	p := f.uploaded(t, validPDF, time.Now())
	if err := f.queue.Enqueue(ctx, domain.PayslipJob{PayslipID: p.ID, InstitutionID: p.InstitutionID}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		f.processor().Start(ctx)
		close(done)
	}()

	select {
	case ev := <-events:
		if ev.PayslipID != p.ID || ev.Status != domain.PayslipAvailable {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for job to be processed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("processor did not stop")
	}
}

func TestSweeperFailsOnlyStalePayslips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.uploaded(t, validPDF, time.Now().Add(-2*time.Hour))
	fresh := f.uploaded(t, validPDF, time.Now())

	sweeper := NewStaleSweeper(f.store.Payslips(), f.events, nil, time.Minute, 30*time.Minute)
	if n := sweeper.sweep(ctx); n != 1 {
		t.Fatalf("expected 1 payslip swept, got %d", n)
	}
	if got := f.status(t, stale.ID); got != domain.PayslipFailed {
		t.Fatalf("expected stale payslip FAILED, got %s", got)
	}
	if got := f.status(t, fresh.ID); got != domain.PayslipProcessing {
		t.Fatalf("expected fresh payslip PROCESSING, got %s", got)
	}
	if n := sweeper.sweep(ctx); n != 0 {
		t.Fatalf("expected second sweep to find nothing, got %d", n)
	}
}

func TestTruncatedDocumentNamesPDFTrailer(t *testing.T) {
	f := newFixture(t)
	p := f.uploaded(t, "%PDF-1.4\ntruncated", time.Now())
	err := f.processor().verify(p.FilePath)
	if err != errTruncatedDocument {
		t.Fatalf("expected errTruncatedDocument, got %v", err)
	}
	if err.Error() != "document has no %%EOF trailer" {
		t.Fatalf("message = %q", err.Error())
	}
}
