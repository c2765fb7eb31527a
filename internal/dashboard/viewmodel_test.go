package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"findash/internal/core"
)

type fakeStore struct {
	mu       sync.Mutex
	datasets []core.Dataset
	files    map[string][]core.ImportedFile
	queries  []queryCall
	results  map[string]QueryResult
	queryErr error
	// queryGate, when set, is received from before QueryTransactions
	// returns. Lets tests interleave in-flight loads.
	queryGate chan struct{}

	commits []commitCall
	deletes []string
}

type queryCall struct {
	datasetID  string
	start, end time.Time
}

type commitCall struct {
	datasetID string
	fileName  string
	rows      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:   map[string][]core.ImportedFile{},
		results: map[string]QueryResult{},
	}
}

func (s *fakeStore) ListDatasets(ctx context.Context) ([]core.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Dataset(nil), s.datasets...), nil
}

func (s *fakeStore) CreateDataset(ctx context.Context, name string) (core.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds := core.Dataset{ID: fmt.Sprintf("ds-%d", len(s.datasets)+1), Name: name}
	s.datasets = append(s.datasets, ds)
	return ds, nil
}

func (s *fakeStore) QueryTransactions(ctx context.Context, datasetID string, start, end time.Time) (QueryResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, queryCall{datasetID: datasetID, start: start, end: end})
	res := s.results[datasetID]
	err := s.queryErr
	gate := s.queryGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return QueryResult{}, err
	}
	return res, nil
}

func (s *fakeStore) ListImportedFiles(ctx context.Context, datasetID string) ([]core.ImportedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ImportedFile(nil), s.files[datasetID]...), nil
}

func (s *fakeStore) CommitImport(ctx context.Context, datasetID, fileName string, rows []core.ParsedTransaction) (core.ImportedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, commitCall{datasetID: datasetID, fileName: fileName, rows: len(rows)})
	file := core.ImportedFile{
		ID:               fmt.Sprintf("file-%d", len(s.commits)),
		FileName:         fileName,
		TransactionCount: len(rows),
		ImportedAt:       time.Now(),
	}
	s.files[datasetID] = append(s.files[datasetID], file)
	return file, nil
}

func (s *fakeStore) DeleteImport(ctx context.Context, datasetID, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, fileID)
	return nil
}

// fakeParser maps upload content verbatim to canned rows.
type fakeParser struct {
	rows map[string][]core.ParsedTransaction
	err  error
}

func (p *fakeParser) Parse(r io.Reader) ([]core.ParsedTransaction, error) {
	if p.err != nil {
		return nil, p.err
	}
	content, _ := io.ReadAll(r)
	return p.rows[string(content)], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	files []core.ImportedFile
	err   error
}

func (n *recordingNotifier) ImportCompleted(ctx context.Context, datasetID string, file core.ImportedFile) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.files = append(n.files, file)
	return n.err
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)
}

func newTestVM(store Store, parser FileParser, notifier ImportNotifier) *ViewModel {
	vm := New(store, parser, nil, notifier)
	vm.now = fixedNow
	return vm
}

func parsedRow(value float64) core.ParsedTransaction {
	return core.ParsedTransaction{
		Description:   "row",
		Type:          core.Revenue,
		Value:         value,
		Subcategory:   "Outros",
		PaymentMethod: "Pix",
		IssueDate:     "10/03/2025",
	}
}

func TestDatasetsArrivedEmpty(t *testing.T) {
	store := newFakeStore()
	vm := newTestVM(store, &fakeParser{}, nil)

	if err := vm.DatasetsArrived(context.Background(), nil); err != nil {
		t.Fatalf("DatasetsArrived: %v", err)
	}
	if vm.State() != StateEmpty {
		t.Errorf("state = %q, want %q", vm.State(), StateEmpty)
	}
	if vm.ActiveDataset() != "" {
		t.Errorf("active = %q, want empty", vm.ActiveDataset())
	}
	if r := vm.Result(); r.GrossRevenue != 0 || len(r.DailyRevenueXAxis) != 0 {
		t.Errorf("result not zeroed: %+v", r)
	}
	if len(store.queries) != 0 {
		t.Errorf("empty delivery must not query, got %d queries", len(store.queries))
	}
}

func TestDatasetsArrivedSelectsFirstWithDefaultRange(t *testing.T) {
	store := newFakeStore()
	store.datasets = []core.Dataset{{ID: "ds-a", Name: "A"}, {ID: "ds-b", Name: "B"}}
	store.results["ds-a"] = QueryResult{Revenues: []core.Transaction{
		{Type: core.Revenue, Value: 50, Subcategory: "X", PaymentMethod: "Pix", IssueDate: "10/03/2025"},
	}}
	vm := newTestVM(store, &fakeParser{}, nil)

	if err := vm.DatasetsArrived(context.Background(), store.datasets); err != nil {
		t.Fatalf("DatasetsArrived: %v", err)
	}
	if vm.State() != StateLoaded {
		t.Fatalf("state = %q, want %q", vm.State(), StateLoaded)
	}
	if vm.ActiveDataset() != "ds-a" {
		t.Errorf("active = %q, want ds-a", vm.ActiveDataset())
	}

	start, end := vm.DateRange()
	wantStart := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Errorf("range = %v..%v, want %v..%v", start, end, wantStart, wantEnd)
	}
	if vm.Result().GrossRevenue != 50 {
		t.Errorf("GrossRevenue = %v, want 50", vm.Result().GrossRevenue)
	}
}

func TestDatasetsArrivedKeepsLoadedSelection(t *testing.T) {
	store := newFakeStore()
	store.datasets = []core.Dataset{{ID: "ds-a", Name: "A"}}
	vm := newTestVM(store, &fakeParser{}, nil)

	ctx := context.Background()
	if err := vm.DatasetsArrived(ctx, store.datasets); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	queriesBefore := len(store.queries)

	// A later delivery with an extra dataset must not reload or reselect.
	more := append([]core.Dataset{{ID: "ds-new", Name: "New"}}, store.datasets...)
	if err := vm.DatasetsArrived(ctx, more); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if vm.ActiveDataset() != "ds-a" {
		t.Errorf("active = %q, want ds-a", vm.ActiveDataset())
	}
	if len(store.queries) != queriesBefore {
		t.Errorf("second delivery issued %d extra queries", len(store.queries)-queriesBefore)
	}
}

func TestSetFilterStaleResultDiscarded(t *testing.T) {
	store := newFakeStore()
	store.datasets = []core.Dataset{{ID: "ds-a", Name: "A"}}
	store.results["ds-a"] = QueryResult{Revenues: []core.Transaction{
		{Type: core.Revenue, Value: 10, Subcategory: "X", PaymentMethod: "Pix", IssueDate: "10/03/2025"},
	}}
	store.results["ds-b"] = QueryResult{Revenues: []core.Transaction{
		{Type: core.Revenue, Value: 999, Subcategory: "X", PaymentMethod: "Pix", IssueDate: "10/03/2025"},
	}}
	vm := newTestVM(store, &fakeParser{}, nil)

	ctx := context.Background()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)

	// First request blocks inside the store until released.
	gate := make(chan struct{})
	store.mu.Lock()
	store.queryGate = gate
	store.mu.Unlock()

	type outcome struct {
		result Result
		err    error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		result, err := vm.SetFilter(ctx, "ds-b", start, end)
		firstDone <- outcome{result: result, err: err}
	}()

	// Wait until the slow request is in flight.
	for {
		store.mu.Lock()
		inFlight := len(store.queries) == 1
		store.mu.Unlock()
		if inFlight {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// Second request supersedes the first and completes immediately.
	store.mu.Lock()
	store.queryGate = nil
	store.mu.Unlock()
	if _, err := vm.SetFilter(ctx, "ds-a", start, end); err != nil {
		t.Fatalf("second SetFilter: %v", err)
	}

	// Release the slow request; it must stay out of the shared state but
	// still hand its caller the aggregation of its own parameters.
	close(gate)
	first := <-firstDone
	if first.err != nil {
		t.Fatalf("first SetFilter: %v", first.err)
	}
	if first.result.GrossRevenue != 999 {
		t.Errorf("superseded call returned GrossRevenue = %v, want its own 999", first.result.GrossRevenue)
	}

	if vm.ActiveDataset() != "ds-a" {
		t.Errorf("active = %q, want ds-a (newest request wins)", vm.ActiveDataset())
	}
	if vm.Result().GrossRevenue != 10 {
		t.Errorf("GrossRevenue = %v, want 10 from the newest request", vm.Result().GrossRevenue)
	}
}

func TestSetFilterQueryErrorKeepsLastResult(t *testing.T) {
	store := newFakeStore()
	store.results["ds-a"] = QueryResult{Revenues: []core.Transaction{
		{Type: core.Revenue, Value: 42, Subcategory: "X", PaymentMethod: "Pix", IssueDate: "10/03/2025"},
	}}
	vm := newTestVM(store, &fakeParser{}, nil)

	ctx := context.Background()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	if _, err := vm.SetFilter(ctx, "ds-a", start, end); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}

	store.mu.Lock()
	store.queryErr = errors.New("db gone")
	store.mu.Unlock()

	if _, err := vm.SetFilter(ctx, "ds-a", start, end.AddDate(0, 0, 1)); err == nil {
		t.Fatal("expected error from failing query")
	}
	if vm.Result().GrossRevenue != 42 {
		t.Errorf("GrossRevenue = %v, want last good value 42", vm.Result().GrossRevenue)
	}
	if _, end := vm.DateRange(); !end.Equal(time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v, filter must not advance on failure", end)
	}
}

func TestSetFilterRequiresDataset(t *testing.T) {
	vm := newTestVM(newFakeStore(), &fakeParser{}, nil)
	_, err := vm.SetFilter(context.Background(), "", time.Time{}, time.Time{})
	if !errors.Is(err, ErrNoActiveDataset) {
		t.Errorf("err = %v, want ErrNoActiveDataset", err)
	}
}

func TestUploadFilesSkipsEmptyAndNotifies(t *testing.T) {
	store := newFakeStore()
	store.datasets = []core.Dataset{{ID: "ds-a", Name: "A"}}
	parser := &fakeParser{rows: map[string][]core.ParsedTransaction{
		"good": {parsedRow(10), parsedRow(20)},
		"void": nil,
	}}
	notifier := &recordingNotifier{}
	vm := newTestVM(store, parser, notifier)

	ctx := context.Background()
	if err := vm.DatasetsArrived(ctx, store.datasets); err != nil {
		t.Fatalf("DatasetsArrived: %v", err)
	}

	imported, err := vm.UploadFiles(ctx, []Upload{
		{Name: "empty.xlsx", Content: stringReader("void")},
		{Name: "sales.xlsx", Content: stringReader("good")},
	})
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if imported != 1 {
		t.Errorf("imported = %d, want 1 (zero-row file skipped)", imported)
	}
	if len(store.commits) != 1 || store.commits[0].fileName != "sales.xlsx" || store.commits[0].rows != 2 {
		t.Errorf("commits = %+v, want one commit of sales.xlsx with 2 rows", store.commits)
	}
	if len(notifier.files) != 1 || notifier.files[0].FileName != "sales.xlsx" {
		t.Errorf("notifications = %+v, want one for sales.xlsx", notifier.files)
	}
}

func TestUploadFilesAbortsOnParseFailure(t *testing.T) {
	store := newFakeStore()
	store.datasets = []core.Dataset{{ID: "ds-a", Name: "A"}}
	parser := &fakeParser{err: errors.New("corrupt workbook")}
	vm := newTestVM(store, parser, nil)

	ctx := context.Background()
	if err := vm.DatasetsArrived(ctx, store.datasets); err != nil {
		t.Fatalf("DatasetsArrived: %v", err)
	}

	imported, err := vm.UploadFiles(ctx, []Upload{
		{Name: "bad.xlsx", Content: stringReader("x")},
		{Name: "never-reached.xlsx", Content: stringReader("y")},
	})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if imported != 0 {
		t.Errorf("imported = %d, want 0", imported)
	}
	if len(store.commits) != 0 {
		t.Errorf("commits = %+v, want none", store.commits)
	}
}

func TestUploadFilesNotifierFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	store.datasets = []core.Dataset{{ID: "ds-a", Name: "A"}}
	parser := &fakeParser{rows: map[string][]core.ParsedTransaction{"good": {parsedRow(10)}}}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	vm := newTestVM(store, parser, notifier)

	ctx := context.Background()
	if err := vm.DatasetsArrived(ctx, store.datasets); err != nil {
		t.Fatalf("DatasetsArrived: %v", err)
	}

	imported, err := vm.UploadFiles(ctx, []Upload{{Name: "sales.xlsx", Content: stringReader("good")}})
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if imported != 1 {
		t.Errorf("imported = %d, want 1", imported)
	}
}

func TestUploadFilesEmptyBatch(t *testing.T) {
	store := newFakeStore()
	store.datasets = []core.Dataset{{ID: "ds-a", Name: "A"}}
	vm := newTestVM(store, &fakeParser{}, nil)

	ctx := context.Background()
	if err := vm.DatasetsArrived(ctx, store.datasets); err != nil {
		t.Fatalf("DatasetsArrived: %v", err)
	}
	if _, err := vm.UploadFiles(ctx, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestDeleteImportRequiresConfirmation(t *testing.T) {
	store := newFakeStore()
	store.datasets = []core.Dataset{{ID: "ds-a", Name: "A"}}
	vm := newTestVM(store, &fakeParser{}, nil)

	ctx := context.Background()
	if err := vm.DatasetsArrived(ctx, store.datasets); err != nil {
		t.Fatalf("DatasetsArrived: %v", err)
	}

	if err := vm.DeleteImport(ctx, "file-1", false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}
	if len(store.deletes) != 0 {
		t.Errorf("deletes = %v, want none before confirmation", store.deletes)
	}

	if err := vm.DeleteImport(ctx, "file-1", true); err != nil {
		t.Fatalf("confirmed delete: %v", err)
	}
	if len(store.deletes) != 1 || store.deletes[0] != "file-1" {
		t.Errorf("deletes = %v, want [file-1]", store.deletes)
	}
}

func TestCreateDatasetSelectsWhenNoneActive(t *testing.T) {
	store := newFakeStore()
	vm := newTestVM(store, &fakeParser{}, nil)

	ds, err := vm.CreateDataset(context.Background(), "Pousada")
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	if vm.ActiveDataset() != ds.ID {
		t.Errorf("active = %q, want %q", vm.ActiveDataset(), ds.ID)
	}
	if vm.State() != StateLoaded {
		t.Errorf("state = %q, want %q", vm.State(), StateLoaded)
	}
}

func TestCreateDatasetRejectsBlankName(t *testing.T) {
	vm := newTestVM(newFakeStore(), &fakeParser{}, nil)
	if _, err := vm.CreateDataset(context.Background(), "   "); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("err = %v, want ErrEmptyName", err)
	}
}

func stringReader(s string) io.Reader {
	return strings.NewReader(s)
}
