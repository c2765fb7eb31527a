package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"findash/internal/core"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateEmpty         State = "empty"
	StateLoaded        State = "loaded"
)

var (
	ErrNoActiveDataset      = errors.New("no active dataset")
	ErrConfirmationRequired = errors.New("deletion requires confirmation")
	ErrEmptyBatch           = errors.New("empty upload batch")
)

// Upload is one file of an upload batch.
type Upload struct {
	Name    string
	Content io.Reader
}

// ViewModel keeps the derived dashboard state consistent across dataset
// arrival, filter changes and file uploads. All collaborators are injected.
type ViewModel struct {
	store    Store
	parser   FileParser
	renderer ChartRenderer
	notifier ImportNotifier

	now func() time.Time

	mu       sync.Mutex
	seq      uint64 // latest issued load sequence
	state    State
	datasets []core.Dataset
	active   string
	start    time.Time
	end      time.Time
	result   Result
	files    []core.ImportedFile
}

// New wires a view model. The notifier may be nil.
func New(store Store, parser FileParser, renderer ChartRenderer, notifier ImportNotifier) *ViewModel {
	return &ViewModel{
		store:    store,
		parser:   parser,
		renderer: renderer,
		notifier: notifier,
		now:      time.Now,
		state:    StateUninitialized,
	}
}

// DatasetsArrived handles a dataset-list delivery. The first non-empty
// delivery selects the first dataset and loads the default range
// (first of the current month through today). An empty delivery resets
// everything to zero without attempting a load.
func (vm *ViewModel) DatasetsArrived(ctx context.Context, datasets []core.Dataset) error {
	vm.mu.Lock()
	vm.datasets = datasets

	if len(datasets) == 0 {
		vm.state = StateEmpty
		vm.active = ""
		vm.result = Result{}
		vm.files = nil
		vm.mu.Unlock()
		vm.render(Result{})
		return nil
	}

	if vm.state == StateLoaded {
		vm.mu.Unlock()
		return nil
	}

	active := datasets[0].ID
	start, end := vm.defaultRange()
	vm.mu.Unlock()

	_, err := vm.SetFilter(ctx, active, start, end)
	return err
}

// SetFilter switches the active dataset and/or date range and reloads.
// The end date is inclusive. The returned Result is always the aggregation
// computed for THIS call's parameters; when a newer filter request was
// issued while this one was in flight, the view model's shared state keeps
// the newest request's values but the caller still gets its own result, so
// it never has to answer with another filter's numbers.
func (vm *ViewModel) SetFilter(ctx context.Context, datasetID string, start, end time.Time) (Result, error) {
	if datasetID == "" {
		return Result{}, ErrNoActiveDataset
	}

	vm.mu.Lock()
	vm.seq++
	seq := vm.seq
	vm.mu.Unlock()

	res, err := vm.store.QueryTransactions(ctx, datasetID, start, end)
	if err != nil {
		// Keep the last loaded values; an empty dashboard would read
		// as a true zero result.
		return Result{}, fmt.Errorf("query transactions: %w", err)
	}

	files, err := vm.store.ListImportedFiles(ctx, datasetID)
	if err != nil {
		return Result{}, fmt.Errorf("list imported files: %w", err)
	}

	agg := Aggregate(res.Revenues, res.Expenses)

	vm.mu.Lock()
	if seq != vm.seq {
		// A newer filter request was issued while this one was in
		// flight; it must not overwrite the newer state.
		vm.mu.Unlock()
		slog.DebugContext(ctx, "Superseded dashboard load kept out of shared state", "seq", seq)
		return agg, nil
	}
	vm.state = StateLoaded
	vm.active = datasetID
	vm.start = start
	vm.end = end
	vm.result = agg
	vm.files = files
	vm.mu.Unlock()

	vm.render(agg)
	return agg, nil
}

// SelectDataset switches the active dataset, keeping the current date
// range when one is loaded and falling back to the default range otherwise.
func (vm *ViewModel) SelectDataset(ctx context.Context, datasetID string) error {
	vm.mu.Lock()
	start, end := vm.start, vm.end
	active, state := vm.active, vm.state
	vm.mu.Unlock()

	if active == datasetID && state == StateLoaded {
		return nil
	}
	if state != StateLoaded {
		start, end = vm.defaultRange()
	}
	_, err := vm.SetFilter(ctx, datasetID, start, end)
	return err
}

// Refresh re-runs the current filter.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	vm.mu.Lock()
	active, start, end := vm.active, vm.start, vm.end
	vm.mu.Unlock()
	if active == "" {
		return ErrNoActiveDataset
	}
	_, err := vm.SetFilter(ctx, active, start, end)
	return err
}

// UploadFiles parses and persists an upload batch, strictly one file at a
// time. Files yielding zero valid rows are skipped without error. The first
// parse or commit failure aborts the remaining files; batches already
// committed stay committed. Returns the number of files imported.
func (vm *ViewModel) UploadFiles(ctx context.Context, uploads []Upload) (int, error) {
	vm.mu.Lock()
	active := vm.active
	vm.mu.Unlock()
	if active == "" {
		return 0, ErrNoActiveDataset
	}
	if len(uploads) == 0 {
		return 0, ErrEmptyBatch
	}

	imported := 0
	for _, up := range uploads {
		rows, err := vm.parser.Parse(up.Content)
		if err != nil {
			return imported, fmt.Errorf("parse %s: %w", up.Name, err)
		}
		if len(rows) == 0 {
			slog.InfoContext(ctx, "Skipping file with no valid rows", "file", up.Name)
			continue
		}

		file, err := vm.store.CommitImport(ctx, active, up.Name, rows)
		if err != nil {
			return imported, fmt.Errorf("commit %s: %w", up.Name, err)
		}
		imported++

		slog.InfoContext(ctx, "Import committed",
			"dataset", active,
			"file", file.FileName,
			"rows", file.TransactionCount)

		if vm.notifier != nil {
			if err := vm.notifier.ImportCompleted(ctx, active, file); err != nil {
				slog.WarnContext(ctx, "Import notification failed", "file", file.FileName, "error", err)
			}
		}
	}

	if imported > 0 {
		if err := vm.Refresh(ctx); err != nil {
			return imported, err
		}
	}
	return imported, nil
}

// DeleteImport cascades a file and its transactions after explicit
// confirmation, then refreshes the files list and the dashboard.
func (vm *ViewModel) DeleteImport(ctx context.Context, fileID string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	vm.mu.Lock()
	active := vm.active
	vm.mu.Unlock()
	if active == "" {
		return ErrNoActiveDataset
	}

	if err := vm.store.DeleteImport(ctx, active, fileID); err != nil {
		return fmt.Errorf("delete import: %w", err)
	}
	return vm.Refresh(ctx)
}

// CreateDataset creates a dataset and, when none was active yet, selects it.
func (vm *ViewModel) CreateDataset(ctx context.Context, name string) (core.Dataset, error) {
	ds := core.Dataset{Name: name}
	if err := ds.Validate(); err != nil {
		return core.Dataset{}, err
	}

	created, err := vm.store.CreateDataset(ctx, name)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("create dataset: %w", err)
	}

	vm.mu.Lock()
	vm.datasets = append(vm.datasets, created)
	needsSelect := vm.active == ""
	vm.mu.Unlock()

	if needsSelect {
		start, end := vm.defaultRange()
		if _, err := vm.SetFilter(ctx, created.ID, start, end); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (vm *ViewModel) State() State {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state
}

func (vm *ViewModel) Result() Result {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.result
}

func (vm *ViewModel) ActiveDataset() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.active
}

func (vm *ViewModel) DateRange() (start, end time.Time) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.start, vm.end
}

func (vm *ViewModel) ImportedFiles() []core.ImportedFile {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	files := make([]core.ImportedFile, len(vm.files))
	copy(files, vm.files)
	return files
}

func (vm *ViewModel) render(r Result) {
	if vm.renderer != nil {
		vm.renderer.Render(BuildCharts(r))
	}
}

func (vm *ViewModel) defaultRange() (time.Time, time.Time) {
	now := vm.now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, end
}
