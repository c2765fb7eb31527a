package dashboard

import (
	"context"
	"io"
	"time"

	"findash/internal/core"
)

// Ports for the collaborators the view model is wired with. Implementations
// are passed into New explicitly, never looked up ambiently.
type (
	// QueryResult is a transaction query split by type.
	QueryResult struct {
		Revenues []core.Transaction
		Expenses []core.Transaction
	}

	// Store is the transaction store contract. The end bound of
	// QueryTransactions is inclusive: the whole end day belongs to the
	// range.
	Store interface {
		ListDatasets(ctx context.Context) ([]core.Dataset, error)
		CreateDataset(ctx context.Context, name string) (core.Dataset, error)
		QueryTransactions(ctx context.Context, datasetID string, start, end time.Time) (QueryResult, error)
		ListImportedFiles(ctx context.Context, datasetID string) ([]core.ImportedFile, error)
		// CommitImport writes the batch record and all rows atomically.
		CommitImport(ctx context.Context, datasetID, fileName string, rows []core.ParsedTransaction) (core.ImportedFile, error)
		// DeleteImport removes the batch record and every transaction
		// carrying its file ID as one unit.
		DeleteImport(ctx context.Context, datasetID, fileID string) error
	}

	// FileParser turns an uploaded spreadsheet into transaction rows.
	FileParser interface {
		Parse(r io.Reader) ([]core.ParsedTransaction, error)
	}

	// ChartRenderer accepts declarative chart payloads and owns its own
	// redraw lifecycle.
	ChartRenderer interface {
		Render(charts ChartSet)
	}

	// ImportNotifier is told about committed import batches. Optional:
	// a nil notifier disables notifications.
	ImportNotifier interface {
		ImportCompleted(ctx context.Context, datasetID string, file core.ImportedFile) error
	}
)
