package amqp

import (
	"encoding/json"
	"time"
)

// ImportEvent announces one committed import batch. Consumers fetch any
// further detail from storage by file ID.
type ImportEvent struct {
	DatasetID        string    `json:"dataset_id"`
	FileID           string    `json:"file_id"`
	FileName         string    `json:"file_name"`
	TransactionCount int       `json:"transaction_count"`
	Timestamp        time.Time `json:"timestamp"`
}

func NewImportEvent(datasetID, fileID, fileName string, count int) *ImportEvent {
	return &ImportEvent{
		DatasetID:        datasetID,
		FileID:           fileID,
		FileName:         fileName,
		TransactionCount: count,
		Timestamp:        time.Now(),
	}
}

func (m *ImportEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ImportEventFromJSON(data []byte) (*ImportEvent, error) {
	var msg ImportEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
