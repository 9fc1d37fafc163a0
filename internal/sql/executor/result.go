package executor

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/tuannm99/novarel/internal/record"
)

// Result is the structured outcome of one statement. Execution failures are reported
// here with Success=false; they are never returned as Go errors.
type Result struct {
	Success bool             `json:"success"`
	Columns []string         `json:"columns,omitempty"`
	Data    []map[string]any `json:"data"`
	Message string           `json:"message"`
	Stats   Stats            `json:"stats"`

	// For DML:
	RowsAffected int           `json:"rows_affected,omitempty"`
	LastInsertID *record.RowID `json:"last_insert_id,omitempty"`

	// Err is the failure behind Message, kept for errors.Is checks by callers.
	Err error `json:"-"`
}

type Stats struct {
	RowsScanned   int
	RowsReturned  int
	IndexUsed     *string
	ExecutionTime time.Duration
}

type statsJSON struct {
	RowsScanned     int     `json:"rows_scanned"`
	RowsReturned    int     `json:"rows_returned"`
	IndexUsed       *string `json:"index_used"`
	ExecutionTimeMS float64 `json:"execution_time_ms"`
}

func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsJSON{
		RowsScanned:     s.RowsScanned,
		RowsReturned:    s.RowsReturned,
		IndexUsed:       s.IndexUsed,
		ExecutionTimeMS: float64(s.ExecutionTime) / float64(time.Millisecond),
	})
}

func (s *Stats) UnmarshalJSON(b []byte) error {
	var raw statsJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Stats{
		RowsScanned:   raw.RowsScanned,
		RowsReturned:  raw.RowsReturned,
		IndexUsed:     raw.IndexUsed,
		ExecutionTime: time.Duration(raw.ExecutionTimeMS * float64(time.Millisecond)),
	}
	return nil
}

func success(msg string) *Result {
	return &Result{Success: true, Data: []map[string]any{}, Message: msg}
}

func failure(err error) *Result {
	return &Result{Success: false, Data: []map[string]any{}, Message: err.Error(), Err: err}
}
