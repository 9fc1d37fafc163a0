package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/tuannm99/novarel/internal/engine"
	"github.com/tuannm99/novarel/internal/security"
	"github.com/tuannm99/novarel/internal/sql/executor"
	"github.com/tuannm99/novarel/internal/sql/parser"
)

type queryRequest struct {
	SQL string `json:"sql"`
}

// statementResult is one entry of a multi-statement response.
type statementResult struct {
	Statement       string           `json:"statement"`
	Success         bool             `json:"success"`
	Message         string           `json:"message"`
	Data            []map[string]any `json:"data"`
	Table           *string          `json:"table"`
	Stats           *executor.Stats  `json:"stats,omitempty"`
	IsTableContents bool             `json:"is_table_contents,omitempty"`
}

type queryResponse struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	Data          any             `json:"data"`
	Columns       []string        `json:"columns,omitempty"`
	Stats         *executor.Stats `json:"stats,omitempty"`
	AffectedTable *string         `json:"affected_table"`
}

func failedQuery(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, queryResponse{Message: msg, Data: []any{}})
}

// handleQuery runs one or more ';'-separated statements. Every statement is
// screened before any of them runs. With several statements the response lists
// each result followed by the final contents of every table they touched.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		failedQuery(w, http.StatusBadRequest, err.Error())
		return
	}

	stmts := parser.SplitStatements(req.SQL)
	if len(stmts) == 0 {
		failedQuery(w, http.StatusBadRequest, "No SQL provided")
		return
	}

	if s.cfg.ValidateSQL {
		for _, stmt := range stmts {
			if err := security.ValidateStatement(stmt, s.cfg.MaxSQLLength); err != nil {
				failedQuery(w, http.StatusBadRequest, "Security validation failed: "+err.Error())
				return
			}
		}
	}

	results := make([]statementResult, 0, len(stmts))
	var (
		affected []string
		lastErr  error
		lastRes  *executor.Result
	)
	for _, sql := range stmts {
		res, table, err := s.execOne(sql)
		lastRes, lastErr = res, err
		if table != "" && !slices.Contains(affected, table) {
			affected = append(affected, table)
		}

		entry := statementResult{Statement: sql, Data: []map[string]any{}}
		switch {
		case err != nil:
			entry.Message = err.Error()
		default:
			entry.Success = res.Success
			entry.Message = res.Message
			entry.Data = res.Data
			entry.Stats = &res.Stats
			if table != "" {
				entry.Table = &table
			}
		}
		results = append(results, entry)
	}

	var affectedTable *string
	if len(affected) > 0 {
		affectedTable = &affected[0]
	}

	if len(results) == 1 {
		resp := queryResponse{
			Success:       results[0].Success,
			Message:       results[0].Message,
			Data:          results[0].Data,
			Stats:         results[0].Stats,
			AffectedTable: affectedTable,
		}
		status := http.StatusOK
		if lastErr != nil {
			status = statusFor(lastErr)
		} else {
			resp.Columns = lastRes.Columns
			if !lastRes.Success {
				status = statusFor(lastRes.Err)
			}
		}
		writeJSON(w, status, resp)
		return
	}

	allOK := true
	for _, res := range results {
		allOK = allOK && res.Success
	}
	results = append(results, s.tableContents(affected)...)

	writeJSON(w, http.StatusOK, queryResponse{
		Success:       allOK,
		Message:       fmt.Sprintf("Executed %d statements", len(stmts)),
		Data:          results,
		AffectedTable: affectedTable,
	})
}

// execOne parses and runs sql, returning the table the statement names.
func (s *Server) execOne(sql string) (*executor.Result, string, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		slog.Debug("http: parse error", "sql", sql, "err", err)
		return nil, "", err
	}
	res, err := s.db.ExecStatement(stmt)
	if err != nil {
		return nil, "", err
	}
	return res, statementTable(stmt), nil
}

func statementTable(stmt parser.Statement) string {
	switch st := stmt.(type) {
	case *parser.CreateTableStmt:
		return st.TableName
	case *parser.InsertStmt:
		return st.TableName
	case *parser.SelectStmt:
		return st.TableName
	case *parser.UpdateStmt:
		return st.TableName
	case *parser.DeleteStmt:
		return st.TableName
	case *parser.DropTableStmt:
		return st.TableName
	default:
		return ""
	}
}

func (s *Server) tableContents(tables []string) []statementResult {
	var out []statementResult
	err := s.db.View(func(db *engine.Database) error {
		for _, name := range tables {
			tbl, ok := db.GetTable(name)
			if !ok || tbl.Len() == 0 {
				continue
			}
			rows := make([]map[string]any, 0, tbl.Len())
			for _, en := range tbl.Scan() {
				rows = append(rows, en.Row)
			}
			out = append(out, statementResult{
				Statement:       "-- Final contents of " + name,
				Success:         true,
				Message:         fmt.Sprintf("Table '%s' has %d row(s)", name, len(rows)),
				Data:            rows,
				Table:           &name,
				IsTableContents: true,
			})
		}
		return nil
	})
	if err != nil && !errors.Is(err, engine.ErrDatabaseClosed) {
		slog.Error("http: read table contents", "err", err)
	}
	return out
}
