package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/tuannm99/novarel/internal/engine"
	"github.com/tuannm99/novarel/internal/export"
	"github.com/tuannm99/novarel/internal/heap"
	"github.com/tuannm99/novarel/internal/record"
	"github.com/tuannm99/novarel/internal/security"
)

type tableInfo struct {
	Name     string          `json:"name"`
	RowCount int             `json:"row_count"`
	Columns  []record.Column `json:"columns"`
}

type mutationResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	ID      *record.RowID `json:"id,omitempty"`
}

func (s *Server) handleListTables(w http.ResponseWriter, _ *http.Request) {
	tables := []tableInfo{}
	err := s.db.View(func(db *engine.Database) error {
		for _, name := range db.ListTables() {
			tbl, ok := db.GetTable(name)
			if !ok {
				continue
			}
			tables = append(tables, tableInfo{
				Name:     name,
				RowCount: tbl.Len(),
				Columns:  append([]record.Column(nil), tbl.Schema.Columns...),
			})
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func rowsOf(entries []heap.Entry) []record.Row {
	out := make([]record.Row, len(entries))
	for i, en := range entries {
		out[i] = en.Row
	}
	return out
}

// handleListRows returns every row, or with ?column=&value= the rows where column equals value.
func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	column := r.URL.Query().Get("column")
	raw := r.URL.Query().Get("value")

	var rows []record.Row
	err := s.db.View(func(db *engine.Database) error {
		tbl, err := db.Table(r.PathValue("table"))
		if err != nil {
			return err
		}
		if column == "" {
			rows = rowsOf(tbl.Scan())
			return nil
		}

		c := tbl.Schema.Column(column)
		if c == nil {
			return fmt.Errorf("%w: %s", record.ErrUnknownColumn, column)
		}
		v, err := c.Cast(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		entries, err := tbl.Filter(column, record.OpEq, v)
		if err != nil {
			return err
		}
		rows = rowsOf(entries)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// castBody converts a decoded JSON object into a typed row for tbl.
func (s *Server) castBody(tbl *heap.Table, body map[string]any) (record.Row, error) {
	row := make(record.Row, len(body))
	for name, raw := range body {
		c := tbl.Schema.Column(name)
		if c == nil {
			return nil, fmt.Errorf("%w: %s", record.ErrUnknownColumn, name)
		}
		v, err := c.Cast(raw)
		if err != nil {
			return nil, err
		}
		if str, ok := v.(string); ok {
			v = strings.TrimSpace(str)
			if s.cfg.ValidateSQL {
				if err := security.ValidateString(v, name, security.DefaultStringLimits); err != nil {
					return nil, err
				}
			}
		}
		row[name] = v
	}
	return row, nil
}

func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	var resp mutationResponse
	err := s.db.Update(func(db *engine.Database) error {
		tbl, err := db.Table(r.PathValue("table"))
		if err != nil {
			return err
		}
		row, err := s.castBody(tbl, body)
		if err != nil {
			return err
		}
		id, pos, err := tbl.Insert(row)
		if err != nil {
			return err
		}
		if err := db.SaveTable(tbl.Name); err != nil {
			_ = tbl.Delete(id)
			return fmt.Errorf("insert rolled back: %w", err)
		}
		resp = mutationResponse{Success: true, Message: fmt.Sprintf("1 row inserted (ID: %d)", pos), ID: &id}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// rowByKey resolves the {key} path segment through the primary key index.
func rowByKey(db *engine.Database, r *http.Request) (*heap.Table, record.RowID, error) {
	tbl, err := db.Table(r.PathValue("table"))
	if err != nil {
		return nil, 0, err
	}
	pk := tbl.Schema.PrimaryKey()
	if pk == nil {
		return nil, 0, fmt.Errorf("%w: table %s has no primary key", errBadRequest, tbl.Name)
	}
	key, err := pk.Cast(r.PathValue("key"))
	if err != nil {
		return nil, 0, err
	}
	id, ok := tbl.RowIDByPrimaryKey(key)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s=%v", heap.ErrRowNotFound, pk.Name, key)
	}
	return tbl, id, nil
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	var row record.Row
	err := s.db.View(func(db *engine.Database) error {
		tbl, id, err := rowByKey(db, r)
		if err != nil {
			return err
		}
		row, _ = tbl.Get(id)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	err := s.db.Update(func(db *engine.Database) error {
		tbl, id, err := rowByKey(db, r)
		if err != nil {
			return err
		}
		updates, err := s.castBody(tbl, body)
		if err != nil {
			return err
		}
		if err := tbl.Update(id, updates); err != nil {
			return err
		}
		return db.SaveTable(tbl.Name)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "1 row(s) updated"})
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	err := s.db.Update(func(db *engine.Database) error {
		tbl, id, err := rowByKey(db, r)
		if err != nil {
			return err
		}
		if err := tbl.Delete(id); err != nil {
			return err
		}
		return db.SaveTable(tbl.Name)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "1 row(s) deleted"})
}

var contentTypes = map[export.Format]string{
	export.FormatCSV:  "text/csv",
	export.FormatTSV:  "text/tab-separated-values",
	export.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// handleExport streams a table as ?format=csv|tsv|xlsx with optional ?compression=gz|xz|zstd.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	compression, err := export.ParseCompression(r.URL.Query().Get("compression"))
	if err != nil {
		writeError(w, err)
		return
	}
	opts := export.NewDumpOptions().WithFormat(format).WithCompression(compression)

	var (
		buf  bytes.Buffer
		name string
	)
	err = s.db.View(func(db *engine.Database) error {
		tbl, err := db.Table(r.PathValue("table"))
		if err != nil {
			return err
		}
		name = tbl.Name
		return export.WriteTable(&buf, tbl, opts)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	ct := contentTypes[format]
	if compression != export.CompressionNone {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, name, opts.FileExtension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
