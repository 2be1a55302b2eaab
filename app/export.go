package app

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/aloewind/exportremix-sub001/app/models"

	"github.com/gin-gonic/gin"
)

const maxExportRows = 10000

type csvFile struct {
	name string
	data []byte
}

func (f csvFile) write(c *gin.Context) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", f.data)
}

func validateExport(req *models.ExportRequest) error {
	if len(req.Rows) == 0 {
		return badInput("rows are required")
	}
	if len(req.Rows) > maxExportRows {
		return badInput(fmt.Sprintf("at most %d rows can be exported", maxExportRows))
	}
	return nil
}

func (s *Server) exportCSV(_ *gin.Context, _ models.Account, req *models.ExportRequest) (any, error) {
	data, err := renderCSV(req.Rows)
	if err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}
	return csvFile{name: exportFilename(req.Filename), data: data}, nil
}

func exportFilename(name string) string {
	name = path.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
	name = strings.TrimSuffix(name, ".csv")
	if name == "" || name == "." || name == "_" {
		name = "manifest-export"
	}
	return name + ".csv"
}

// exportColumns orders known manifest fields first, then any other keys
// alphabetically.
func exportColumns(rows []map[string]any) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for _, name := range models.ManifestFieldNames {
		if seen[name] {
			cols = append(cols, name)
			delete(seen, name)
		}
	}
	rest := make([]string, 0, len(seen))
	for k := range seen {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

func renderCSV(rows []map[string]any) ([]byte, error) {
	cols := exportColumns(rows)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	record := make([]string, len(cols))
	for _, row := range rows {
		for i, col := range cols {
			record[i] = csvCell(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// csvCell renders a value and neutralises spreadsheet formula prefixes.
func csvCell(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		s = string(b)
	}
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			s = "'" + s
		}
	}
	return s
}
