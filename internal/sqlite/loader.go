package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// loadAllJSONL reads every JSONL file under dataDir into the fresh database.
// Loading is transactional: either every file loads or the database stays
// empty. Malformed lines, rows without a key and rows that violate a
// constraint are skipped; unknown fields are ignored.
func loadAllJSONL(db *sql.DB, dataDir string, logger *zap.Logger) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, spec := range flatSpecs {
		if err := loadFile(tx, spec, filepath.Join(dataDir, spec.file), logger); err != nil {
			return err
		}
	}

	partitions, err := filepath.Glob(filepath.Join(dataDir, transactionsDir, "*", "*.jsonl"))
	if err != nil {
		return fmt.Errorf("listing month partitions: %w", err)
	}
	for _, path := range partitions {
		if err := loadFile(tx, transactionsSpec, path, logger); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// loadFile inserts the records of one JSONL file.
func loadFile(tx *sql.Tx, spec tableSpec, path string, logger *zap.Logger) error {
	records, malformed, err := readJSONL(path)
	if err != nil {
		return err
	}
	if malformed > 0 {
		logger.Debug("skipped malformed JSONL lines", zap.String("file", path), zap.Int("count", malformed))
	}
	if len(records) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(spec.columns)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.table, strings.Join(spec.columns, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", spec.table, err)
	}
	defer stmt.Close()

	skipped := 0
	for _, rec := range records {
		args, ok := recordArgs(spec, rec)
		if !ok {
			skipped++
			continue
		}
		if _, err := stmt.Exec(args...); err != nil {
			skipped++
			continue
		}
	}
	if skipped > 0 {
		logger.Debug("skipped JSONL records", zap.String("file", path), zap.Int("count", skipped))
	}
	return nil
}

// recordArgs converts a JSONL record into insert arguments in column order.
// Missing text columns load as "" and missing integer columns as 0.
func recordArgs(spec tableSpec, rec json.RawMessage) ([]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(rec))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if key, _ := obj[spec.key].(string); key == "" {
		return nil, false
	}

	// Partition rows written by hand may omit the derived month.
	if spec.table == transactionsSpec.table {
		if m, _ := obj["month"].(string); m == "" {
			if d, _ := obj["date"].(string); len(d) >= 7 {
				obj["month"] = d[:7]
			}
		}
	}

	args := make([]any, len(spec.columns))
	for i, col := range spec.columns {
		v := obj[col]
		if spec.ints[col] {
			n, err := toInt(v)
			if err != nil {
				return nil, false
			}
			args[i] = n
			continue
		}
		switch tv := v.(type) {
		case nil:
			args[i] = ""
		case string:
			args[i] = tv
		case json.Number:
			args[i] = tv.String()
		default:
			args[i] = fmt.Sprint(tv)
		}
	}
	return args, true
}

func toInt(v any) (int64, error) {
	switch tv := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		return tv.Int64()
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}
