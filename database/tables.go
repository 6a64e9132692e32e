package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Tables returns the user tables of db, sorted, without the entries in exclude.
func Tables(ctx context.Context, db *gorm.DB, exclude ...string) ([]string, error) {
	all, err := db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	skip := make(map[string]bool, len(exclude))
	for _, t := range exclude {
		skip[t] = true
	}

	tables := make([]string, 0, len(all))
	for _, t := range all {
		if skip[t] || strings.HasPrefix(t, "sqlite_") {
			continue
		}
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables, nil
}

// TableExists reports whether table exists in db.
func TableExists(ctx context.Context, db *gorm.DB, table string) bool {
	return db.WithContext(ctx).Migrator().HasTable(table)
}

// CountRows returns the number of rows in table.
func CountRows(ctx context.Context, db *gorm.DB, table string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Table(table).Count(&count).Error
	return count, err
}

// TruncateTables empties tables and resets their identity counters. Foreign
// keys between the tables do not need to be ordered.
func TruncateTables(ctx context.Context, db *gorm.DB, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return truncate(tx, tables)
	})
}

func truncate(tx *gorm.DB, tables []string) error {
	if tx.Dialector.Name() == DriverPostgres {
		quoted := make([]string, len(tables))
		for i, t := range tables {
			quoted[i] = quote(tx, t)
		}
		return tx.Exec("TRUNCATE TABLE " + strings.Join(quoted, ", ") + " RESTART IDENTITY CASCADE").Error
	}

	if err := tx.Exec("PRAGMA defer_foreign_keys = ON").Error; err != nil {
		return err
	}
	for _, t := range tables {
		if err := tx.Exec("DELETE FROM " + quote(tx, t)).Error; err != nil {
			return fmt.Errorf("truncate %s: %w", t, err)
		}
	}
	if tx.Migrator().HasTable("sqlite_sequence") {
		return tx.Exec("DELETE FROM sqlite_sequence WHERE name IN ?", tables).Error
	}
	return nil
}

// TableSnapshot holds the rows of a set of tables.
type TableSnapshot struct {
	Tables []string
	Rows   map[string][]map[string]interface{}
}

// SnapshotTables reads every row of every table except exclude.
func SnapshotTables(ctx context.Context, db *gorm.DB, exclude ...string) (*TableSnapshot, error) {
	tables, err := Tables(ctx, db, exclude...)
	if err != nil {
		return nil, err
	}

	snap := &TableSnapshot{Tables: tables, Rows: make(map[string][]map[string]interface{}, len(tables))}
	for _, t := range tables {
		var rows []map[string]interface{}
		if err := db.WithContext(ctx).Table(t).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", t, err)
		}
		snap.Rows[t] = rows
	}
	return snap, nil
}

// RestoreTables replaces the contents of the snapshot's tables with the
// snapshot rows.
func RestoreTables(ctx context.Context, db *gorm.DB, snap *TableSnapshot) error {
	if snap == nil {
		return fmt.Errorf("restore tables: nil snapshot")
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := truncate(tx, snap.Tables); err != nil {
			return err
		}
		for _, t := range snap.Tables {
			rows := snap.Rows[t]
			if len(rows) == 0 {
				continue
			}
			if err := tx.Table(t).CreateInBatches(rows, 100).Error; err != nil {
				return fmt.Errorf("restore %s: %w", t, err)
			}
			columns := make([]string, 0, len(rows[0]))
			for column := range rows[0] {
				columns = append(columns, column)
			}
			if err := ResetSequences(tx, t, columns...); err != nil {
				return fmt.Errorf("restore %s: %w", t, err)
			}
		}
		return nil
	})
}

// ResetSequences moves the postgres serial sequences behind columns of
// table past the largest stored value. Other dialects are left alone.
func ResetSequences(tx *gorm.DB, table string, columns ...string) error {
	if tx.Dialector.Name() != DriverPostgres {
		return nil
	}
	for _, column := range columns {
		var seq sql.NullString
		if err := tx.Raw("SELECT pg_get_serial_sequence(?, ?)", table, column).Row().Scan(&seq); err != nil {
			return err
		}
		if !seq.Valid || seq.String == "" {
			continue
		}
		stmt := fmt.Sprintf("SELECT setval(?, COALESCE((SELECT MAX(%s) FROM %s), 0) + 1, false)",
			quote(tx, column), quote(tx, table))
		if err := tx.Exec(stmt, seq.String).Error; err != nil {
			return err
		}
	}
	return nil
}

func quote(db *gorm.DB, name string) string {
	var b strings.Builder
	db.Dialector.QuoteTo(&b, name)
	return b.String()
}
