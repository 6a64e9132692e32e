package fixture

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/kbukum/dbscope/database"
	"github.com/kbukum/dbscope/errors"
	"github.com/kbukum/dbscope/logger"
)

// DefaultDirs are searched for bare fixture names when a Loader has no Dirs.
var DefaultDirs = []string{"fixtures", "testdata/fixtures", "testdata"}

// Loader resolves fixture references and inserts their records.
type Loader struct {
	// Dirs are searched in order for references that are not found as
	// given.
	Dirs []string

	// FS, when set, is searched instead of the OS filesystem.
	FS fs.FS

	// PKColumn receives a record's pk. Defaults to "id".
	PKColumn string

	Logger *logger.Logger
}

// NewLoader creates a loader over the OS filesystem searching dirs.
func NewLoader(dirs ...string) *Loader {
	return &Loader{Dirs: dirs}
}

// NewFSLoader creates a loader over fsys searching dirs.
func NewFSLoader(fsys fs.FS, dirs ...string) *Loader {
	return &Loader{FS: fsys, Dirs: dirs}
}

func (l *Loader) pkColumn() string {
	if l.PKColumn == "" {
		return "id"
	}
	return l.PKColumn
}

func (l *Loader) log() *logger.Logger {
	if l.Logger == nil {
		return logger.Get("fixture")
	}
	return l.Logger
}

func (l *Loader) dirs() []string {
	if len(l.Dirs) == 0 {
		return DefaultDirs
	}
	return l.Dirs
}

// Resolve returns the file a reference points at. A reference is a path or
// a bare name, with or without one of Extensions.
func (l *Loader) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", errors.FixtureLoadFailed(ref, fmt.Errorf("empty fixture reference"))
	}

	names := []string{ref}
	if !hasExtension(ref) {
		names = names[:0]
		for _, ext := range Extensions {
			names = append(names, ref+ext)
		}
	}

	candidates := append([]string(nil), names...)
	if !filepath.IsAbs(ref) {
		for _, dir := range l.dirs() {
			for _, name := range names {
				candidates = append(candidates, l.join(dir, name))
			}
		}
	}

	for _, c := range candidates {
		if l.isFile(c) {
			return c, nil
		}
	}
	return "", errors.FixtureLoadFailed(ref, errors.NotFound("fixture", ref)).
		WithDetail("searched", candidates)
}

// Read resolves ref and parses the file it points at.
func (l *Loader) Read(ref string) ([]Record, error) {
	file, err := l.Resolve(ref)
	if err != nil {
		return nil, err
	}

	var data []byte
	if l.FS != nil {
		data, err = fs.ReadFile(l.FS, file)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, errors.FixtureLoadFailed(ref, err).WithDetail("file", file)
	}

	records, err := Parse(file, data)
	if err != nil {
		return nil, errors.FixtureLoadFailed(ref, err).WithDetail("file", file)
	}
	return records, nil
}

// Load inserts the records of every reference, in order, in one
// transaction. Every reference is read before anything is written. It
// returns the number of records inserted; on failure nothing is kept.
func (l *Loader) Load(ctx context.Context, db *gorm.DB, refs ...string) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}

	files := make([][]Record, len(refs))
	for i, ref := range refs {
		records, err := l.Read(ref)
		if err != nil {
			return 0, err
		}
		files[i] = records
	}

	total := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == database.DriverSQLite {
			if err := tx.Exec("PRAGMA defer_foreign_keys = ON").Error; err != nil {
				return errors.FixtureLoadFailed(refs[0], err)
			}
		}

		touched := make(map[string]map[string]bool)
		for i, ref := range refs {
			for n, r := range files[i] {
				row := l.row(r)
				if err := tx.Table(r.Model).Create(row).Error; err != nil {
					return errors.FixtureLoadFailed(ref, err).
						WithDetail("record", n).
						WithDetail("model", r.Model)
				}
				if touched[r.Model] == nil {
					touched[r.Model] = make(map[string]bool)
				}
				for column := range row {
					touched[r.Model][column] = true
				}
			}
			total += len(files[i])
			l.log().Debug("Fixture loaded", logger.Fields(
				logger.FieldFixture, ref,
				logger.FieldRows, len(files[i]),
			))
		}

		for table, columns := range touched {
			names := make([]string, 0, len(columns))
			for c := range columns {
				names = append(names, c)
			}
			if err := database.ResetSequences(tx, table, names...); err != nil {
				return errors.FixtureLoadFailed(table, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.IsAppError(err) {
			return 0, err
		}
		// deferred constraint checks fail at commit
		return 0, errors.FixtureLoadFailed(strings.Join(refs, ", "), err)
	}
	return total, nil
}

func (l *Loader) row(r Record) map[string]interface{} {
	row := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		row[k] = v
	}
	if r.PK != nil {
		row[l.pkColumn()] = r.PK
	}
	return row
}

func (l *Loader) join(dir, name string) string {
	if l.FS != nil {
		return path.Join(dir, name)
	}
	return filepath.Join(dir, name)
}

func (l *Loader) isFile(name string) bool {
	var (
		info fs.FileInfo
		err  error
	)
	if l.FS != nil {
		if !fs.ValidPath(name) {
			return false
		}
		info, err = fs.Stat(l.FS, name)
	} else {
		info, err = os.Stat(name)
	}
	return err == nil && !info.IsDir()
}

func hasExtension(ref string) bool {
	ext := strings.ToLower(path.Ext(ref))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
