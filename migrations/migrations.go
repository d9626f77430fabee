// Package migrations содержит схему БД, встроенную в бинарник.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed *.sql
var files embed.FS

// Files возвращает имена файлов миграций в порядке применения
func Files() ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Up применяет все миграции по порядку.
// Схема использует IF NOT EXISTS, повторный запуск безопасен.
func Up(ctx context.Context, db *sql.DB) error {
	names, err := Files()
	if err != nil {
		return err
	}

	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}
