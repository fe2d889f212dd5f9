package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/Asw1n/advancedwind/internal/config"
)

// DB stores the persisted plugin options.
type DB struct {
	*sql.DB
}

// OptionsRevision is one entry of the options history.
type OptionsRevision struct {
	Revision int64
	Source   string
	SavedAt  time.Time
	Options  *config.Options
}

// NewDB opens the sqlite database at path and applies pending migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serialise through one connection.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	version, _, _ := db.MigrateVersion()
	diagf("opened %s at schema version %d", path, version)
	return db, nil
}

// SaveOptions stores opts as the current options and appends them to the
// history. source names who saved them ("api", "startup").
func (db *DB) SaveOptions(opts *config.Options, source string) error {
	if opts == nil {
		return errors.New("nil options")
	}
	doc, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO options (id, document, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		string(doc)); err != nil {
		return fmt.Errorf("save options: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO options_history (document, source) VALUES (?, ?)`,
		string(doc), source); err != nil {
		return fmt.Errorf("record options history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	opsf("options saved (%s)", source)
	return nil
}

// LoadOptions returns the stored options. ok is false when nothing has been
// saved yet.
func (db *DB) LoadOptions() (opts *config.Options, ok bool, err error) {
	var doc string
	err = db.QueryRow(`SELECT document FROM options WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	opts, err = config.ParseOptions([]byte(doc))
	if err != nil {
		return nil, false, fmt.Errorf("stored options: %w", err)
	}
	return opts, true, nil
}

// OptionsHistory returns up to limit revisions, newest first.
func (db *DB) OptionsHistory(limit int) ([]OptionsRevision, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT revision, source, saved_at, document
		FROM options_history
		ORDER BY revision DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []OptionsRevision
	for rows.Next() {
		var (
			r   OptionsRevision
			doc string
		)
		if err := rows.Scan(&r.Revision, &r.Source, &r.SavedAt, &doc); err != nil {
			return nil, err
		}
		if r.Options, err = config.ParseOptions([]byte(doc)); err != nil {
			return nil, fmt.Errorf("revision %d: %w", r.Revision, err)
		}
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		opsf("failed to create tailsql server: %v", err)
	} else {
		tsql.SetDB("sqlite://advancedwind.db", db.DB, &tailsql.DBOptions{
			Label: "AdvancedWind DB",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("advancedwind-backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			opsf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		opsf("backup copy failed: %v", err)
	}
}
