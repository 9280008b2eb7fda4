package main

import (
	"compress/gzip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/internal/database"

	"gorm.io/gorm"
)

var errUsage = errors.New("usage")

// openStore opens the database the configured backend writes to: the
// SQLite dump for the sqlite backend, Postgres otherwise.
func openStore() (*gorm.DB, error) {
	storageCfg := config.GetStorageConfig()
	if storageCfg.Type == "sqlite" {
		if _, err := os.Stat(storageCfg.SQLite.Path); err != nil {
			return nil, fmt.Errorf("sqlite dump not found: %w", err)
		}
		return database.GetSqliteDB(storageCfg.SQLite.Path)
	}
	return database.GetPostgresDB(config.GetDBConfig())
}

// getJSON exports the raw documents of the given sessions as gzipped JSON
// files into the memory backend's output directory.
func getJSON(sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		fmt.Println("No session IDs provided.")
		return fmt.Errorf("%w: getjson <sessionId...>", errUsage)
	}
	fmt.Println("Getting JSON for session IDs: ", sessionIDs)

	db, err := openStore()
	if err != nil {
		return err
	}

	txStart := time.Now()
	docs, err := database.GetSessionDocuments(db, sessionIDs)
	if err != nil {
		return err
	}
	fmt.Println("Got sessions in ", time.Since(txStart))
	if len(docs) < len(sessionIDs) {
		fmt.Printf("Found %d of %d sessions.\n", len(docs), len(sessionIDs))
	}

	outDir := config.GetStorageConfig().Memory.OutputDir
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, doc := range docs {
		path := filepath.Join(outDir, fmt.Sprintf("%s_%s.json.gz", doc.RecordID, doc.EndTime.UTC().Format("20060102_150405")))
		if err := writeGzip(path, doc.RawResponse); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Println("Saved", path)
	}
	return nil
}

func writeGzip(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := gzip.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

// reduce keeps every n-th heartbeat tick and reclaims the freed space.
func reduce(args []string) error {
	if len(args) != 1 {
		fmt.Println("Expected exactly one argument: reduce <every>")
		return fmt.Errorf("%w: reduce <every>", errUsage)
	}
	every, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid interval %q: %w", args[0], err)
	}

	db, err := openStore()
	if err != nil {
		return err
	}

	txStart := time.Now()
	removed, err := database.ReduceHeartbeats(db, every)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d heartbeats in %s\n", removed, time.Since(txStart))

	vacuumStart := time.Now()
	if err := database.Vacuum(db); err != nil {
		return err
	}
	fmt.Println("Vacuumed in ", time.Since(vacuumStart))
	return nil
}
