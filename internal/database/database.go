package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SharedMemoryDSN is the in-memory SQLite database used when no path is set.
const SharedMemoryDSN = "file::memory:?cache=shared"

// MemoryDSN returns the DSN of a named shared in-memory SQLite database.
func MemoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared"
}

// GetPostgresDB returns a connection to the Postgres database.
func GetPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	return db, nil
}

// GetSqliteDB returns a connection to a SQLite database. An empty dsn
// opens the shared in-memory database.
func GetSqliteDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = SharedMemoryDSN
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// one writer at a time; also keeps the in-memory database alive
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// set PRAGMAS
	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %s", err)
		}
	}

	return db, nil
}

// Connect tries Postgres and falls back to in-memory SQLite. local reports
// whether the fallback was taken.
func Connect(cfg config.DBConfig, log *slog.Logger) (db *gorm.DB, local bool, err error) {
	db, err = GetPostgresDB(cfg)
	if err == nil {
		log.Info("Connected to database", "host", cfg.Host, "database", cfg.Database)
		return db, false, nil
	}

	log.Error("Failed to connect to Postgres DB, trying SQLite", "error", err)
	db, err = GetSqliteDB("")
	if err != nil {
		return nil, true, fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	log.Info("Using local SQLite DB in memory with periodic disk dump")
	return db, true, nil
}

// Setup migrates the schema, enabling PostGIS first on Postgres.
func Setup(db *gorm.DB, log *slog.Logger) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE Extension IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS Extension: %w", err)
		}
		log.Info("PostGIS Extension created")
	}

	log.Info("Migrating schema")
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info("Database setup complete")
	return nil
}

// Truncate removes every row written by earlier runs so a rerun starts clean.
func Truncate(db *gorm.DB) error {
	global := db.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, m := range model.SessionTables {
		if err := global.Delete(m).Error; err != nil {
			return fmt.Errorf("failed to clear %T: %w", m, err)
		}
	}
	return nil
}

// ReduceHeartbeats keeps only every n-th heartbeat tick and returns the
// number of rows removed.
func ReduceHeartbeats(db *gorm.DB, every int) (int64, error) {
	if every < 2 {
		return 0, errors.New("reduce interval must be at least 2")
	}
	res := db.Where("tick % ? != 0", every).Delete(&model.Heartbeat{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reduce heartbeats: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Vacuum reclaims space after large deletes.
func Vacuum(db *gorm.DB) error {
	stmt := "VACUUM;"
	if db.Dialector.Name() == "postgres" {
		stmt = "VACUUM ANALYZE;"
	}
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	return nil
}

// GetSessionDocuments loads the raw documents of the given sessions in
// start time order.
func GetSessionDocuments(db *gorm.DB, sessionIDs []string) ([]model.EventSession, error) {
	var docs []model.EventSession
	err := db.Where("record_id IN ?", sessionIDs).Order("start_time").Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// DumpMemoryDBToDisk vacuums the in-memory database to a disk file.
func DumpMemoryDBToDisk(db *gorm.DB, sqliteFilePath string) (time.Duration, error) {
	if sqliteFilePath == "" {
		return 0, fmt.Errorf("sqlite file path not set")
	}

	// remove existing file if it exists
	if _, err := os.Stat(sqliteFilePath); err == nil {
		if err := os.Remove(sqliteFilePath); err != nil {
			return 0, fmt.Errorf("error removing existing DB file: %s", err)
		}
	}

	start := time.Now()
	err := db.Exec("VACUUM INTO 'file:" + sqliteFilePath + "';").Error
	if err != nil {
		return 0, fmt.Errorf("error dumping memory DB to disk: %s", err)
	}

	return time.Since(start), nil
}
