// manage.go: database schema management and migration
package datastore

import (
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// createGormLogger creates a GORM logger that surfaces slow queries.
func createGormLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
			Colorful:      true,
		},
	)
}

// performAutoMigration runs gorm automigration over every model table.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	tableMappings := []struct {
		model any
		name  string
	}{
		{&CachedPhoto{}, "cached_photos"},
		{&Place{}, "places"},
		{&ImageMigrationSession{}, "image_migration_sessions"},
		{&ImageMigrationResult{}, "image_migration_results"},
		{&ImageHealthSession{}, "image_health_sessions"},
		{&ImageHealthResult{}, "image_health_results"},
	}

	if debug {
		getLogger().Debug("Starting table migrations",
			"db_type", dbType,
			"table_count", len(tableMappings))
	}

	for _, table := range tableMappings {
		tableExists := db.Migrator().HasTable(table.model)
		if debug {
			getLogger().Debug("Migrating table",
				"table", table.name,
				"exists", tableExists)
		}
		if err := db.AutoMigrate(table.model); err != nil {
			return dbError(err, "auto_migrate_table", "high",
				"table", table.name,
				"db_type", dbType,
				"connection", connectionInfo)
		}
	}

	return nil
}
