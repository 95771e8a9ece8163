package datastore

import (
	"fmt"

	"github.com/placewise/photocache/internal/conf"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	mysqlSettings := store.Settings.Output.MySQL
	if mysqlSettings.Database == "" {
		return validationError("MySQL database name cannot be empty", "database", "")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		mysqlSettings.Username, mysqlSettings.Password,
		mysqlSettings.Host, mysqlSettings.Port,
		mysqlSettings.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: createGormLogger(),
	})
	if err != nil {
		getLogger().Error("Failed to open MySQL database",
			"host", mysqlSettings.Host,
			"port", mysqlSettings.Port,
			"database", mysqlSettings.Database,
			"error", err)
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db
	connectionInfo := fmt.Sprintf("%s:%s/%s", mysqlSettings.Host, mysqlSettings.Port, mysqlSettings.Database)
	return performAutoMigration(db, store.Settings.Debug, "MySQL", connectionInfo)
}

// Close releases MySQL database connections.
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return dbError(fmt.Errorf("database connection is not initialized"), "close", "low")
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		return dbError(err, "close", "low")
	}
	return sqlDB.Close()
}
