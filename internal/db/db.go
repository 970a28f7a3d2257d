package db

import (
	"context"
	"errors"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite:"

// Connect opens a gorm connection. DSNs starting with "sqlite:" use the pure
// Go SQLite driver, anything else is handed to the MySQL driver.
func Connect(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("db: empty dsn")
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, sqlitePrefix) {
		dialector = gormsqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	} else {
		dialector = mysql.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return gdb, nil
}

// Name reports the backend name used in API responses ("mysql", "sqlite").
func Name(gdb *gorm.DB) string {
	if gdb == nil {
		return ""
	}
	return gdb.Dialector.Name()
}

// ConnectMongo builds a client without waiting for the server. The driver
// dials lazily and reconnects on its own, so an unreachable server at boot
// only fails individual calls. Use PingMongo to report reachability.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("db: empty mongodb uri")
	}
	// options in the URI win over these defaults
	return mongo.Connect(ctx, options.Client().
		SetServerSelectionTimeout(5*time.Second).
		SetSocketTimeout(45*time.Second).
		ApplyURI(uri))
}

func PingMongo(ctx context.Context, client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.Ping(ctx, readpref.Primary())
}
