package database

import (
	"context"
	"strings"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/aqgenproject/aqgen/internal/aqgen/configuration"
)

func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	result := ""
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	for k, v := range values {
		result += k + "='" + replacer.Replace(v) + "' "
	}
	return result
}

// OpenPgxPool opens and pings a pgx connection pool.  The initial connection
// is retried a few times so the generator survives a database that is still
// coming up when the process starts.
func OpenPgxPool(config configuration.PostgresConfig) (*pgxpool.Pool, error) {
	pgxConfig, err := pgxpool.ParseConfig(CreateConnectionString(config.Connection))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if config.MaxOpenConns > 0 {
		pgxConfig.MaxConns = int32(config.MaxOpenConns)
	}

	var db *pgxpool.Pool
	err = retry.Do(
		func() error {
			var err error
			db, err = pgxpool.NewWithConfig(context.Background(), pgxConfig)
			if err != nil {
				return err
			}
			if err := db.Ping(context.Background()); err != nil {
				db.Close()
				return err
			}
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	return db, nil
}
