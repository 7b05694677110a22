package store

import (
	"fmt"

	config "example.com/blogapi/internal/init"
	"github.com/gocql/gocql"
)

// SessionInterface is the part of *gocql.Session the store uses.
type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	Close()
}

// CassandraStore keeps users, posts, sessions and activity in one keyspace.
type CassandraStore struct {
	Session SessionInterface
}

// NewCassandra ensures the keyspace, applies migrations and opens a session.
func NewCassandra(cfg *config.Config) (*CassandraStore, error) {
	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := MigrateCassandra(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := newCluster(cfg, cfg.CassandraKeyspace)
	// LWT inserts on usernames need a serial consistency level.
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("store", "Connected to Cassandra keyspace (host anonymized)")
	return &CassandraStore{Session: sess}, nil
}

func newCluster(cfg *config.Config, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = keyspace
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout

	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}
	if cfg.CassandraDC != "" {
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}
	return cluster
}

func keyspaceCQL(keyspace string, rf int) string {
	if rf < 1 {
		rf = 1
	}
	return fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		keyspace, rf,
	)
}

// ensureKeyspace runs before migrations, which need the keyspace to connect.
func ensureKeyspace(cfg *config.Config) error {
	sess, err := newCluster(cfg, "system").CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	if err := sess.Query(keyspaceCQL(cfg.CassandraKeyspace, cfg.CassandraRF)).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("store", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

func (s *CassandraStore) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("store", "Cassandra session closed")
	}
}
