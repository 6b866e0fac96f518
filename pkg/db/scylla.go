package db

import (
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	// Conditional writes (IF NOT EXISTS) decide room and username uniqueness.
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	// Retry policy
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	log.Printf("Connected to ScyllaDB cluster (keyspace %q)", keyspace)
	return &Session{Session: session}, nil
}

var keyspaceName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

// CreateKeyspace connects through the system keyspace and creates keyspace
// with a single replica, which is what local and CI clusters run.
func CreateKeyspace(hosts []string, keyspace string) error {
	if !keyspaceName.MatchString(keyspace) {
		return fmt.Errorf("invalid keyspace name %q", keyspace)
	}
	sys, err := NewSession(hosts, "system")
	if err != nil {
		return fmt.Errorf("connect system keyspace: %w", err)
	}
	defer sys.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
	if err := sys.Query(stmt).Exec(); err != nil {
		return fmt.Errorf("create keyspace %s: %w", keyspace, err)
	}
	return nil
}
