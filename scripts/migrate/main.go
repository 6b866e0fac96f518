package main

import (
	"log"

	"github.com/mahaj/roomchat/pkg/config"
	"github.com/mahaj/roomchat/pkg/db"
)

func main() {
	cfg, err := config.Load[config.Store]()
	if err != nil {
		log.Fatal(err)
	}

	if err := db.CreateKeyspace(cfg.ScyllaHosts, cfg.ScyllaKeyspace); err != nil {
		log.Fatal(err)
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	if err := db.EnsureSchema(session); err != nil {
		log.Fatal(err)
	}

	log.Printf("Keyspace %s ready with tables %v", cfg.ScyllaKeyspace, db.Tables())
}
