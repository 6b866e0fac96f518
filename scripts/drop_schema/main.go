package main

import (
	"flag"
	"log"
	"slices"

	"github.com/mahaj/roomchat/pkg/config"
	"github.com/mahaj/roomchat/pkg/db"
)

func main() {
	table := flag.String("table", "", "drop only this table")
	flag.Parse()

	cfg, err := config.Load[config.Store]()
	if err != nil {
		log.Fatal(err)
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	if *table == "" {
		log.Printf("Dropping tables %v...", db.Tables())
		if err := db.DropSchema(session); err != nil {
			log.Fatalf("Failed to drop schema: %v", err)
		}
		log.Println("Tables dropped successfully.")
		return
	}

	if !slices.Contains(db.Tables(), *table) {
		log.Fatalf("Unknown table %q, want one of %v", *table, db.Tables())
	}
	log.Printf("Dropping table %s...", *table)
	if err := session.Query("DROP TABLE IF EXISTS " + *table).Exec(); err != nil {
		log.Fatalf("Failed to drop table: %v", err)
	}
	log.Println("Table dropped successfully.")
}
