package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/mahaj/roomchat/pkg/journal"
)

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Key string `json:"key"`
	journal.Record
}

// Consumer appends journaled fan-outs to an audit log, one JSON object per
// line, and counts events per room.
type Consumer struct {
	mu     sync.Mutex
	out    io.Writer
	counts map[string]int
}

func NewConsumer(out io.Writer) *Consumer {
	return &Consumer{out: out, counts: make(map[string]int)}
}

func (c *Consumer) Handle(_ context.Context, key string, rec journal.Record) error {
	line, err := json.Marshal(AuditEntry{Key: key, Record: rec})
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	if rec.Kind == journal.KindRoom {
		c.counts[rec.Room]++
	}
	log.Printf("audited %s %s (key %s)", rec.Kind, rec.Event, key)
	return nil
}

// Count returns how many room events were audited for roomName.
func (c *Consumer) Count(roomName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[roomName]
}
