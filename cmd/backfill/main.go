// Command backfill re-enqueues every cataloged document for ingestion. Use
// it after changing the embedding model or chunking parameters, or to
// rebuild indexes from scratch onto a fresh base directory. The catalog only
// mirrors attribution, so the extraction outputs must be provided as
// <doc-id>.txt files under TEXT_DIR.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/DocentAI/docent-mvp/engine/directory"
	"github.com/DocentAI/docent-mvp/engine/ingest"
	"github.com/DocentAI/docent-mvp/pkg/fn"
	"github.com/DocentAI/docent-mvp/pkg/natsutil"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	neo4jURL := envOr("NEO4J_URL", "neo4j://localhost:7687")
	neo4jUser := envOr("NEO4J_USER", "neo4j")
	neo4jPass := envOr("NEO4J_PASS", "password")
	natsURL := envOr("NATS_URL", nats.DefaultURL)
	textDir := envOr("TEXT_DIR", "/var/lib/docent/extracted")

	driver, err := neo4j.NewDriverWithContext(neo4jURL, neo4j.BasicAuth(neo4jUser, neo4jPass, ""))
	if err != nil {
		log.Fatalf("neo4j connect: %v", err)
	}
	defer driver.Close(ctx)

	nc, err := nats.Connect(natsURL)
	if err != nil {
		log.Fatalf("nats connect: %v", err)
	}
	defer nc.Close()

	dir := directory.New(driver)

	docs, err := dir.AllDocuments(ctx)
	if err != nil {
		log.Fatalf("list documents: %v", err)
	}
	log.Printf("Found %d cataloged documents", len(docs))

	var queued, skipped, errors int
	for i, doc := range docs {
		if ctx.Err() != nil {
			log.Printf("interrupted after %d documents", i)
			break
		}
		text, err := os.ReadFile(filepath.Join(textDir, doc.ID+".txt"))
		if err != nil {
			// No extraction output for this document; the worker would
			// no-op on an empty body anyway.
			skipped++
			continue
		}
		doc.ExtractedText = string(text)
		job := ingest.Job{Document: doc}
		result := fn.Retry(ctx, fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Second, MaxWait: 10 * time.Second, Jitter: true},
			func(ctx context.Context) fn.Result[struct{}] {
				if err := natsutil.Publish(ctx, nc, ingest.IngestSubject, job); err != nil {
					return fn.Err[struct{}](err)
				}
				return fn.Ok(struct{}{})
			})
		if _, err := result.Unwrap(); err != nil {
			log.Printf("[%d] enqueue %s: %v", i, doc.ID, err)
			errors++
			continue
		}
		queued++
		if queued%100 == 0 {
			log.Printf("Progress: %d queued, %d skipped, %d errors (of %d)", queued, skipped, errors, len(docs))
		}
	}

	if err := nc.Flush(); err != nil {
		log.Printf("nats flush: %v", err)
	}
	log.Printf("Done! Queued: %d, Skipped: %d, Errors: %d, Total: %d", queued, skipped, errors, len(docs))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
