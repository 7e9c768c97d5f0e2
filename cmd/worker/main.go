// Command worker consumes document ingestion jobs from NATS and runs them
// through the chunk → embed → index pipeline.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/DocentAI/docent-mvp/engine/directory"
	"github.com/DocentAI/docent-mvp/engine/index"
	"github.com/DocentAI/docent-mvp/engine/ingest"
	"github.com/DocentAI/docent-mvp/engine/provider"
	"github.com/DocentAI/docent-mvp/engine/semantic"
	"github.com/DocentAI/docent-mvp/pkg/metrics"
	"github.com/DocentAI/docent-mvp/pkg/natsutil"
	"github.com/DocentAI/docent-mvp/pkg/resilience"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var met = metrics.New()

var (
	mJobsStarted = met.Counter("docent_worker_jobs_started_total", "Ingestion jobs picked up")
	mDedupHits   = met.Counter("docent_worker_dedup_hits_total", "Jobs skipped as duplicates")
	mDeadLetters = met.Counter("docent_worker_dead_letters_total", "Jobs that exhausted retries")
)

func main() {
	var (
		natsURL      = flag.String("nats", nats.DefaultURL, "NATS server URL")
		providerURL  = flag.String("provider", "https://api.openai.com", "embedding provider base URL")
		embedModel   = flag.String("embed-model", "text-embedding-3-small", "embedding model")
		embedDims    = flag.Int("dims", 1536, "embedding dimensionality")
		providerRPS  = flag.Float64("rps", 0, "provider requests per second, 0 = unlimited")
		embedRPS     = flag.Float64("embed-rps", 0, "embed batches per second across jobs, 0 = unlimited")
		backend      = flag.String("backend", "file", "index backend: file or qdrant")
		indexDir     = flag.String("dir", "/var/lib/docent/indexes", "index base directory (file backend)")
		qdrantAddr   = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address (qdrant backend)")
		qdrantPrefix = flag.String("qdrant-prefix", "docent_", "Qdrant collection prefix")
		neo4jURL     = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser    = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass    = flag.String("neo4j-pass", "password", "Neo4j password")
		metricsPort  = flag.Int("metrics-port", 9091, "Prometheus metrics port")
		dedup        = flag.Bool("dedup", false, "skip documents already seen this process")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	met.ServeAsync(*metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Neo4j
	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Neo4j")

	// Index backend
	var idx ingest.Indexer
	switch strings.ToLower(*backend) {
	case "qdrant":
		vs, err := semantic.New(*qdrantAddr, *qdrantPrefix, *embedDims)
		if err != nil {
			log.Error("qdrant connect failed", "error", err)
			os.Exit(1)
		}
		defer vs.Close()
		idx = vs
		log.Info("using qdrant index", "addr", *qdrantAddr, "prefix", *qdrantPrefix)
	case "file":
		idx = index.NewFileStore(*indexDir)
		log.Info("using file index", "dir", *indexDir)
	default:
		log.Error("unknown backend", "backend", *backend)
		os.Exit(1)
	}

	embedder := provider.NewClient(provider.Options{
		BaseURL:    *providerURL,
		APIKey:     os.Getenv("PROVIDER_API_KEY"),
		EmbedModel: *embedModel,
		Dims:       *embedDims,
		RPS:        *providerRPS,
	})

	deps := ingest.Deps{
		Embedder: embedder,
		Index:    idx,
		Catalog:  directory.New(driver),
		Logger:   log,
	}
	if *embedRPS > 0 {
		deps.EmbedLimiter = resilience.NewLimiter(resilience.LimiterOpts{Rate: *embedRPS, Burst: 1})
	}

	// The dedup hook doubles as the job counter; it runs once per message
	// before the pipeline.
	var mu sync.Mutex
	seen := make(map[string]bool)
	dedupEnabled := *dedup
	deps.DeduplicateF = func(_ context.Context, docID string) (bool, error) {
		mJobsStarted.Inc()
		if !dedupEnabled {
			return false, nil
		}
		mu.Lock()
		defer mu.Unlock()
		if seen[docID] {
			mDedupHits.Inc()
			return true, nil
		}
		seen[docID] = true
		return false, nil
	}

	// Connect NATS and start consuming
	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	sub, err := ingest.StartConsumer(nc, deps)
	if err != nil {
		log.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	dlqSub, err := natsutil.Subscribe(nc, ingest.DLQSubject, func(_ context.Context, m ingest.DLQMessage) {
		mDeadLetters.Inc()
		log.Error("ingest dead letter", "doc_id", m.Job.Document.ID, "error", m.Error, "retries", m.Retries)
	})
	if err != nil {
		log.Error("dlq subscribe failed", "error", err)
		os.Exit(1)
	}
	defer dlqSub.Unsubscribe()

	log.Info("worker consuming", "subject", ingest.IngestSubject, "dlq", ingest.DLQSubject)
	<-ctx.Done()
	log.Info("worker shutting down")
}
