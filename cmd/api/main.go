// Package main implements the Docent engine API server. It serves chat turns
// synchronously and enqueues document ingestion onto NATS for the worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/DocentAI/docent-mvp/engine/directory"
	"github.com/DocentAI/docent-mvp/engine/domain"
	"github.com/DocentAI/docent-mvp/engine/index"
	"github.com/DocentAI/docent-mvp/engine/ingest"
	"github.com/DocentAI/docent-mvp/engine/provider"
	"github.com/DocentAI/docent-mvp/engine/quota"
	"github.com/DocentAI/docent-mvp/engine/rag"
	"github.com/DocentAI/docent-mvp/engine/scope"
	"github.com/DocentAI/docent-mvp/engine/semantic"
	"github.com/DocentAI/docent-mvp/pkg/metrics"
	"github.com/DocentAI/docent-mvp/pkg/mid"
	"github.com/DocentAI/docent-mvp/pkg/natsutil"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var met = metrics.New()

var (
	mChatRequests  = met.Counter("docent_api_chat_requests_total", "Chat turns served")
	mChatErrors    = met.Counter("docent_api_chat_errors_total", "Chat turns failed")
	mQuotaRejected = met.Counter("docent_api_quota_rejected_total", "Chat turns rejected by quota")
	mIngestQueued  = met.Counter("docent_api_ingest_queued_total", "Documents enqueued for ingestion")
	mChatDuration  = met.Histogram("docent_api_chat_duration_seconds", "Full chat turn latency", nil)
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	ProviderURL  string
	ProviderKey  string
	EmbedModel   string
	ChatModel    string
	EmbedDims    int
	ProviderRPS  float64
	IndexBackend string
	IndexDir     string
	QdrantURL    string
	QdrantPrefix string
	Neo4jURL     string
	Neo4jUser    string
	Neo4jPass    string
	NatsURL      string
	CORSOrigin   string
}

func loadConfig() Config {
	dims, _ := strconv.Atoi(envOr("EMBED_DIMS", "1536"))
	rps, _ := strconv.ParseFloat(envOr("PROVIDER_RPS", "0"), 64)
	return Config{
		Port:         envOr("PORT", "8080"),
		ProviderURL:  envOr("PROVIDER_URL", "https://api.openai.com"),
		ProviderKey:  envOr("PROVIDER_API_KEY", ""),
		EmbedModel:   envOr("EMBED_MODEL", "text-embedding-3-small"),
		ChatModel:    envOr("CHAT_MODEL", "gpt-4o-mini"),
		EmbedDims:    dims,
		ProviderRPS:  rps,
		IndexBackend: envOr("INDEX_BACKEND", "file"),
		IndexDir:     envOr("INDEX_DIR", "/var/lib/docent/indexes"),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		QdrantPrefix: envOr("QDRANT_PREFIX", "docent_"),
		Neo4jURL:     envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:    envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:    envOr("NEO4J_PASS", "password"),
		NatsURL:      envOr("NATS_URL", nats.DefaultURL),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Provider client ---
	providerClient := provider.NewClient(provider.Options{
		BaseURL:    cfg.ProviderURL,
		APIKey:     cfg.ProviderKey,
		EmbedModel: cfg.EmbedModel,
		ChatModel:  cfg.ChatModel,
		Dims:       cfg.EmbedDims,
		RPS:        cfg.ProviderRPS,
	})

	// --- Connect to Neo4j (tenancy directory + quota ledger) ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)

	dir := directory.New(neo4jDriver)
	resolver := scope.NewResolver(dir)

	// --- Index backend ---
	searchIndex, closeIndex, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	// --- Connect to NATS (ingestion queue) ---
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	// --- Build RAG services ---
	retriever := rag.NewRetriever(providerClient, searchIndex, resolver, dir, rag.DefaultRetrieverOptions(), logger)
	synthesizer := rag.NewSynthesizer(providerClient, dir, nil, logger)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", met.Handler())
	mux.HandleFunc("POST /api/chat", handleChat(retriever, synthesizer, resolver, logger))
	mux.HandleFunc("POST /api/documents/ingest", handleIngest(nc, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("docent-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "index_backend", cfg.IndexBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// openIndex picks the vector index backend: scope-keyed files on local disk
// or one qdrant collection per scope key.
func openIndex(cfg Config) (rag.SearchIndex, func(), error) {
	switch cfg.IndexBackend {
	case "qdrant":
		vs, err := semantic.New(cfg.QdrantURL, cfg.QdrantPrefix, cfg.EmbedDims)
		if err != nil {
			return nil, nil, fmt.Errorf("qdrant connect: %w", err)
		}
		return vs, func() { vs.Close() }, nil
	case "file":
		return index.NewFileStore(cfg.IndexDir), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown INDEX_BACKEND %q", cfg.IndexBackend)
	}
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	UserID      string   `json:"user_id"`
	Superuser   bool     `json:"superuser,omitempty"`
	Question    string   `json:"question"`
	K           int      `json:"k,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	FolderIDs   []string `json:"folder_ids,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Style       string   `json:"style,omitempty"`
	PreparedBy  string   `json:"prepared_by,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Answer      string                   `json:"answer"`
	Citations   []rag.Citation           `json:"citations"`
	CitedChunks []domain.RetrievalResult `json:"cited_chunks"`
	Confidence  float64                  `json:"confidence"`
}

func handleChat(retriever *rag.Retriever, synthesizer *rag.Synthesizer, resolver *scope.Resolver, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mChatRequests.Inc()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.UserID == "" {
			http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
			return
		}

		user := domain.User{ID: req.UserID, Superuser: req.Superuser}

		// Resolved once more inside Retrieve; this lookup only supplies the
		// quota attribution target.
		set, err := resolver.Resolve(r.Context(), user)
		if err != nil {
			logger.Error("scope resolve failed", "err", err)
			mChatErrors.Inc()
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		chunks, err := retriever.Retrieve(r.Context(), user, req.Question, req.K, rag.Filters{
			DocumentIDs: req.DocumentIDs,
			FolderIDs:   req.FolderIDs,
		})
		if err != nil {
			writeChatError(w, logger, err)
			return
		}

		answer, err := synthesizer.Synthesize(r.Context(), rag.SynthRequest{
			Question:   req.Question,
			Chunks:     chunks,
			OrgID:      set.OrgID,
			Mode:       req.Mode,
			Style:      req.Style,
			PreparedBy: req.PreparedBy,
		})
		if err != nil {
			writeChatError(w, logger, err)
			return
		}

		mChatDuration.Since(start)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			Answer:      answer.Text,
			Citations:   answer.Citations,
			CitedChunks: answer.CitedChunks,
			Confidence:  answer.Confidence,
		})
	}
}

func writeChatError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var exceeded *quota.ExceededError
	var invalid *domain.ValidationError
	switch {
	case errors.As(err, &exceeded):
		mQuotaRejected.Inc()
		http.Error(w, `{"error":"organization API quota exceeded, contact your administrator"}`, http.StatusTooManyRequests)
	case errors.As(err, &invalid):
		http.Error(w, `{"error":"`+invalid.Field+` is invalid"}`, http.StatusBadRequest)
	default:
		logger.Error("chat turn failed", "err", err)
		mChatErrors.Inc()
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
	}
}

// IngestRequest is the JSON body for POST /api/documents/ingest.
type IngestRequest struct {
	Document domain.Document `json:"document"`
	FolderID string          `json:"folder_id,omitempty"`
}

func handleIngest(nc *nats.Conn, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if err := domain.ValidateDocument(req.Document); err != nil {
			http.Error(w, `{"error":"invalid document"}`, http.StatusBadRequest)
			return
		}

		job := ingest.Job{Document: req.Document, FolderID: req.FolderID}
		if err := natsutil.Publish(r.Context(), nc, ingest.IngestSubject, job); err != nil {
			logger.Error("ingest enqueue failed", "err", err, "doc_id", req.Document.ID)
			http.Error(w, `{"error":"enqueue failed"}`, http.StatusServiceUnavailable)
			return
		}

		mIngestQueued.Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "queued", "document_id": req.Document.ID})
	}
}
