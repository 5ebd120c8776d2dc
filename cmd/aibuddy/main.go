// cmd/aibuddy is the interactive entry point for the AI Buddy backend: a
// reverse-tutoring agent that the user teaches, remembers across sessions,
// and that answers from taught material rather than from scratch.
//
// Startup sequence:
//  1. Load .env (if present) and configuration.
//  2. Open the configured vector backend and the session registry.
//  3. Create the LLM text and embedding clients for the configured provider.
//  4. Prepare the memory and document stores.
//  5. Run the terminal chat loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/scrypster/aibuddy/internal/chat"
	"github.com/scrypster/aibuddy/internal/config"
	"github.com/scrypster/aibuddy/internal/docstore"
	"github.com/scrypster/aibuddy/internal/llm"
	"github.com/scrypster/aibuddy/internal/memory"
	"github.com/scrypster/aibuddy/internal/registry"
	"github.com/scrypster/aibuddy/internal/registry/mongostore"
	"github.com/scrypster/aibuddy/internal/registry/sqlitestore"
	"github.com/scrypster/aibuddy/internal/storage"
	"github.com/scrypster/aibuddy/internal/storage/chromem"
	"github.com/scrypster/aibuddy/internal/storage/postgres"
	"github.com/scrypster/aibuddy/internal/storage/qdrant"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides AIBUDDY_CONFIG_FILE)")
	userID := flag.String("user", "local", "user id for memory scoping")
	sessionID := flag.String("session", "", "resume an existing session id")
	flag.Parse()

	log.SetPrefix("aibuddy: ")
	log.SetFlags(log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open vector backend: %v", err)
	}

	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open session registry: %v", err)
	}
	defer reg.Close()

	generator, err := llm.NewTextGenerator(llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   textAPIKey(cfg),
		Model:    textModel(cfg),
		BaseURL:  cfg.LLM.OllamaURL,
	})
	if err != nil {
		log.Fatalf("failed to create text generator: %v", err)
	}

	rawEmbedder, err := llm.NewEmbeddingGenerator(llm.ProviderConfig{
		Provider: cfg.EmbeddingProviderName(),
		APIKey:   cfg.LLM.OpenAIAPIKey,
		Model:    cfg.LLM.OllamaEmbeddingModel,
		BaseURL:  cfg.LLM.OllamaURL,
	})
	if err != nil {
		log.Fatalf("failed to create embedding generator: %v", err)
	}
	embedder := llm.NewSafeEmbedder(rawEmbedder, cfg.Storage.Dimension, float64(cfg.Storage.EmbedRatePerSec))

	memories := memory.NewStore(backend, embedder, cfg.Storage.MemoryCollection)
	if err := memories.EnsureReady(ctx); err != nil {
		log.Fatalf("failed to prepare memory collection: %v", err)
	}
	documents := docstore.NewStore(backend, embedder, cfg.Storage.DocCollection, cfg.Storage.MaxChunkChars)
	if err := documents.EnsureReady(ctx); err != nil {
		log.Fatalf("failed to prepare document collection: %v", err)
	}

	orchestrator := chat.NewOrchestrator(chat.OrchestratorConfig{
		Generator: generator,
		Memories:  memories,
		Documents: documents,
		Registry:  reg,
		Params: chat.ContextParams{
			MaxHistoryTurns:   cfg.Chat.MaxHistoryTurns,
			MemoryLimit:       cfg.Chat.MemoryLimit,
			DocumentLimit:     cfg.Chat.DocumentLimit,
			SummaryLimit:      cfg.Chat.SummaryLimit,
			ChatSearchLimit:   cfg.Chat.ChatSearchLimit,
			HistoryFetchLimit: cfg.Chat.HistoryFetchLimit,
			AgentID:           cfg.Chat.AgentID,
		},
		SummaryInterval:       cfg.Chat.SummaryInterval,
		SummaryTokenThreshold: cfg.Chat.SummaryTokenThreshold,
	})

	if cfg.Storage.WatchDir != "" {
		watcher := docstore.NewWatcher(cfg.Storage.WatchDir, documents, *userID)
		if err := watcher.Start(ctx); err != nil {
			log.Fatalf("failed to start document watcher: %v", err)
		}
		defer watcher.Stop()
	}

	runREPL(ctx, orchestrator, documents, reg, *sessionID, *userID)
	orchestrator.Summarizer().Wait()
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "chromem", "":
		return chromem.New(), nil
	case "qdrant":
		return qdrant.New(qdrant.Config{BaseURL: cfg.Storage.QdrantURL, APIKey: cfg.Storage.QdrantAPIKey}), nil
	case "postgres":
		return postgres.Open(ctx, cfg.Storage.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %q", cfg.Storage.Backend)
	}
}

func openRegistry(ctx context.Context, cfg *config.Config) (registry.Registry, error) {
	switch cfg.Registry.Engine {
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Registry.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create data directory %q: %w", dir, err)
			}
		}
		return sqlitestore.Open(ctx, cfg.Registry.SQLitePath)
	case "mongo":
		return mongostore.NewStore(cfg.Registry.MongoURI, cfg.Registry.MongoDB)
	default:
		return nil, fmt.Errorf("unsupported registry engine: %q", cfg.Registry.Engine)
	}
}

func textAPIKey(cfg *config.Config) string {
	switch cfg.LLM.Provider {
	case "openai":
		return cfg.LLM.OpenAIAPIKey
	case "anthropic":
		return cfg.LLM.AnthropicAPIKey
	}
	return ""
}

func textModel(cfg *config.Config) string {
	switch cfg.LLM.Provider {
	case "openai":
		return cfg.LLM.OpenAIModel
	case "anthropic":
		return cfg.LLM.AnthropicModel
	}
	return cfg.LLM.OllamaModel
}

func runREPL(ctx context.Context, orchestrator *chat.Orchestrator, documents *docstore.Store, reg registry.Registry, sessionID, userID string) {
	fmt.Println("AI Buddy ready. Commands: /teach on|off, /upload <file>, /sessions, /new, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("teacher> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			return

		case line == "/new":
			sessionID = ""
			fmt.Println("Next message starts a fresh session.")
			continue

		case strings.HasPrefix(line, "/teach"):
			arg := strings.TrimSpace(strings.TrimPrefix(line, "/teach"))
			on := orchestrator.TeachMode().SetOn(arg == "on")
			fmt.Printf("Teach mode: %v\n", on)
			continue

		case strings.HasPrefix(line, "/upload "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/upload "))
			uploadDocument(ctx, documents, path, userID)
			continue

		case line == "/sessions":
			printSessions(ctx, reg)
			continue
		}

		result, err := orchestrator.HandleChat(ctx, line, sessionID, userID)
		if err != nil {
			log.Printf("turn failed: %v", err)
			continue
		}
		sessionID = result.SessionID
		if result.Silent {
			fmt.Println("(noted)")
			continue
		}
		fmt.Println(result.Response)
		if result.Sources != "" {
			fmt.Println(result.Sources)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("input error: %v", err)
	}
}

func uploadDocument(ctx context.Context, documents *docstore.Store, path, userID string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("upload failed: %v\n", err)
		return
	}
	result, err := documents.AddDocument(ctx, filepath.Base(path), string(data), map[string]interface{}{
		"user_id":  userID,
		"filename": filepath.Base(path),
	})
	if err != nil {
		fmt.Printf("upload failed: %v\n", err)
		return
	}
	fmt.Printf("Uploaded %s as %s (%d chunks).\n", filepath.Base(path), result.DocID, result.Chunks)
}

func printSessions(ctx context.Context, reg registry.Registry) {
	sessions, err := reg.ListSessions(ctx)
	if err != nil {
		fmt.Printf("list failed: %v\n", err)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions yet.")
		return
	}
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  last active %s\n", s.SessionID, title, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
}
