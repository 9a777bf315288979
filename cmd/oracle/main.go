// Command oracle is the dual CLI/Lambda entrypoint, kept from the
// teacher's main.go pattern ("if len(os.Args) > 1 { runCLI() } else {
// lambda.Start(handleRequest) }"), generalized from the teacher's single
// Simulate RPC to the full §6 HTTP surface.
package main

import (
	"bytes"
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/jhw/fixtures-oracle/internal/config"
	"github.com/jhw/fixtures-oracle/internal/httpapi"
	"github.com/jhw/fixtures-oracle/internal/migrations"
	"github.com/jhw/fixtures-oracle/internal/scheduler"
	"github.com/jhw/fixtures-oracle/pkg/oracle"
	"github.com/jhw/fixtures-oracle/pkg/oracle/cache"
	"github.com/jhw/fixtures-oracle/pkg/oracle/store"
)

var server *httpapi.Server

// handleRequest adapts an API Gateway proxy event onto the same chi
// router a local "oracle serve" uses, the Lambda-side generalization of
// the teacher's single-RPC handleRequest.
func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	zlog.Info().Str("path", request.Path).Str("method", request.HTTPMethod).Msg("lambda request received")

	req, err := http.NewRequestWithContext(ctx, request.HTTPMethod, request.Path, bytes.NewBufferString(request.Body))
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: 400, Body: "invalid request"}, nil
	}
	for k, v := range request.Headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	headers := make(map[string]string, len(rec.Header()))
	for k := range rec.Header() {
		headers[k] = rec.Header().Get(k)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: rec.Code,
		Headers:    headers,
		Body:       rec.Body.String(),
	}, nil
}

// buildServer wires every component the §6 surface and the AP state
// machine depend on against a single storage backend.
func buildServer(cfg *config.Config, backend storeBackend) *httpapi.Server {
	resolver := oracle.NewTeamResolver(backend)
	ingestor := oracle.NewIngestor(resolver, backend, backend)
	modelCache := oracle.NewActiveModelCache(backend)

	var cacheBackend oracle.CacheBackend
	redisClient := cache.NewRedis(cfg.RedisAddr, "", cfg.RedisDB)
	if err := redisClient.Ping(context.Background()); err != nil {
		zlog.Warn().Err(err).Msg("redis unreachable at startup, feature store will degrade to database-only")
	} else {
		cacheBackend = redisClient
	}
	featureStore := oracle.NewFeatureStore(cacheBackend, backend, func() string {
		if m, err := modelCache.Get(context.Background(), oracle.ModelPoisson); err == nil && m != nil {
			return m.Version
		}
		return ""
	})

	srv := &httpapi.Server{
		Resolver:     resolver,
		Jackpots:     backend,
		Leagues:      backend,
		ModelCache:   modelCache,
		FeatureStore: featureStore,
		Validations:  backend,
		Predictions:  backend,
	}

	deps := &oracle.PipelineDeps{
		Resolver:    resolver,
		Ingestor:    ingestor,
		ModelCache:  modelCache,
		Leagues:     backend,
		Matches:     backend,
		Validations: backend,
		PP:          srv,
	}
	srv.Tasks = oracle.NewTaskManager(deps)

	return srv
}

// storeBackend is every storage contract the wiring above needs,
// satisfied by both store.Postgres and store.Memory.
type storeBackend interface {
	oracle.TeamStore
	oracle.MatchStore
	oracle.LeagueReader
	oracle.ModelStore
	oracle.TrainingMatchSource
	oracle.ValidationSource
	oracle.TeamFeatureReader
	httpapi.JackpotStore
	httpapi.LeagueStore
	httpapi.ValidationStore
	oracle.PredictionStore
}

func runServe(cfg *config.Config) {
	ctx := context.Background()

	if err := migrations.Apply("migrations", cfg.DatabaseURL); err != nil {
		zlog.Warn().Err(err).Msg("migrations did not apply cleanly, continuing against existing schema")
	}

	pg, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pg.Close()

	server = buildServer(cfg, pg)

	sched := scheduler.New(pg, server.FeatureStore, server)
	sched.Start()
	defer sched.Stop()

	zlog.Info().Str("addr", cfg.HTTPListenAddr).Msg("oracle serving")
	if err := http.ListenAndServe(cfg.HTTPListenAddr, server.Router()); err != nil {
		log.Fatalf("http server: %v", err)
	}
}

// runIngest exercises IA directly against an offline in-memory store,
// mirroring the teacher's runCLI's "read file, print summary" shape
// (pkg/outrights' ProcessEventsFile / result-printing loop).
func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	league := fs.String("league", "", "league code the file belongs to")
	allowCreate := fs.Bool("allow-team-creation", false, "allow IA to create unresolved teams")
	fs.Parse(args)

	if fs.NArg() < 1 {
		log.Fatal("usage: oracle ingest --league=CODE [--allow-team-creation] <filename>")
	}
	if *league == "" {
		log.Fatal("--league is required")
	}
	filename := fs.Arg(0)

	raw, err := os.ReadFile(filename)
	if err != nil {
		log.Fatal(err)
	}

	mem := store.NewMemory()
	mem.InsertLeague(context.Background(), oracle.NewLeague(*league, *league, "", 1))
	resolver := oracle.NewTeamResolver(mem)
	ingestor := oracle.NewIngestor(resolver, mem, mem)

	log.Printf("Processing %s for league %s", filename, *league)
	result, err := ingestor.Ingest(context.Background(), *league, raw, oracle.IngestOptions{
		AllowTeamCreation: *allowCreate,
		SourceFile:        filename,
	})
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("processed=%d inserted=%d updated=%d skipped=%d", result.Processed, result.Inserted, result.Updated, result.Skipped)
	for _, e := range result.Errors {
		log.Println("-", e)
	}
}

func runCLI() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	switch os.Args[1] {
	case "serve":
		runServe(cfg)
	case "ingest":
		runIngest(os.Args[2:])
	default:
		log.Fatalf("unknown command %q; usage: oracle <serve|ingest> ...", os.Args[1])
	}
}

func main() {
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		runCLI()
		return
	}
	lambda.Start(handleRequest)
}
