package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"qrdag"
	"qrdag/consensus"
	"qrdag/db"
	"qrdag/handlers"
	"qrdag/logger"
	"qrdag/models"
	"qrdag/repository"
	"qrdag/routers"
)

// localSampler and localQuerier wire a single-node deployment: the
// configured participants always prefer the queried vertex. Clustered
// deployments inject network-backed implementations instead.
type localSampler struct {
	participants []consensus.ParticipantID
}

func (s *localSampler) Sample(k int) []consensus.ParticipantID {
	if k >= len(s.participants) {
		return s.participants
	}
	return s.participants[:k]
}

type localQuerier struct{}

func (localQuerier) Query(_ context.Context, _ consensus.ParticipantID, vertexID models.VertexID, _ []models.VertexID) (consensus.PreferenceVote, error) {
	return consensus.PreferenceVote{Preferred: vertexID}, nil
}

func consensusConfig() consensus.Config {
	var cfg consensus.Config
	switch viper.GetString("consensus.preset") {
	case "high-security":
		cfg = consensus.HighSecurityConfig()
	default:
		cfg = consensus.FastFinalityConfig()
	}
	if viper.IsSet("consensus.query_sample_size") {
		cfg.QuerySampleSize = viper.GetInt("consensus.query_sample_size")
	}
	if viper.IsSet("consensus.alpha") {
		cfg.Alpha = viper.GetFloat64("consensus.alpha")
	}
	if viper.IsSet("consensus.beta") {
		cfg.Beta = viper.GetUint64("consensus.beta")
	}
	if viper.IsSet("consensus.confirmation_depth") {
		cfg.ConfirmationDepth = viper.GetInt("consensus.confirmation_depth")
	}
	if viper.IsSet("consensus.finality_timeout_ms") {
		cfg.FinalityTimeout = time.Duration(viper.GetInt("consensus.finality_timeout_ms")) * time.Millisecond
	}
	return cfg
}

func main() {
	// Load config
	viper.SetConfigFile("config/config.yaml")
	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}

	appLogFile := viper.GetString("log.app_log_file")
	logLevel := viper.GetString("log.level")

	if err := logger.InitLogger(appLogFile, logLevel); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}

	logger.Logger.Info("Starting QR-Avalanche DAG server...")

	// Connect to LevelDB for the finality event log
	leveldbPath := viper.GetString("leveldb.path")
	ldb, err := db.NewLevelDB(leveldbPath)
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()

	eventRepo := repository.NewEventRepository(ldb)

	// Network collaborators
	var participants []consensus.ParticipantID
	for _, p := range viper.GetStringSlice("consensus.participants") {
		participants = append(participants, consensus.ParticipantID(p))
	}
	sampler := &localSampler{participants: participants}

	// Initialize the consensus core
	d, err := qrdag.New(consensusConfig(), sampler, localQuerier{}, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize consensus core", zap.Error(err))
	}
	d.Subscribe(repository.NewFinalityLog(eventRepo))

	reg := prometheus.NewRegistry()
	if err := d.Engine().RegisterPrometheus("qrdag", reg); err != nil {
		logger.Logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Run the voting scheduler
	ctx, cancel := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(engineDone)
	}()

	// Initialize HTTP handlers
	h := handlers.NewHandler(d)

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h, reg)

	// HTTP Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", viper.GetInt("server.port")),
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", viper.GetInt("server.port")))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")
	cancel()
	<-engineDone
	srv.Close()
}
