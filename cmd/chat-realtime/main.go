package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/weiawesome/wes-chat-realtime/internal/bridge"
	"github.com/weiawesome/wes-chat-realtime/internal/config"
	"github.com/weiawesome/wes-chat-realtime/internal/grpcserver"
	"github.com/weiawesome/wes-chat-realtime/internal/handler"
	"github.com/weiawesome/wes-chat-realtime/internal/history"
	"github.com/weiawesome/wes-chat-realtime/internal/hub"
	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/internal/pipeline"
	"github.com/weiawesome/wes-chat-realtime/internal/presence"
	"github.com/weiawesome/wes-chat-realtime/internal/readprogress"
	"github.com/weiawesome/wes-chat-realtime/internal/room"
	"github.com/weiawesome/wes-chat-realtime/internal/session"
	"github.com/weiawesome/wes-chat-realtime/internal/store/cassandra"
	"github.com/weiawesome/wes-chat-realtime/pkg/database"
	"github.com/weiawesome/wes-chat-realtime/pkg/jwt"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Init(log.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chat-realtime",
		InstanceID:  cfg.InstanceID,
	})
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat realtime service")

	ctx, cancel := context.WithCancel(log.WithLogger(context.Background(), l))
	defer cancel()

	// Redis: presence, read-progress cache, room summaries, fanout bridge.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		l.Fatal().Err(err).Str("address", cfg.Redis.Address).Msg("failed to connect to redis")
	}
	l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")

	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}

	cass, err := cassandra.NewClient(cfg.Cassandra)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to cassandra")
	}
	if err := cass.EnsureSchema(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to ensure cassandra schema")
	}
	l.Info().Strs("hosts", cfg.Cassandra.Hosts).Str("keyspace", cfg.Cassandra.Keyspace).Msg("connected to cassandra")

	producer, err := pipeline.NewProducer(cfg.Kafka, cfg.InstanceID)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize kafka producer")
	}
	l.Info().Str("brokers", cfg.Kafka.Brokers).Msg("connected to kafka")

	chatHub := hub.New("chat", cfg.WebSocket.SendBuffer)
	statusHub := hub.New("status", cfg.WebSocket.SendBuffer)
	publisher := bridge.NewPublisher(rdb)

	// Read progress
	ledger := readprogress.NewLedger(db)
	var roster *presence.Roster
	if cfg.Presence.LegacyRoster {
		roster = presence.NewRoster(db)
	}
	roomRepo := room.NewRepository(db)
	migrations := []func() error{ledger.Migrate, roomRepo.Migrate}
	if roster != nil {
		migrations = append(migrations, roster.Migrate)
	}
	for _, migrate := range migrations {
		if err := migrate(); err != nil {
			l.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	reads := readprogress.NewService(
		readprogress.NewCache(rdb, cfg.ReadProgress.TTL),
		ledger,
		publisher,
		readprogress.WithAppender(producer),
	)
	reconciler := readprogress.NewReconciler(reads, clock.New(), cfg.ReadProgress.ReconcileInterval, cfg.ReadProgress.ReconcileBatch)

	presenceSvc := presence.NewService(presence.NewRedisStore(rdb, cfg.Presence.TTL), roster, publisher)

	rooms, err := room.NewService(roomRepo, room.NewSummaryCache(rdb), producer, 0)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize room service")
	}

	historySvc := history.NewService(cassandra.NewMessageRepository(cass))

	router := pipeline.NewRouter(cfg.Kafka.Topics.Messages, cfg.Kafka.Topics.RoomUpdates, cfg.InstanceID, chatHub, rooms)
	consumer, err := pipeline.NewConsumer(cfg.Kafka, cfg.InstanceID, router)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize kafka consumer")
	}

	subscriber := bridge.NewSubscriber(rdb, statusHub, reads)

	// Background loops
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil {
			l.Error().Err(err).Msg("kafka consumer stopped")
		}
	}()
	go subscriber.Run(ctx)
	reconciler.Start(ctx)

	// Connections
	tokens, err := jwt.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize token validation")
	}
	detach := session.NewDetacher(cfg.Session.SideEffectTimeout)
	wsServer := session.NewServer(cfg.WebSocket, cfg.Session, cfg.CORS.AllowedOrigins,
		session.NewAuthenticator(tokens, cfg.Auth.CookieName), detach)

	chat := &session.ChatHandler{
		Hub:         chatHub,
		History:     historySvc,
		Rooms:       rooms,
		Pipeline:    producer,
		Reads:       reads,
		Presence:    presenceSvc,
		Detach:      detach,
		Clock:       clock.New(),
		ReplayLimit: cfg.Session.HistoryLimit,
		Timeout:     cfg.Session.SideEffectTimeout,
		Heartbeat:   cfg.Presence.Heartbeat,
	}
	receipts := &session.ReceiptHandler{
		Hub:      statusHub,
		Reads:    reads,
		Presence: presenceSvc,
		Timeout:  cfg.Session.SideEffectTimeout,
	}
	presenceWS := &session.PresenceHandler{Hub: statusHub, Presence: presenceSvc}

	api := handler.NewHTTPHandler(historySvc, presenceSvc, reads, rooms)
	engine := handler.NewEngine(api, l, cfg.CORS.AllowedOrigins)

	// gin logs its own requests; everything else goes through the mux router.
	r := mux.NewRouter()
	r.Use(log.HTTPMiddleware(l))
	wsServer.Mount(r, session.Routes(chat, receipts, presenceWS))
	r.Handle("/metrics", metrics.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	root := http.NewServeMux()
	root.Handle("/api/", engine)
	root.Handle("/", r)

	grpcSrv := grpcserver.New(l)
	grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	if err := grpcSrv.Start(grpcAddr); err != nil {
		l.Fatal().Err(err).Msg("failed to start grpc server")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     root,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		l.Info().Str("address", server.Addr).Msg("chat realtime service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down chat realtime service")
	grpcSrv.Drain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting, then end every session so their drain effects are queued.
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("server forced to shutdown")
	}
	chatHub.Close()
	statusHub.Close()

	if err := detach.Wait(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("side effects still running at shutdown")
	}

	reconciler.Stop()
	if _, err := reads.ReconcileDirty(shutdownCtx, cfg.ReadProgress.ReconcileBatch); err != nil {
		l.Warn().Err(err).Msg("final read progress reconcile failed")
	}

	cancel()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
	}
	select {
	case <-subscriber.Done():
	case <-shutdownCtx.Done():
	}

	grpcSrv.Stop()
	err = multierr.Combine(
		consumer.Close(),
		producer.Close(),
		cass.Close(),
		database.Close(db),
		rdb.Close(),
	)
	if err != nil {
		l.Error().Err(err).Msg("errors while closing resources")
	}

	l.Info().Msg("chat realtime service stopped")
}
