package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"candleview/config"
	"candleview/internal/chart"
	"candleview/internal/gateway"
	"candleview/internal/logger"
	"candleview/internal/metrics"
	"candleview/internal/model"
	"candleview/internal/notification"
	"candleview/internal/scheduler"
	"candleview/internal/source"
	redisstore "candleview/internal/store/redis"
	sqlitestore "candleview/internal/store/sqlite"
	"candleview/internal/surface"

	goredis "github.com/go-redis/redis/v8"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[chartd] starting...")

	cfg, err := config.Load(os.Getenv("CHART_CONFIG"))
	if err != nil {
		log.Fatalf("[chartd] config: %v", err)
	}
	slogger := logger.Init("chartd", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	hub := gateway.NewHub(m)
	hub.ConfigStore.SetDefault(cfg.Indicator)

	notifier := buildNotifier(cfg)

	// Redis (optional): overlay config persistence and redis:// sources.
	var rdb *goredis.Client
	var store *redisstore.Store
	if cfg.RedisAddr != "" {
		rdb, err = redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Printf("[chartd] WARNING: %v, continuing without redis", err)
		} else {
			store = redisstore.NewStore(rdb, nil)
			store.Breaker().OnStateChange = func(from, to redisstore.State) {
				m.RedisBreakerOpen.Set(float64(to))
			}
			store.OnBuffer = func(key string) {
				log.Printf("[chartd] redis unavailable, holding write to %s", key)
			}
			hub.ConfigStore.SetBackend(store)
			health.CheckRedis(ctx, rdb)
			log.Printf("[chartd] redis connected at %s", cfg.RedisAddr)
		}
	}

	// SQLite journal (optional).
	var journal *sqlitestore.Writer
	var asyncJournal *sqlitestore.AsyncWriter
	var journalReader *sqlitestore.Reader
	var sqlDB *sql.DB
	var journalW model.JournalWriter
	var journalR model.JournalReader
	if cfg.SQLitePath != "" {
		journal, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[chartd] WARNING: sqlite journal disabled: %v", err)
		} else {
			sqlDB = journal.DB()
			asyncJournal = sqlitestore.NewAsyncWriter(journal, 1024)
			journalW = asyncJournal
			journalReader, err = sqlitestore.NewReader(cfg.SQLitePath)
			if err != nil {
				log.Printf("[chartd] WARNING: journal reader disabled: %v", err)
			} else {
				journalR = journalReader
			}
			health.CheckSQLite(ctx, sqlDB)
		}
	}

	container := surface.NewContainer("chart", cfg.Width, cfg.Height, hub.Sink())
	session := chart.New(chart.Config{
		Delimiter: cfg.DelimiterRune(),
		Metrics:   m,
		Health:    health,
		Notifier:  notifier,
		Journal:   journalW,
		Logger:    slogger,
	})
	if err := session.Initialize(container); err != nil {
		log.Fatalf("[chartd] initialize session: %v", err)
	}
	hub.SetSnapshot(func(emit func([]surface.Command)) {
		if s := container.Surface(); s != nil {
			s.SnapshotWith(emit)
		}
	})
	hub.OnResize(container.SetDimensions)
	slogger.Info("session ready", "session", session.ID(), "width", cfg.Width, "height", cfg.Height)

	resolve := sourceResolver(store)
	src, err := resolve(cfg.Source)
	if err != nil {
		log.Fatalf("[chartd] source: %v", err)
	}

	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	stats, err := session.Load(loadCtx, src)
	loadCancel()
	if err != nil {
		log.Printf("[chartd] WARNING: initial load from %s: %v", src.Name(), err)
	} else {
		log.Printf("[chartd] loaded %s: rows=%d accepted=%d skipped=%d",
			src.Name(), stats.Rows, stats.Accepted, stats.Skipped)
	}

	if hub.ConfigStore.Load(ctx) {
		if settings := hub.ConfigStore.Get(); settings.Active {
			if err := session.DrawOverlay(settings.Config); err != nil {
				log.Printf("[chartd] WARNING: restore overlay %s: %v", settings.Config.Name(), err)
			} else {
				log.Printf("[chartd] restored overlay %s", settings.Config.Name())
			}
		}
	}

	var sched *scheduler.Scheduler
	if cfg.ReloadCron != "" {
		sched = scheduler.New(ctx, session, src)
		if err := sched.Register(cfg.ReloadCron); err != nil {
			log.Fatalf("[chartd] %v", err)
		}
		sched.Start()
	}

	statsCollector := gateway.NewStatsCollector(time.Now())
	go hub.StartStatsBroadcast(ctx, statsCollector, gateway.SessionStats(session), 2*time.Second)
	health.StartLivenessChecker(ctx, rdb, sqlDB, 15*time.Second)

	deps := gateway.Deps{
		Hub:           hub,
		Session:       session,
		Resolve:       resolve,
		DefaultSource:  cfg.Source,
		AllowedSources: cfg.Sources,
		Journal:        journalR,
		Guard:          gateway.NewGuard(cfg.ControlTOTPSecret),
		Stats:          statsCollector,
	}
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, m, health)
		metricsSrv.Start()
	} else {
		deps.Metrics = m.Handler()
		deps.Health = health
	}

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, deps)
	if cfg.ControlTOTPSecret == "" {
		log.Println("[chartd] WARNING: control endpoints are not TOTP-guarded")
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[chartd] serving at http://localhost%s", cfg.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[chartd] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[chartd] shutting down...")
	if sched != nil {
		sched.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[chartd] server shutdown: %v", err)
	}
	if metricsSrv != nil {
		metricsSrv.Stop(shutdownCtx)
	}
	if err := session.Teardown(); err != nil {
		log.Printf("[chartd] teardown: %v", err)
	}
	if journalReader != nil {
		journalReader.Close()
	}
	if asyncJournal != nil {
		asyncJournal.Close()
		if n := asyncJournal.Dropped(); n > 0 {
			log.Printf("[chartd] WARNING: %d journal records dropped", n)
		}
	}
	if journal != nil {
		journal.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
	log.Println("[chartd] stopped")
}

// buildNotifier always logs alerts and adds the webhook and Telegram
// channels when they are configured.
func buildNotifier(cfg *config.Config) notification.Notifier {
	multi := notification.Multi{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		multi = append(multi, notification.NewWebhookNotifier(cfg.WebhookURL, nil))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		multi = append(multi, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID).
			WithCooldown(5*time.Minute))
	}
	return multi
}

// sourceResolver maps a source spec to a Source. redis:// specs need a
// connected store.
func sourceResolver(store *redisstore.Store) func(spec string) (source.Source, error) {
	return func(spec string) (source.Source, error) {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			return nil, fmt.Errorf("%w: empty source", model.ErrInvalidParameter)
		}
		switch config.SourceKind(spec) {
		case "redis":
			if store == nil {
				return nil, fmt.Errorf("%w: %s needs REDIS_ADDR", model.ErrInvalidParameter, spec)
			}
			return redisstore.NewDocumentSource(store, strings.TrimPrefix(spec, "redis://")), nil
		case "http":
			return source.NewHTTP(spec), nil
		default:
			return source.File{Path: spec}, nil
		}
	}
}
