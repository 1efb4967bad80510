package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"Crowd_Conscious/internal/certificate"
	"Crowd_Conscious/internal/config"
	"Crowd_Conscious/internal/logger"
	"Crowd_Conscious/internal/metrics"
	"Crowd_Conscious/internal/payment"
	"Crowd_Conscious/internal/pkg"
	"Crowd_Conscious/internal/repository/elastic"
	"Crowd_Conscious/internal/repository/mysql"
	"Crowd_Conscious/internal/repository/redis"
	"Crowd_Conscious/internal/router"
	"Crowd_Conscious/internal/service"
	"Crowd_Conscious/internal/storage"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}
}

func serveRun(parent context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.L

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := config.DefaultPolicy()
	if cfg.PolicyFile != "" {
		if policy, err = config.LoadPolicy(cfg.PolicyFile); err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
	}

	db, err := mysql.Open(cfg.MySQL.DSN, cfg.MySQL.MaxOpenConns, cfg.MySQL.MaxIdleConns)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	if cfg.MySQL.AutoMigrate {
		if err := mysql.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	rdb, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}

	// 未配置 Kafka 时事件只写日志
	sender := service.LogSender(log)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer producer.Close()
		sender = service.KafkaSender(producer)
	}

	var index *elastic.ContentIndex
	var syncer *service.SearchSync
	if len(cfg.Elastic.Addresses) > 0 {
		client, err := elastic.NewClient(cfg.Elastic.Addresses)
		if err != nil {
			return fmt.Errorf("init elasticsearch: %w", err)
		}
		index = &elastic.ContentIndex{ES: client}
		syncer = service.NewSearchSync(db, client, 0, log.Named("search-sync"))
	}

	var raster certificate.Rasterizer
	if cfg.Certificate.Enabled {
		rr := certificate.NewRodRasterizer(cfg.Certificate.ChromeBin)
		defer rr.Close()
		raster = rr
	}

	mailer := pkg.NewSMTPMailer(pkg.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	tm := pkg.NewTokenManager(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	sessions := &redis.UserRepository{RDB: rdb, TTL: cfg.JWT.AccessTTL}
	uploader := service.NewUploader(store, cfg.Server.MaxUploadBytes, log)

	emails := service.NewEmailService(&redis.EmailRepository{RDB: rdb}, mailer, log)
	xp := service.NewGamificationService(db, policy, &redis.LeaderboardRepository{RDB: rdb},
		&redis.DistLock{RDB: rdb, TTL: 10 * time.Second}, log)
	communities := service.NewCommunityService(db, policy, uploader, cfg.Storage.CommunityBucket, log)

	sponsorships := service.NewSponsorshipService(db, &redis.IdempotencyRepository{RDB: rdb, TTL: 24 * time.Hour},
		gateway, mailer, policy, log)
	if cfg.Stripe.Currency != "" {
		sponsorships.Currency = strings.ToLower(cfg.Stripe.Currency)
	}
	if cfg.Stripe.HoldTTL > 0 {
		sponsorships.HoldTTL = cfg.Stripe.HoldTTL
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	handler := router.New(cfg.Server, router.Deps{
		Users:        service.NewUserService(db, sessions, emails, tm, uploader, cfg.Storage.AvatarBucket, log),
		Emails:       emails,
		Communities:  communities,
		Contents:     service.NewContentService(db, communities, xp, index, uploader, cfg.Storage.ContentBucket, policy, log),
		Sponsorships: sponsorships,
		Impact:       service.NewImpactService(db, communities, policy, log),
		XP:           xp,
		Corporate:    service.NewCorporateService(db, xp, policy, log),
		Certificates: service.NewCertificateService(db, raster, cfg.Server.PublicBaseURL, log),
		Tokens:       tm,
		Sessions:     sessions,
		Gatherer:     reg,
		Health: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		Log: log,
	})

	relayer := service.NewOutboxRelayer(db, sender, cfg.Jobs.OutboxInterval, cfg.Jobs.OutboxMaxRetry, log.Named("outbox"))
	relayer.BatchSize = cfg.Jobs.OutboxBatch
	reconciler := service.NewReconciler(db, cfg.Jobs.ReconcileSpec, log.Named("reconciler"))
	if cfg.Jobs.ReconcileBatch > 0 {
		reconciler.BatchSize = cfg.Jobs.ReconcileBatch
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownWait)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		relayer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	if syncer != nil {
		// 搜索同步失败不影响主服务
		g.Go(func() error {
			if err := syncer.Run(gctx); err != nil {
				log.Error("search sync stopped", zap.Error(err))
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info("shutdown complete", zap.Error(err))
	return err
}

// newGateway 未配置 Stripe 密钥时仅允许在非 release 模式下使用本地假网关
func newGateway(cfg *config.Config) (payment.Gateway, error) {
	if cfg.Stripe.SecretKey != "" {
		g := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		g.Destination = cfg.Stripe.ConnectAccount
		return g, nil
	}
	if cfg.Server.Mode == "release" {
		return nil, errors.New("stripe secret key required in release mode")
	}
	logger.L.Warn("stripe not configured, using fake payment gateway")
	return payment.NewFakeGateway(cfg.Stripe.WebhookSecret), nil
}
