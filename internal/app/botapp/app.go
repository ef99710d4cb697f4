package botapp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/config"
	"github.com/hmcelik/telegram-moderator-bot-sub001/internal/domain/model"
	classifierinfra "github.com/hmcelik/telegram-moderator-bot-sub001/internal/infra/classifier"
	s3infra "github.com/hmcelik/telegram-moderator-bot-sub001/internal/infra/s3"
	tginfra "github.com/hmcelik/telegram-moderator-bot-sub001/internal/infra/telegram"
	pgrepo "github.com/hmcelik/telegram-moderator-bot-sub001/internal/repo/postgres"
	redrepo "github.com/hmcelik/telegram-moderator-bot-sub001/internal/repo/redis"
	analyticsvc "github.com/hmcelik/telegram-moderator-bot-sub001/internal/services/analytics"
	auditsvc "github.com/hmcelik/telegram-moderator-bot-sub001/internal/services/audit"
	escalationsvc "github.com/hmcelik/telegram-moderator-bot-sub001/internal/services/escalation"
	modsvc "github.com/hmcelik/telegram-moderator-bot-sub001/internal/services/moderation"
	strikesvc "github.com/hmcelik/telegram-moderator-bot-sub001/internal/services/strikes"
)

type App struct {
	cfg    config.Config
	logger *zap.Logger

	postgres *pgxpool.Pool
	redis    *goredis.Client
	s3       *minio.Client
	bot      *tginfra.Bot

	strikes   *strikesvc.Service
	audit     *auditsvc.Service
	analytics *analyticsvc.Service
	pipeline  *modsvc.Service
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		logger.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	strikeRepo := pgrepo.NewStrikeRepo(pool)
	auditRepo := pgrepo.NewAuditRepo(pool)

	strikeService := strikesvc.NewService(strikeRepo)
	auditService := auditsvc.NewService(auditRepo)
	analyticsService := analyticsvc.NewService(auditRepo)
	analyticsService.AttachCache(redrepo.NewStatsCacheRepo(redisClient, cfg.Redis.StatsTTL))

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		logger.Warn("s3 init failed, export uploads disabled", zap.Error(err))
	} else {
		s3Client = c
		auditService.AttachArtifactStore(auditsvc.NewS3ArtifactStore(s3Client, cfg.S3.Bucket))
	}

	var bot *tginfra.Bot
	if strings.TrimSpace(cfg.Bot.Token) != "" {
		b, err := tginfra.NewBot(cfg.Bot.Token, cfg.Bot.PollTimeout)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
		bot = b
	} else {
		logger.Warn("BOT_TOKEN is empty, message listener disabled")
	}

	var enforcer escalationsvc.Enforcer
	if bot != nil {
		enforcer = bot
	}

	escalator := escalationsvc.NewService(enforcer, strikeService, auditRepo, escalationsvc.Config{
		AlertTemplate:   cfg.Moderation.AlertTemplate,
		AlertAutoDelete: cfg.Moderation.AlertAutoDelete,
	}, logger)

	var classifier modsvc.Classifier
	if strings.TrimSpace(cfg.Classifier.URL) != "" {
		c, err := classifierinfra.NewClient(cfg.Classifier.URL, cfg.Classifier.Timeout)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, fmt.Errorf("init classifier client: %w", err)
		}
		classifier = c
	} else {
		logger.Warn("CLASSIFIER_URL is empty, automatic moderation disabled")
	}

	settings := modsvc.NewStaticSettings(modsvc.GroupSettings{
		SpamThreshold:      cfg.Moderation.SpamThreshold,
		ProfanityThreshold: cfg.Moderation.ProfanityThreshold,
		SpamKeywords:       cfg.Moderation.SpamKeywords,
		ProfanityKeywords:  cfg.Moderation.ProfanityKeywords,
		Policy: model.GroupPenaltyPolicy{
			AlertLevel:           cfg.Moderation.AlertLevel,
			MuteLevel:            cfg.Moderation.MuteLevel,
			KickLevel:            cfg.Moderation.KickLevel,
			BanLevel:             cfg.Moderation.BanLevel,
			MuteDurationMinutes:  cfg.Moderation.MuteDurationMinutes,
			StrikeExpirationDays: cfg.Moderation.StrikeExpirationDays,
		},
	})

	pipeline := modsvc.NewService(modsvc.Dependencies{
		Classifier: classifier,
		Settings:   settings,
		Ledger:     strikeService,
		Audit:      auditService,
		Escalator:  escalator,
		Enforcer:   enforcer,
	}, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		postgres:  pool,
		redis:     redisClient,
		s3:        s3Client,
		bot:       bot,
		strikes:   strikeService,
		audit:     auditService,
		analytics: analyticsService,
		pipeline:  pipeline,
	}, nil
}

// Run blocks on the telegram update loop until the context ends. Without a
// bot token there is nothing to listen to and Run waits for shutdown.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("moderator bot started")

	if a.bot == nil {
		<-ctx.Done()
		return nil
	}

	return a.bot.Listen(ctx, tginfra.Handlers{
		OnMessage: a.handleMessage,
	})
}

func (a *App) handleMessage(ctx context.Context, update tginfra.MessageUpdate) error {
	mention := strconv.FormatInt(update.UserID, 10)
	if update.Username != "" {
		mention = "@" + update.Username
	}

	outcome, err := a.pipeline.ProcessMessage(ctx, modsvc.IncomingMessage{
		GroupID:     strconv.FormatInt(update.ChatID, 10),
		UserID:      strconv.FormatInt(update.UserID, 10),
		UserMention: mention,
		MessageID:   update.MessageID,
		Text:        update.Text,
	})
	if err != nil {
		a.logger.Error("process message",
			zap.Int64("chat_id", update.ChatID),
			zap.Int64("user_id", update.UserID),
			zap.Error(err),
		)
		return err
	}

	if outcome.Violation != nil {
		a.logger.Info("violation handled",
			zap.Int64("chat_id", update.ChatID),
			zap.Int64("user_id", update.UserID),
			zap.String("violation", string(*outcome.Violation)),
			zap.Int("strike_count", outcome.StrikeCount),
		)
	}

	return nil
}

// Strikes exposes the ledger operations to the surrounding command layer.
func (a *App) Strikes() *strikesvc.Service { return a.strikes }

// Audit exposes append/query/export.
func (a *App) Audit() *auditsvc.Service { return a.audit }

// Analytics exposes the aggregate queries.
func (a *App) Analytics() *analyticsvc.Service { return a.analytics }

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
