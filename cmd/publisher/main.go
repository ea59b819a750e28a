package main

import (
	"codequiz-publisher/internal/server"
	"codequiz-publisher/pkg/config"
	"codequiz-publisher/pkg/db"
	"codequiz-publisher/pkg/logger"
	"codequiz-publisher/pkg/minio"
	"codequiz-publisher/pkg/redis"
	"codequiz-publisher/pkg/task"
	"codequiz-publisher/services/media"
	"codequiz-publisher/services/pipeline"
	"codequiz-publisher/services/quiz"
	"codequiz-publisher/services/social"
	"codequiz-publisher/services/telegram"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		minio.Client,
		task.Client,
		task.Server,

		fx.Provide(newSnowflakeNode),
		fx.Invoke(migrate),

		quiz.Module,
		media.Module,
		telegram.Module,
		social.Module,
		pipeline.Module,
		server.Module,
	)

	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(gdb *gorm.DB) {
	models := []any{
		&quiz.Task{},
		&quiz.TaskTranslation{},
		&media.BackgroundMusic{},
	}
	models = append(models, social.Models()...)

	if err := gdb.AutoMigrate(models...); err != nil {
		zap.L().Fatal("database migration failed", zap.Error(err))
	}
}
