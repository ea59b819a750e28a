package minio

import (
	"context"

	"codequiz-publisher/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient))

// NewClient builds a bare client without the bucket check; used by the
// operator CLI.
func NewClient(c *config.Config) (*minio.Client, error) {
	return minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
}

func registerClient(c *config.Config) *minio.Client {
	client, err := NewClient(c)
	if err != nil {
		zap.L().Fatal("failed to create MinIO client", zap.Error(err))
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, c.Minio.BucketName)
	if err != nil {
		zap.L().Fatal("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
	}
	if !exists {
		if err := client.MakeBucket(ctx, c.Minio.BucketName, minio.MakeBucketOptions{}); err != nil {
			zap.L().Fatal("failed to create bucket", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
		}
	}

	zap.L().Info("MinIO client initialized",
		zap.String("endpoint", c.Minio.Endpoint),
		zap.String("bucket", c.Minio.BucketName),
	)
	return client
}
