package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/solarisops/assistant-go/internal/config"
	"github.com/solarisops/assistant-go/internal/logger"
)

// ObjectStore 手册原文对象存储，引用链接从这里签发
type ObjectStore struct {
	client *minio.Client
	bucket string
	urlTTL time.Duration
}

var globalStore *ObjectStore

// InitObjectStore 初始化MinIO客户端
func InitObjectStore() (*ObjectStore, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if !cfg.Storage.Enabled || cfg.Storage.Endpoint == "" {
		return nil, nil
	}

	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	urlTTL := time.Duration(cfg.Storage.URLTTL) * time.Second
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}

	globalStore = &ObjectStore{
		client: client,
		bucket: cfg.Storage.Bucket,
		urlTTL: urlTTL,
	}

	logger.Info("✅ Object storage connected successfully")
	return globalStore, nil
}

// GetObjectStore 获取全局对象存储实例，未启用时为nil
func GetObjectStore() *ObjectStore {
	return globalStore
}

// PresignedDocURL 为引用的手册生成限时下载链接
// pageSection非空时追加页码锚点，浏览器PDF查看器可以直接跳转
func (s *ObjectStore) PresignedDocURL(ctx context.Context, objectName, pageSection string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("object store not initialized")
	}
	if objectName == "" {
		return "", fmt.Errorf("object name is empty")
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, s.urlTTL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectName, err)
	}

	url := presigned.String()
	if pageSection != "" {
		url = fmt.Sprintf("%s#page=%s", url, pageSection)
	}
	return url, nil
}
