package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/solarisops/assistant-go/internal/logger"
	"github.com/solarisops/assistant-go/internal/models"
)

// ChunkStore 分块元数据读取接口，邻接拼接依赖它
type ChunkStore interface {
	GetChunk(ctx context.Context, chunkID string) (*models.ManualChunk, error)
	GetNeighbors(ctx context.Context, chunkID string) (prev *models.ManualChunk, next *models.ManualChunk, err error)
}

const chunkCacheTTL = 30 * time.Minute

// DBChunkStore 基于Postgres的分块存储，带Redis读穿缓存
// redisClient为nil时直接退化为纯DB读取
type DBChunkStore struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewDBChunkStore 创建分块存储
func NewDBChunkStore(db *gorm.DB, redisClient *redis.Client) *DBChunkStore {
	return &DBChunkStore{db: db, redisClient: redisClient}
}

func chunkCacheKey(chunkID string) string {
	return fmt.Sprintf("chunk:%s", chunkID)
}

// GetChunk 读取单个分块，优先走缓存
func (s *DBChunkStore) GetChunk(ctx context.Context, chunkID string) (*models.ManualChunk, error) {
	if chunkID == "" {
		return nil, fmt.Errorf("chunk id is empty")
	}

	// 1. 先查缓存
	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, chunkCacheKey(chunkID)).Result()
		if err == nil {
			var chunk models.ManualChunk
			if jsonErr := json.Unmarshal([]byte(cached), &chunk); jsonErr == nil {
				return &chunk, nil
			}
		} else if err != redis.Nil {
			logger.Warn("Chunk cache read failed", zap.String("chunk_id", chunkID), zap.Error(err))
		}
	}

	// 2. 缓存未命中，查数据库
	var chunk models.ManualChunk
	if err := s.db.WithContext(ctx).Where("chunk_id = ?", chunkID).First(&chunk).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load chunk %s: %w", chunkID, err)
	}

	// 3. 回填缓存，失败只记日志
	if s.redisClient != nil {
		if data, err := json.Marshal(&chunk); err == nil {
			if err := s.redisClient.Set(ctx, chunkCacheKey(chunkID), data, chunkCacheTTL).Err(); err != nil {
				logger.Warn("Chunk cache write failed", zap.String("chunk_id", chunkID), zap.Error(err))
			}
		}
	}

	return &chunk, nil
}

// GetNeighbors 返回分块的前后邻接块，不存在的一侧返回nil
func (s *DBChunkStore) GetNeighbors(ctx context.Context, chunkID string) (*models.ManualChunk, *models.ManualChunk, error) {
	chunk, err := s.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, nil, err
	}
	if chunk == nil {
		return nil, nil, nil
	}

	var prev, next *models.ManualChunk
	if chunk.PrevChunkID != "" {
		prev, err = s.GetChunk(ctx, chunk.PrevChunkID)
		if err != nil {
			return nil, nil, err
		}
	}
	if chunk.NextChunkID != "" {
		next, err = s.GetChunk(ctx, chunk.NextChunkID)
		if err != nil {
			return prev, nil, err
		}
	}

	return prev, next, nil
}
