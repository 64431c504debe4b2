package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/internal/kafka"
	"github.com/solarisops/assistant-go/internal/knowledge"
	"github.com/solarisops/assistant-go/internal/logger"
	"github.com/solarisops/assistant-go/internal/pipeline"
	"github.com/solarisops/assistant-go/internal/storage"
)

// QueryPipeline 问答流水线抽象
type QueryPipeline interface {
	Run(ctx context.Context, query string, history []pipeline.ConversationTurn, sessionID string) (*pipeline.Response, error)
}

// ChatService 问答服务：会话历史、流水线调用、引用链接、审计
type ChatService struct {
	pipeline QueryPipeline
	sessions *SessionStore
	store    *storage.ObjectStore
}

// ChatRequest 一次提问
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// ChatResponse 一次回答
type ChatResponse struct {
	SessionID              string                     `json:"session_id"`
	Answer                 string                     `json:"answer"`
	Citations              []knowledge.Citation       `json:"citations"`
	ConfidenceScore        float64                    `json:"confidence_score"`
	ValidationOutcome      pipeline.ValidationOutcome `json:"validation_outcome"`
	DetectedEquipmentModel string                     `json:"detected_equipment_model,omitempty"`
}

// NewChatService 创建问答服务，store可以为nil（引用不带链接）
func NewChatService(p QueryPipeline, sessions *SessionStore, store *storage.ObjectStore) *ChatService {
	return &ChatService{
		pipeline: p,
		sessions: sessions,
		store:    store,
	}
}

// Ask 处理一次提问
func (s *ChatService) Ask(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// 1. 加载会话历史，读失败降级为无历史
	var history []pipeline.ConversationTurn
	if s.sessions != nil {
		var err error
		history, err = s.sessions.LoadHistory(ctx, sessionID)
		if err != nil {
			logger.Warn("Failed to load session history", zap.String("session_id", sessionID), zap.Error(err))
			history = nil
		}
	}

	// 2. 执行流水线
	resp, err := s.pipeline.Run(ctx, req.Query, history, sessionID)
	if err != nil {
		return nil, err
	}

	// 3. 为引用补充限时下载链接
	citations := s.attachCitationURLs(ctx, resp.Citations)

	// 4. 落会话历史，失败只记日志
	if s.sessions != nil {
		now := time.Now()
		err := s.sessions.AppendTurns(ctx, sessionID,
			pipeline.ConversationTurn{Role: pipeline.RoleUser, Content: req.Query, Timestamp: now},
			pipeline.ConversationTurn{Role: pipeline.RoleAssistant, Content: resp.Answer, Timestamp: now},
		)
		if err != nil {
			logger.Warn("Failed to save session history", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	// 5. 审计消息，尽力而为
	sources := make([]string, 0, len(citations))
	for _, c := range citations {
		sources = append(sources, c.Source)
	}
	if err := kafka.AuditAnswer(&kafka.AnswerAuditMessage{
		SessionID:         sessionID,
		Query:             req.Query,
		Answer:            resp.Answer,
		EquipmentModel:    resp.DetectedEquipmentModel,
		ConfidenceScore:   resp.ConfidenceScore,
		ValidationOutcome: string(resp.ValidationOutcome),
		CitationSources:   sources,
	}); err != nil {
		logger.Warn("Failed to audit answer", zap.String("session_id", sessionID), zap.Error(err))
	}

	return &ChatResponse{
		SessionID:              sessionID,
		Answer:                 resp.Answer,
		Citations:              citations,
		ConfidenceScore:        resp.ConfidenceScore,
		ValidationOutcome:      resp.ValidationOutcome,
		DetectedEquipmentModel: resp.DetectedEquipmentModel,
	}, nil
}

// History 返回某个会话的全部历史
func (s *ChatService) History(ctx context.Context, sessionID string) ([]pipeline.ConversationTurn, error) {
	if s.sessions == nil {
		return nil, nil
	}
	return s.sessions.LoadHistory(ctx, sessionID)
}

// ClearSession 清空某个会话
func (s *ChatService) ClearSession(ctx context.Context, sessionID string) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.ClearHistory(ctx, sessionID)
}

// attachCitationURLs 对象存储可用时为每条引用签发链接，失败只跳过该条
func (s *ChatService) attachCitationURLs(ctx context.Context, citations []knowledge.Citation) []knowledge.Citation {
	if s.store == nil {
		return citations
	}

	enriched := make([]knowledge.Citation, len(citations))
	for i, c := range citations {
		url, err := s.store.PresignedDocURL(ctx, c.Source, c.PageSection)
		if err != nil {
			logger.Warn("Failed to presign citation url", zap.String("source", c.Source), zap.Error(err))
		} else {
			c.URL = url
		}
		enriched[i] = c
	}
	return enriched
}
