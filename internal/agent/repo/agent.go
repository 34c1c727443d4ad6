package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
	"gorm.io/gorm"
)

type GormAgentRepository struct {
	db *gorm.DB
}

func NewGormAgentRepository(db *gorm.DB) *GormAgentRepository {
	return &GormAgentRepository{db: db}
}

func (r *GormAgentRepository) FindByName(ctx context.Context, name string) (*model.Agent, error) {
	var a model.Agent
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logx.Error().Err(err).Str("agent", name).Msg("failed to query agent")
		return nil, errx.WrapDB(err)
	}
	return &a, nil
}

func (r *GormAgentRepository) FindConfiguration(ctx context.Context, agentID string) (*model.AgentConfiguration, error) {
	var c model.AgentConfiguration
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logx.Error().Err(err).Str("agent_id", agentID).Msg("failed to query agent configuration")
		return nil, errx.WrapDB(err)
	}
	return &c, nil
}

func (r *GormAgentRepository) ActiveKnowledge(ctx context.Context, agentID string) ([]model.KnowledgeEntry, error) {
	var entries []model.KnowledgeEntry
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND is_active = ?", agentID, true).
		Order("priority DESC").
		Order("title ASC").
		Find(&entries).Error
	if err != nil {
		logx.Error().Err(err).Str("agent_id", agentID).Msg("failed to query knowledge base")
		return nil, errx.WrapDB(err)
	}
	return entries, nil
}

// ProfileLoader reads agent, configuration and knowledge from the store on every call.
type ProfileLoader struct {
	agents model.AgentRepository
}

func NewProfileLoader(agents model.AgentRepository) *ProfileLoader {
	return &ProfileLoader{agents: agents}
}

func (l *ProfileLoader) Load(ctx context.Context, agentName string) (*model.AgentProfile, error) {
	agent, err := l.agents.FindByName(ctx, agentName)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logx.Error().Str("agent", agentName).Msg("agent missing")
			return nil, errx.NotConfigured(fmt.Errorf("agent %q missing", agentName))
		}
		return nil, err
	}
	if agent.Status != model.AgentActive {
		logx.Warn().Str("agent", agentName).Str("status", string(agent.Status)).Msg("serving agent that is not active")
	}

	cfg, err := l.agents.FindConfiguration(ctx, agent.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logx.Error().Str("agent", agentName).Str("agent_id", agent.ID).Msg("agent exists but has no configuration")
			return nil, errx.NotConfigured(fmt.Errorf("agent %q has no configuration", agentName))
		}
		return nil, err
	}

	knowledge, err := l.agents.ActiveKnowledge(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	return &model.AgentProfile{Agent: *agent, Configuration: *cfg, Knowledge: knowledge}, nil
}

var (
	_ model.AgentRepository = (*GormAgentRepository)(nil)
	_ model.ProfileLoader   = (*ProfileLoader)(nil)
)
