package repo

import (
	"context"
	"time"

	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	logx "github.com/clara-care/server/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormLeadRepository struct {
	db *gorm.DB
}

func NewGormLeadRepository(db *gorm.DB) *GormLeadRepository {
	return &GormLeadRepository{db: db}
}

func (r *GormLeadRepository) Create(ctx context.Context, lead *model.Lead) error {
	if err := r.db.WithContext(ctx).Create(lead).Error; err != nil {
		logx.Error().Err(err).Str("lead_id", lead.ID).Msg("failed to insert lead")
		return errx.WrapDB(err)
	}
	return nil
}

type GormConversationRepository struct {
	db *gorm.DB
}

func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		logx.Error().Err(err).Str("conversation_id", c.ID).Msg("failed to insert conversation")
		return errx.WrapDB(err)
	}
	return nil
}

type GormAnalyticsRepository struct {
	db *gorm.DB
}

func NewGormAnalyticsRepository(db *gorm.DB) *GormAnalyticsRepository {
	return &GormAnalyticsRepository{db: db}
}

// IncrementDaily upserts the (agent, day) row. Concurrent increments are
// resolved by the database's ON CONFLICT handling.
func (r *GormAnalyticsRepository) IncrementDaily(ctx context.Context, agentID string, day time.Time) error {
	row := model.AgentAnalytics{
		AgentID:               agentID,
		Date:                  truncateDay(day),
		TotalConversations:    1,
		SuccessfulResolutions: 1,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "agent_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_conversations":    gorm.Expr("agent_analytics.total_conversations + ?", 1),
			"successful_resolutions": gorm.Expr("agent_analytics.successful_resolutions + ?", 1),
		}),
	}).Create(&row).Error
	if err != nil {
		logx.Error().Err(err).Str("agent_id", agentID).Time("date", row.Date).Msg("failed to upsert agent analytics")
		return errx.WrapDB(err)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AutoMigrate creates or updates every table the service touches.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Agent{},
		&model.AgentConfiguration{},
		&model.KnowledgeEntry{},
		&model.PricingPlan{},
		&model.PricingPlanTranslation{},
		&model.Product{},
		&model.ProductTranslation{},
		&model.Lead{},
		&model.Conversation{},
		&model.AgentAnalytics{},
	)
}

var (
	_ model.LeadRepository         = (*GormLeadRepository)(nil)
	_ model.ConversationRepository = (*GormConversationRepository)(nil)
	_ model.AnalyticsRepository    = (*GormAnalyticsRepository)(nil)
)
