package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clara-care/server/internal/agent/model"
	errx "github.com/clara-care/server/internal/core/error"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	agentID  = "6f1f4a4e-6d7b-4f0a-9a51-3f2a7f7c0001"
	planID   = "6f1f4a4e-6d7b-4f0a-9a51-3f2a7f7c0101"
	device1  = "6f1f4a4e-6d7b-4f0a-9a51-3f2a7f7c0201"
	device2  = "6f1f4a4e-6d7b-4f0a-9a51-3f2a7f7c0202"
	unknownD = "6f1f4a4e-6d7b-4f0a-9a51-3f2a7f7c0299"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestFindByName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormAgentRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "ai_agents" WHERE name = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "status"}).
			AddRow(agentID, "clara", "Clara", "active"))

	a, err := repo.FindByName(context.Background(), "clara")
	require.NoError(t, err)
	assert.Equal(t, agentID, a.ID)
	assert.Equal(t, model.AgentActive, a.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByNameMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormAgentRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "ai_agents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := repo.FindByName(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFindConfigurationDBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormAgentRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "ai_agent_configurations"`).WillReturnError(errors.New("connection reset"))

	_, err := repo.FindConfiguration(context.Background(), agentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrPersistence)
}

func TestActiveKnowledgeOrdersByPriority(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormAgentRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "ai_knowledge_base" WHERE .*agent_id = \$1 AND is_active = \$2.* ORDER BY priority DESC,\s*title ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "agent_id", "title", "content", "category", "priority", "tags", "is_active"}).
			AddRow("k1", agentID, "Leases", "12 months", "sales", 10, []byte(`["lease"]`), true).
			AddRow("k2", agentID, "Devices", "Fall sensor", "product", 5, []byte(`[]`), true))

	entries, err := repo.ActiveKnowledge(context.Background(), agentID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"lease"}, entries[0].Tags)
	assert.Equal(t, 5, entries[1].Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivePlansPreloadsTranslations(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormCatalogRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "pricing_plans" WHERE is_active = \$1 ORDER BY sort_order ASC,\s*name ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price_monthly", "currency", "features", "sort_order", "is_active"}).
			AddRow(planID, "Basic", "29.99", "EUR", []byte(`["24/7 alarm"]`), 1, true))
	mock.ExpectQuery(`SELECT \* FROM "pricing_plan_translations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_id", "language", "name"}).
			AddRow("t1", planID, "nl", "Basis"))

	plans, err := repo.ActivePlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].PriceMonthly.Equal(decimal.RequireFromString("29.99")))
	assert.Equal(t, []string{"24/7 alarm"}, plans[0].Features)
	require.Len(t, plans[0].Translations, 1)
	assert.Equal(t, "Basis", plans[0].Translations[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPlanRejectsMalformedID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormCatalogRepository(db)

	_, err := repo.FindPlan(context.Background(), "basic")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDevicesSkipsUnknownAndKeepsOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormCatalogRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "products" WHERE .*id IN`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "category", "price_monthly"}).
			AddRow(device1, "Fall sensor", "device", "5.00").
			AddRow(device2, "GPS watch", "device", "7.50"))

	got, err := repo.FindDevices(context.Background(), []string{device2, "not-a-uuid", unknownD, device1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, device2, got[0].ID)
	assert.Equal(t, device1, got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDevicesEmptySkipsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormCatalogRepository(db)

	got, err := repo.FindDevices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLead(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormLeadRepository(db)

	mock.ExpectExec(`INSERT INTO "leads"`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &model.Lead{
		ID: "6f1f4a4e-6d7b-4f0a-9a51-3f2a7f7c0301", Name: "Jane", Email: "jane@x.com",
		InterestType: "personal", SourcePage: "clara-chat", Status: model.LeadNew,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementDailyUpsertsEveryCall(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormAnalyticsRepository(db)

	upsert := `INSERT INTO "agent_analytics" .* ON CONFLICT \("agent_id","date"\) DO UPDATE SET .*total_conversations.*`
	mock.ExpectExec(upsert).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsert).WillReturnResult(sqlmock.NewResult(0, 1))

	day := time.Date(2026, 3, 4, 22, 15, 0, 0, time.UTC)
	require.NoError(t, repo.IncrementDaily(context.Background(), agentID, day))
	require.NoError(t, repo.IncrementDaily(context.Background(), agentID, day.Add(time.Hour)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConversationWrapsError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormConversationRepository(db)

	mock.ExpectExec(`INSERT INTO "ai_conversations"`).WillReturnError(errors.New("duplicate key value violates unique constraint"))

	err := repo.Create(context.Background(), &model.Conversation{ID: "c1", AgentID: agentID, SessionID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrPersistence)
}

func TestTruncateDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	got := truncateDay(time.Date(2026, 3, 5, 1, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), got)
}
