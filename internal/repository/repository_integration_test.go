package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrade/internal/database"
	"copytrade/internal/domain"
)

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, database.RunMigrations(ctx, db))
	return db
}

type seeded struct {
	user     uuid.UUID
	broker   uuid.UUID
	follower uuid.UUID
}

func seed(t *testing.T, db *pgxpool.Pool) seeded {
	t.Helper()
	ctx := context.Background()
	s := seeded{user: uuid.New(), broker: uuid.New(), follower: uuid.New()}

	_, err := db.Exec(ctx, `INSERT INTO users (id, email, password_hash) VALUES ($1, $2, 'x')`,
		s.user, s.user.String()+"@example.com")
	require.NoError(t, err)
	_, err = db.Exec(ctx, `
		INSERT INTO broker_accounts (id, user_id, account_name, api_key, api_secret)
		VALUES ($1, $2, 'master', $3, 'ms')
	`, s.broker, s.user, "mk-"+s.broker.String())
	require.NoError(t, err)
	_, err = db.Exec(ctx, `
		INSERT INTO followers (id, user_id, follower_name, master_broker_account_id, api_key, api_secret, multiplier)
		VALUES ($1, $2, 'alice', $3, 'fk', 'fs', 0.5)
	`, s.follower, s.user, s.broker)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.Exec(ctx, `DELETE FROM copy_trades WHERE master_broker_id = $1`, s.broker)
		_, _ = db.Exec(ctx, `DELETE FROM followers WHERE id = $1`, s.follower)
		_, _ = db.Exec(ctx, `DELETE FROM broker_accounts WHERE id = $1`, s.broker)
		_, _ = db.Exec(ctx, `DELETE FROM users WHERE id = $1`, s.user)
	})
	return s
}

func TestCopyTradeRecordIsIdempotent(t *testing.T) {
	db := setupDB(t)
	s := seed(t, db)
	repo := NewCopyTradeRepository(db)
	ctx := context.Background()

	trade := &domain.CopyTrade{
		MasterTradeID:  "fill_42",
		MasterBrokerID: s.broker,
		FollowerID:     s.follower,
		UserID:         s.user,
		OriginalSymbol: "BTCUSD",
		OriginalSide:   domain.SideBuy,
		OriginalSize:   2,
		CopiedSide:     domain.SideBuy,
		CopiedSize:     1,
		Status:         domain.CopyStatusExecuted,
	}
	inserted, err := repo.Record(ctx, trade)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *trade
	dup.ID = uuid.Nil
	dup.Status = domain.CopyStatusFailed
	inserted, err = repo.Record(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err := repo.Exists(ctx, "fill_42", s.follower)
	require.NoError(t, err)
	assert.True(t, exists)

	rows, err := repo.List(ctx, domain.CopyTradeFilter{FollowerID: &s.follower})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.CopyStatusExecuted, rows[0].Status)

	n, err := repo.MarkExited(ctx, s.broker, s.follower, "BTCUSD", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err = repo.List(ctx, domain.CopyTradeFilter{FollowerID: &s.follower, Status: domain.CopyStatusExited})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotNil(t, rows[0].ExitTime)
}

func TestCopyTradeRecordUnknownFollower(t *testing.T) {
	db := setupDB(t)
	s := seed(t, db)
	repo := NewCopyTradeRepository(db)

	_, err := repo.Record(context.Background(), &domain.CopyTrade{
		MasterTradeID:  "fill_1",
		MasterBrokerID: s.broker,
		FollowerID:     uuid.New(),
		UserID:         s.user,
		OriginalSymbol: "BTCUSD",
		OriginalSide:   domain.SideSell,
		Status:         domain.CopyStatusSkipped,
	})
	assert.ErrorIs(t, err, domain.ErrForeignKeyViolation)
}

func TestBrokerDeactivatePausesFollowers(t *testing.T) {
	db := setupDB(t)
	s := seed(t, db)
	ctx := context.Background()
	brokers := NewBrokerAccountRepository(db)
	followers := NewFollowerRepository(db)

	active, err := followers.GetActiveByBroker(ctx, s.broker)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 0.5, active[0].CopyConfig.Multiplier)
	assert.True(t, active[0].CopyConfig.CopyPositionClose)

	require.NoError(t, brokers.Deactivate(ctx, s.broker))

	b, err := brokers.GetByID(ctx, s.broker)
	require.NoError(t, err)
	assert.False(t, b.IsActive)
	assert.Equal(t, domain.AccountStatusInactive, b.AccountStatus)

	active, err = followers.GetActiveByBroker(ctx, s.broker)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = brokers.Deactivate(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserGetByEmail(t *testing.T) {
	db := setupDB(t)
	s := seed(t, db)
	users := NewUserRepository(db)

	u, err := users.GetByEmail(context.Background(), "  "+s.user.String()+"@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, s.user, u.ID)
	assert.Equal(t, domain.RoleUser, u.Role)

	_, err = users.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBrokerLinkReplacesSameNameAccount(t *testing.T) {
	db := setupDB(t)
	s := seed(t, db)
	ctx := context.Background()
	brokers := NewBrokerAccountRepository(db)
	followers := NewFollowerRepository(db)
	t.Cleanup(func() {
		_, _ = db.Exec(ctx, `DELETE FROM followers WHERE user_id = $1`, s.user)
		_, _ = db.Exec(ctx, `DELETE FROM broker_accounts WHERE user_id = $1`, s.user)
	})

	linked := &domain.BrokerAccount{
		UserID:      s.user,
		AccountName: "master",
		Credentials: domain.Credentials{APIKey: "mk2-" + s.user.String(), APISecret: "ms2"},
	}
	replaced, err := brokers.Link(ctx, linked)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{s.broker}, replaced)
	assert.Equal(t, "delta", linked.BrokerName)
	assert.False(t, linked.CreatedAt.IsZero())

	old, err := brokers.GetByID(ctx, s.broker)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	f, err := followers.GetByID(ctx, s.follower)
	require.NoError(t, err)
	assert.Equal(t, linked.ID, f.MasterBrokerAccountID)

	other := &domain.BrokerAccount{
		UserID:      s.user,
		AccountName: "swing",
		Credentials: domain.Credentials{APIKey: "mk3-" + s.user.String(), APISecret: "ms3"},
	}
	replaced, err = brokers.Link(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, replaced)

	_, err = brokers.Link(ctx, &domain.BrokerAccount{UserID: uuid.New(), AccountName: "ghost",
		Credentials: domain.Credentials{APIKey: "gk", APISecret: "gs"}})
	assert.ErrorIs(t, err, domain.ErrForeignKeyViolation)
}

func TestFollowerCreateAndUpdateCopyConfig(t *testing.T) {
	db := setupDB(t)
	s := seed(t, db)
	ctx := context.Background()
	followers := NewFollowerRepository(db)

	cfg := domain.DefaultCopyConfig()
	cfg.SymbolFilter = []string{"ethusd", "ETHUSD", " btcusd"}
	f := &domain.Follower{
		UserID:                s.user,
		FollowerName:          "carol",
		MasterBrokerAccountID: s.broker,
		Credentials:           domain.Credentials{APIKey: "ck", APISecret: "cs"},
		CopyConfig:            cfg,
	}
	require.NoError(t, followers.Create(ctx, f))
	t.Cleanup(func() { _, _ = db.Exec(ctx, `DELETE FROM followers WHERE id = $1`, f.ID) })

	got, err := followers.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusActive, got.AccountStatus)
	assert.Equal(t, []string{"ETHUSD", "BTCUSD"}, got.CopyConfig.SymbolFilter)
	assert.Equal(t, 0.001, got.CopyConfig.MinLotSize)

	cfg = got.CopyConfig
	cfg.Mode = domain.CopyModeFixedLot
	cfg.FixedLot = 0.25
	cfg.SymbolFilter = nil
	require.NoError(t, followers.UpdateCopyConfig(ctx, f.ID, cfg))

	got, err = followers.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CopyModeFixedLot, got.CopyConfig.Mode)
	assert.Equal(t, 0.25, got.CopyConfig.FixedLot)
	assert.Empty(t, got.CopyConfig.SymbolFilter)

	err = followers.UpdateCopyConfig(ctx, uuid.New(), cfg)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCopyTradeStats(t *testing.T) {
	db := setupDB(t)
	s := seed(t, db)
	repo := NewCopyTradeRepository(db)
	ctx := context.Background()

	for i, status := range []string{domain.CopyStatusExecuted, domain.CopyStatusExited, domain.CopyStatusFailed, domain.CopyStatusSkipped, domain.CopyStatusTest} {
		_, err := repo.Record(ctx, &domain.CopyTrade{
			MasterTradeID:  "fill_stats_" + string(rune('a'+i)),
			MasterBrokerID: s.broker,
			FollowerID:     s.follower,
			UserID:         s.user,
			OriginalSymbol: "BTCUSD",
			OriginalSide:   domain.SideBuy,
			OriginalSize:   1,
			CopiedSide:     domain.SideBuy,
			CopiedSize:     2,
			CopiedPrice:    100,
			Status:         status,
		})
		require.NoError(t, err)
	}

	stats, err := repo.Stats(ctx, s.follower)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalTrades)
	assert.Equal(t, 2, stats.SuccessfulTrades)
	assert.Equal(t, 1, stats.FailedTrades)
	assert.Equal(t, 1, stats.SkippedTrades)
	assert.Equal(t, 1, stats.OpenTrades)
	assert.InDelta(t, 400, stats.TotalVolume, 1e-9)
	assert.InDelta(t, 200, stats.AverageTradeSize, 1e-9)
	assert.InDelta(t, 66.666, stats.SuccessRate, 0.01)
	assert.NotNil(t, stats.LastTradeAt)

	empty, err := repo.Stats(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, empty.TotalTrades)
	assert.Nil(t, empty.LastTradeAt)
}
