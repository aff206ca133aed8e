package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newSQLiteStore 在 modernc 连接上用 gorm sqlite 方言运行 Store，不需要 postgres 服务
func newSQLiteStore(t *testing.T, max int) *Store {
	t.Helper()
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "store.db")+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.New(sqlite.Config{Conn: conn}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	s, err := NewStoreWithDB(db, max)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRegistry(t *testing.T) {
	registryContract(t, func(t *testing.T, max int) Registry {
		return newSQLiteStore(t, max)
	})
}

// 设置 CRYPTOBOT_TEST_POSTGRES_DSN 后对真实 postgres 跑同一组用例
func TestStoreRegistryPostgres(t *testing.T) {
	dsn := os.Getenv("CRYPTOBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CRYPTOBOT_TEST_POSTGRES_DSN not set")
	}
	registryContract(t, func(t *testing.T, max int) Registry {
		s, err := NewStore(dsn, max)
		require.NoError(t, err)
		require.NoError(t, s.DB.Exec("TRUNCATE posted_links, run_records RESTART IDENTITY").Error)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStoreMarkPostedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, 10)

	s.MarkPosted(ctx, "https://x")
	s.MarkPosted(ctx, " https://x ")

	var n int64
	require.NoError(t, s.DB.Model(&PostedLink{}).Where("link = ?", "https://x").Count(&n).Error)
	require.EqualValues(t, 1, n)
}

func TestStoreUnavailableTreatedAsNotPosted(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, 10)
	s.MarkPosted(ctx, "https://x")
	require.True(t, s.IsPosted(ctx, "https://x"))

	require.NoError(t, s.Close())
	require.False(t, s.IsPosted(ctx, "https://x"))
	require.Nil(t, s.Links(ctx))
	// 写失败只记日志
	s.MarkPosted(ctx, "https://y")
}

func TestStoreRunHistory(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, 10)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveRun(ctx, &RunRecord{
			ID:         fmt.Sprintf("run-%d", i),
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Trigger:    " cron ",
			Posted:     i,
			Phases: datatypes.JSONMap{
				"news": map[string]any{"name": "news", "posted": i, "enabled": true},
			},
		}))
	}

	list, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "run-2", list[0].ID)
	require.Equal(t, "run-1", list[1].ID)
	require.Equal(t, "cron", list[0].Trigger)
	require.Equal(t, 2, list[0].Posted)
	require.True(t, list[0].StartedAt.Equal(base.Add(2*time.Hour)))

	news, ok := list[0].Phases["news"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 2, news["posted"])
	require.Equal(t, true, news["enabled"])

	// 非法 limit 退回默认值
	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestStoreDuplicateRunRejected(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, 10)
	rec := &RunRecord{ID: "run-1", StartedAt: time.Now().UTC(), Phases: datatypes.JSONMap{}}
	require.NoError(t, s.SaveRun(ctx, rec))
	require.Error(t, s.SaveRun(ctx, &RunRecord{ID: "run-1", StartedAt: time.Now().UTC(), Phases: datatypes.JSONMap{}}))
}
