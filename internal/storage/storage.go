package storage

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostedLink 已发布链接，link 唯一索引作为多实例下的幂等键
type PostedLink struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Link      string    `gorm:"size:2048;uniqueIndex" json:"link"`
	CreatedAt time.Time `json:"createdAt"`
}

// RunRecord 一次完整运行的记录；Phases 保存各阶段的计数
type RunRecord struct {
	ID         string            `gorm:"primaryKey;size:26" json:"id"` // ULID
	StartedAt  time.Time         `gorm:"index" json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Trigger    string            `gorm:"size:16" json:"trigger"` // cron / startup / api / cli
	Posted     int               `json:"posted"`
	Phases     datatypes.JSONMap `gorm:"type:jsonb" json:"phases"`

	CreatedAt time.Time `json:"createdAt"`
}

// RunStore 保存与查询运行历史
type RunStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// Store postgres 后端：同时实现 Registry 与 RunStore
type Store struct {
	DB  *gorm.DB
	max int
}

func NewStore(dsn string, max int) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewStoreWithDB(db, max)
}

// NewStoreWithDB 便于接入已有连接（或其他 gorm 方言）
func NewStoreWithDB(db *gorm.DB, max int) (*Store, error) {
	if err := db.AutoMigrate(&PostedLink{}, &RunRecord{}); err != nil {
		return nil, err
	}
	return &Store{DB: db, max: capacity(max)}, nil
}

func (s *Store) IsPosted(ctx context.Context, link string) bool {
	link = normalizeLink(link)
	if link == "" {
		return false
	}
	var n int64
	if err := s.DB.WithContext(ctx).Model(&PostedLink{}).Where("link = ?", link).Count(&n).Error; err != nil {
		log.Warn().Err(err).Str("link", link).Msg("postgres lookup failed, treating as not posted")
		return false
	}
	return n > 0
}

func (s *Store) MarkPosted(ctx context.Context, link string) {
	link = normalizeLink(link)
	if link == "" {
		return
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&PostedLink{Link: link})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		// 超出上限时删掉最旧的记录
		keep := tx.Model(&PostedLink{}).Select("id").Order("id DESC").Limit(s.max)
		return tx.Where("id NOT IN (?)", keep).Delete(&PostedLink{}).Error
	})
	if err != nil {
		log.Error().Err(err).Str("link", link).Msg("could not save posted link")
	}
}

func (s *Store) Links(ctx context.Context) []string {
	var rows []PostedLink
	if err := s.DB.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		log.Warn().Err(err).Msg("postgres list failed")
		return nil
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Link)
	}
	return out
}

func (s *Store) SaveRun(ctx context.Context, rec *RunRecord) error {
	rec.Trigger = strings.TrimSpace(rec.Trigger)
	return s.DB.WithContext(ctx).Create(rec).Error
}

// ListRuns 按开始时间倒序返回最近的运行记录
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var list []RunRecord
	err := s.DB.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&list).Error
	return list, err
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
