package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🗄️ 持久层入口
// =============================================================================

// Driver 数据库驱动类型
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
)

// Config 持久层配置
type Config struct {
	// 驱动类型：sqlite / mysql / postgres
	Driver Driver `yaml:"driver" json:"driver"`

	// 数据源连接串
	DSN string `yaml:"dsn" json:"dsn"`

	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`

	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultConfig 返回默认持久层配置
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "appflow.db",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
	}
}

// Store 持久层，承载工作流记录、智能体事件轨迹与节点执行历史。
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 按配置打开数据库并迁移表结构。
func Open(config Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(config.DSN)
	case DriverMySQL:
		dialector = mysql.Open(config.DSN)
	case DriverPostgres:
		dialector = postgres.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	store, err := NewStoreWithDB(db, logger)
	if err != nil {
		return nil, err
	}
	store.logger.Info("store initialized",
		zap.String("driver", string(config.Driver)),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)
	return store, nil
}

// NewStoreWithDB 使用已有连接创建持久层并迁移表结构，供测试注入
// 内存 sqlite。
func NewStoreWithDB(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&WorkflowRecord{}, &AgentThoughtRecord{}, &NodeResultRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}, nil
}

// DB 返回底层 GORM 实例
func (s *Store) DB() *gorm.DB { return s.db }

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTransaction 在事务中执行函数
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}
