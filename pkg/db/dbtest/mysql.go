// Package dbtest 提供基于真实数据库容器的测试连接，用于验证多连接下的行锁语义。
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wyfcoding/shopcart/pkg/db"
)

const (
	mysqlImage    = "mysql:8.0.36"
	mysqlPassword = "shopcart"
	mysqlDatabase = "shopcart"

	// 连接池足够大，并发请求才会真正落在不同会话上
	poolSize = 16
)

// NewMySQL 启动一个 MySQL 容器并返回连接池；短测试模式或没有可用 Docker 时跳过
func NewMySQL(t *testing.T) *db.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("mysql container skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mysqlImage,
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": mysqlPassword,
				"MYSQL_DATABASE":      mysqlDatabase,
			},
			WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	d, err := db.Init(db.Config{
		Driver:       "mysql",
		DSN:          fmt.Sprintf("root:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC", mysqlPassword, host, port.Port(), mysqlDatabase),
		MaxOpenConns: poolSize,
		MaxIdleConns: poolSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}
