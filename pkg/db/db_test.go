package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   uint
	Name string
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(sqlite.Open("file::memory:"), Config{Driver: "sqlite", MaxOpenConns: 1})
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate(&widget{}))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestTransactionRollsBack(t *testing.T) {
	d := openTestDB(t)
	tm := NewTransactionManager(d.DB)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tm.Transaction(ctx, func(ctx context.Context) error {
		require.NoError(t, Conn(ctx, d.DB).Create(&widget{Name: "a"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, d.Model(&widget{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTransactionReusesOuterTx(t *testing.T) {
	d := openTestDB(t)
	tm := NewTransactionManager(d.DB)
	ctx := context.Background()

	err := tm.Transaction(ctx, func(ctx context.Context) error {
		if err := Conn(ctx, d.DB).Create(&widget{Name: "outer"}).Error; err != nil {
			return err
		}
		// 嵌套调用必须复用外层事务，否则单连接下会死锁
		return tm.Transaction(ctx, func(ctx context.Context) error {
			return Conn(ctx, d.DB).Create(&widget{Name: "inner"}).Error
		})
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, d.Model(&widget{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestIsLockTimeout(t *testing.T) {
	assert.False(t, IsLockTimeout(nil))
	assert.False(t, IsLockTimeout(errors.New("syntax error")))
	assert.True(t, IsLockTimeout(fmt.Errorf("q: %w", context.DeadlineExceeded)))
	assert.True(t, IsLockTimeout(&mysql.MySQLError{Number: 1205}))
	assert.True(t, IsLockTimeout(&mysql.MySQLError{Number: 1213}))
	assert.False(t, IsLockTimeout(&mysql.MySQLError{Number: 1062}))
}

func TestInitRejectsUnknownDriver(t *testing.T) {
	_, err := Init(Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
