package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/apperr"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/storage/memory"
)

type failingIssuer struct{}

func (failingIssuer) Issue(context.Context, int64, coupon.Type, decimal.Decimal) (*coupon.Coupon, error) {
	return nil, errors.New("db down")
}

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

func TestParseGrant(t *testing.T) {
	g, err := parseGrant(" g-1 , alice , PERCENTAGE , 12.5 ")
	require.NoError(t, err)
	assert.Equal(t, "g-1", g.ID)
	assert.Equal(t, "alice", g.LoginID)
	assert.Equal(t, coupon.Percentage, g.Type)
	assert.True(t, decimal.RequireFromString("12.5").Equal(g.Value))

	for _, bad := range []string{
		"g-1,alice,PERCENTAGE",
		"g-1,alice,PERCENTAGE,150",
		"g-1,alice,BOGUS,10",
		"g-1,alice,FIXED_AMOUNT,ten",
		",alice,FIXED_AMOUNT,10",
	} {
		_, err := parseGrant(bad)
		assert.Error(t, err, bad)
	}

	_, err = parseGrant("g-1,alice,FIXED_AMOUNT,-5")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestFindRepeated(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "# campaign A", "g-1,alice,FIXED_AMOUNT,1000", "g-2,bob,FIXED_AMOUNT,1000", ""),
		writeGz(t, dir, "b.gz", "g-2,bob,FIXED_AMOUNT,1000", "g-3,carol,PERCENTAGE,10"),
		writeGz(t, dir, "c.gz", "g-2,bob,FIXED_AMOUNT,1000", "g-4,alice,PERCENTAGE,5"),
	}

	repeated, err := findRepeated(context.Background(), files, 1000, 0.0001)
	require.NoError(t, err)
	assert.Contains(t, repeated, "g-2")
}

func TestIssueFiles(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, login := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.Users().Create(ctx, &user.User{LoginID: login}))
	}

	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz",
			"g-1,alice,FIXED_AMOUNT,1000",
			"g-2,bob,FIXED_AMOUNT,1000",
			"broken line",
		),
		writeGz(t, dir, "b.gz",
			"g-2,bob,FIXED_AMOUNT,1000",
			"g-3,carol,PERCENTAGE,10",
			"g-5,nobody,PERCENTAGE,10",
		),
		writeGz(t, dir, "c.gz",
			"g-2,bob,FIXED_AMOUNT,1000",
			"g-4,alice,PERCENTAGE,5",
			"g-6,alice,PERCENTAGE,101",
		),
	}

	repeated, err := findRepeated(ctx, files, 1000, 0.0001)
	require.NoError(t, err)

	ledger := coupon.NewLedger(store.Coupons())
	stats, err := newIssuer(store.Users(), ledger, repeated, 4).issueFiles(ctx, files)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Issued)
	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 2, stats.Invalid)
	assert.Equal(t, 1, stats.NoUser)

	counts := map[string]int{}
	for _, login := range []string{"alice", "bob", "carol"} {
		u, err := store.Users().FindByLoginID(ctx, login)
		require.NoError(t, err)
		coupons, err := ledger.Available(ctx, u.ID)
		require.NoError(t, err)
		counts[login] = len(coupons)
	}
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1, "carol": 1}, counts)
}

func TestIssueFiles_StopsOnIssuerError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Users().Create(ctx, &user.User{LoginID: "alice"}))

	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.gz", "g-1,alice,FIXED_AMOUNT,1000")}

	_, err := newIssuer(store.Users(), failingIssuer{}, map[string]struct{}{}, 2).issueFiles(ctx, files)
	require.ErrorContains(t, err, "db down")
}
