package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/coupon"
	"github.com/yoobinbkk/loopers-ecommerce-project/internal/domain/user"
)

const progressEvery = 100_000

// grant is one line of a grant file: "grantId,loginId,TYPE,value".
type grant struct {
	ID      string
	LoginID string
	Type    coupon.Type
	Value   decimal.Decimal
}

func parseGrant(line string) (grant, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return grant{}, errors.Errorf("want 4 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	g := grant{ID: fields[0], LoginID: fields[1], Type: coupon.Type(fields[2])}
	if g.ID == "" || g.LoginID == "" {
		return grant{}, errors.New("empty grant or login id")
	}
	v, err := decimal.NewFromString(fields[3])
	if err != nil {
		return grant{}, errors.Wrap(err, "value")
	}
	if err := g.Type.Validate(v); err != nil {
		return grant{}, err
	}
	g.Value = v
	return g, nil
}

// streamGrants calls fn for every non-blank, non-comment line of the gzip
// file at path, along with its line number.
func streamGrants(ctx context.Context, path string, fn func(n int, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// findRepeated scans every file concurrently and returns the grant ids that
// may occur more than once. A shared bloom filter flags ids seen before, so
// the result holds every real repeat plus a few false positives; ids outside
// it are known to be unique without keeping all of them in memory.
func findRepeated(ctx context.Context, files []string, capacity uint, fpr float64) (map[string]struct{}, error) {
	var (
		mu       sync.Mutex
		filter   = bloom.NewWithEstimates(capacity, fpr)
		repeated = make(map[string]struct{})
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range files {
		g.Go(func() error {
			var count int
			err := streamGrants(ctx, path, func(_ int, line string) error {
				id, _, _ := strings.Cut(line, ",")
				id = strings.TrimSpace(id)

				mu.Lock()
				if filter.TestAndAddString(id) {
					repeated[id] = struct{}{}
				}
				mu.Unlock()

				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Int("grants", count))
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Int("grants", count))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return repeated, nil
}

// Issuer creates coupons.
type Issuer interface {
	Issue(ctx context.Context, userID int64, t coupon.Type, value decimal.Decimal) (*coupon.Coupon, error)
}

type issueStats struct {
	Issued     int
	Duplicates int
	Invalid    int
	NoUser     int
}

type issuer struct {
	users   user.Finder
	coupons Issuer
	workers int

	mu       sync.Mutex
	userIDs  map[string]int64
	issued   map[string]struct{}
	repeated map[string]struct{}
	stats    issueStats
}

func newIssuer(users user.Finder, coupons Issuer, repeated map[string]struct{}, workers int) *issuer {
	return &issuer{
		users:    users,
		coupons:  coupons,
		workers:  max(workers, 1),
		userIDs:  make(map[string]int64),
		issued:   make(map[string]struct{}),
		repeated: repeated,
	}
}

// claim reports whether g should be issued now. Ids that may repeat are
// remembered exactly so that later copies are skipped.
func (is *issuer) claim(g grant) bool {
	is.mu.Lock()
	defer is.mu.Unlock()

	if _, ok := is.repeated[g.ID]; !ok {
		return true
	}
	if _, ok := is.issued[g.ID]; ok {
		is.stats.Duplicates++
		return false
	}
	is.issued[g.ID] = struct{}{}
	return true
}

func (is *issuer) count(f func(s *issueStats)) {
	is.mu.Lock()
	f(&is.stats)
	is.mu.Unlock()
}

func (is *issuer) userID(ctx context.Context, loginID string) (int64, bool, error) {
	is.mu.Lock()
	id, ok := is.userIDs[loginID]
	is.mu.Unlock()
	if ok {
		return id, true, nil
	}

	u, err := is.users.FindByLoginID(ctx, loginID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "find user %q", loginID)
	}
	is.mu.Lock()
	is.userIDs[loginID] = u.ID
	is.mu.Unlock()
	return u.ID, true, nil
}

// issueFiles issues one coupon per distinct grant id across files. Malformed
// lines and unknown users are logged and skipped.
func (is *issuer) issueFiles(ctx context.Context, files []string) (issueStats, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(is.workers)

	for _, path := range files {
		err := streamGrants(ctx, path, func(n int, line string) error {
			gr, err := parseGrant(line)
			if err != nil {
				slog.Warn("skipping invalid grant",
					slog.String("file", path),
					slog.Int("line", n),
					slog.String("error", err.Error()),
				)
				is.count(func(s *issueStats) { s.Invalid++ })
				return nil
			}
			if !is.claim(gr) {
				return nil
			}

			g.Go(func() error {
				userID, ok, err := is.userID(ctx, gr.LoginID)
				if err != nil {
					return err
				}
				if !ok {
					slog.Warn("skipping grant for unknown user",
						slog.String("grant", gr.ID),
						slog.String("login_id", gr.LoginID),
					)
					is.count(func(s *issueStats) { s.NoUser++ })
					return nil
				}
				if _, err := is.coupons.Issue(ctx, userID, gr.Type, gr.Value); err != nil {
					return errors.Wrapf(err, "issue grant %s", gr.ID)
				}
				is.count(func(s *issueStats) { s.Issued++ })
				return nil
			})
			return nil
		})
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return is.stats, werr
			}
			return is.stats, errors.Wrapf(err, "issue %s", path)
		}
	}
	if err := g.Wait(); err != nil {
		return is.stats, err
	}
	return is.stats, nil
}
