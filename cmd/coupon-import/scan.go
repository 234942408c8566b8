package main

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/tresses/internal/domain/coupon"
)

// scanner finds codes listed in at least quorum of the input files. Pass one
// builds a bloom filter per file; pass two keeps, per file, only codes some
// other filter may contain, then merges exact per-file bitmasks. Bloom false
// positives are removed by the exact merge.
type scanner struct {
	capacity uint
	fpr      float64
	minLen   int
	maxLen   int
	quorum   int
	progress uint64
}

func (s *scanner) accept(code string) bool {
	return len(code) >= s.minLen && len(code) <= s.maxLen
}

func (s *scanner) find(ctx context.Context, files []string) ([]string, error) {
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("at most %d files are supported, got %d", bits.UintSize, len(files))
	}
	if s.quorum < 1 || s.quorum > len(files) {
		return nil, errors.Errorf("quorum %d out of range for %d files", s.quorum, len(files))
	}

	filters, err := s.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}
	masks, err := s.collect(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "collect candidates")
	}

	var out []string
	for code, mask := range masks {
		if bits.OnesCount(mask) >= s.quorum {
			out = append(out, code)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *scanner) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(s.capacity, s.fpr)
			n, err := s.stream(ctx, path, func(code string) { f.AddString(code) })
			if err != nil {
				return err
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("codes", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func (s *scanner) collect(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]uint, error) {
	perFile := make([]map[string]struct{}, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			seen := make(map[string]struct{})
			n, err := s.stream(ctx, path, func(code string) {
				if s.quorum == 1 || s.inOther(filters, i, code) {
					seen[code] = struct{}{}
				}
			})
			if err != nil {
				return err
			}
			slog.Info("pass 2 complete", slog.String("file", path), slog.Uint64("codes", n), slog.Int("candidates", len(seen)))
			perFile[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	masks := make(map[string]uint)
	for i, seen := range perFile {
		bit := uint(1) << uint(i)
		for code := range seen {
			masks[code] |= bit
		}
	}
	return masks, nil
}

func (s *scanner) inOther(filters []*bloom.BloomFilter, self int, code string) bool {
	for j, f := range filters {
		if j != self && f.TestString(code) {
			return true
		}
	}
	return false
}

// stream calls fn with every accepted, normalised code in a gzip file and
// returns how many it passed on.
func (s *scanner) stream(ctx context.Context, path string, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var n uint64
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		code := coupon.NormalizeCode(sc.Text())
		if !s.accept(code) || strings.ContainsAny(code, " \t") {
			continue
		}
		fn(code)
		n++
		if s.progress > 0 && n%s.progress == 0 {
			slog.Info("scan progress", slog.String("file", path), slog.Uint64("codes", n))
		}
	}
	if err := sc.Err(); err != nil {
		return n, errors.Wrapf(err, "scan %s", path)
	}
	return n, nil
}
