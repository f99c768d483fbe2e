package engine_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.stablemem/internal/config"
	"go.stablemem/internal/engine"
	"go.stablemem/internal/logger"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default(&config.Paths{Home: dir, DataDir: dir, LogDir: dir})
	cfg.Backend = backend
	cfg.Regions = map[string]uint8{"default": 0, "users": 1, "orders": 2}
	return cfg
}

func openDB(t *testing.T, cfg *config.Config) *engine.Database {
	t.Helper()

	db, err := engine.Open(cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSetGetDelete(t *testing.T) {
	db := openDB(t, testConfig(t, config.BackendMemory))

	require.NoError(t, db.Set("default", "a", []byte("1")))
	require.NoError(t, db.Set("default", "a", []byte("2")))

	v, err := db.Get("default", "a")
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	require.NoError(t, db.Delete("default", "a"))
	_, err = db.Get("default", "a")
	require.ErrorIs(t, err, engine.ErrKeyNotFound)
	require.ErrorIs(t, db.Delete("default", "a"), engine.ErrKeyNotFound)
}

func TestUnknownRegion(t *testing.T) {
	db := openDB(t, testConfig(t, config.BackendMemory))

	require.ErrorIs(t, db.Set("nope", "a", nil), engine.ErrUnknownRegion)
	_, err := db.Get("nope", "a")
	require.ErrorIs(t, err, engine.ErrUnknownRegion)
	require.ErrorIs(t, db.Forget("nope"), engine.ErrUnknownRegion)
}

func TestRegionIsolation(t *testing.T) {
	db := openDB(t, testConfig(t, config.BackendMemory))

	for i := 0; i < 500; i++ {
		k := fmt.Sprintf("k%04d", i)
		require.NoError(t, db.Set("users", k, []byte("u"+k)))
		require.NoError(t, db.Set("orders", k, []byte("o"+k)))
	}

	for i := 0; i < 500; i++ {
		k := fmt.Sprintf("k%04d", i)
		u, err := db.Get("users", k)
		require.NoError(t, err)
		require.Equal(t, "u"+k, string(u))
		o, err := db.Get("orders", k)
		require.NoError(t, err)
		require.Equal(t, "o"+k, string(o))
	}

	_, err := db.Get("default", "k0000")
	require.ErrorIs(t, err, engine.ErrKeyNotFound)
	require.NoError(t, db.Verify())
}

func TestScan(t *testing.T) {
	db := openDB(t, testConfig(t, config.BackendMemory))

	for _, k := range []string{"e", "b", "d", "a", "c"} {
		require.NoError(t, db.Set("default", k, []byte(k)))
	}

	keys := func(entries []engine.Entry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.Key)
		}
		return out
	}

	all, err := db.Scan("default", "", "", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, keys(all))

	mid, err := db.Scan("default", "b", "d", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, keys(mid))

	limited, err := db.Scan("default", "b", "", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, keys(limited))
}

func TestForgetReleasesPages(t *testing.T) {
	db := openDB(t, testConfig(t, config.BackendMemory))

	require.NoError(t, db.Set("users", "a", []byte("1")))
	require.NoError(t, db.Set("orders", "a", []byte("1")))

	st, err := db.Stat()
	require.NoError(t, err)
	before := st.PhysicalPages

	require.NoError(t, db.Forget("users"))
	_, err = db.Get("users", "a")
	require.ErrorIs(t, err, engine.ErrKeyNotFound)

	// The forgotten page serves the next region that grows.
	require.NoError(t, db.Set("default", "a", []byte("1")))
	st, err = db.Stat()
	require.NoError(t, err)
	require.Equal(t, before, st.PhysicalPages)

	v, err := db.Get("orders", "a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestReadsDoNotAllocate(t *testing.T) {
	db := openDB(t, testConfig(t, config.BackendMemory))

	st, err := db.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 2, st.PhysicalPages)

	_, err = db.Get("users", "missing")
	require.ErrorIs(t, err, engine.ErrKeyNotFound)
	require.ErrorIs(t, db.Delete("users", "missing"), engine.ErrKeyNotFound)
	entries, err := db.Scan("orders", "", "", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NoError(t, db.Verify())

	st, err = db.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 2, st.PhysicalPages)
	for _, r := range st.Regions {
		require.Zero(t, r.Pages, r.Name)
	}
}

func TestGrowReservesPages(t *testing.T) {
	db := openDB(t, testConfig(t, config.BackendMemory))

	// The region's first page holds the map header.
	prev, err := db.Grow("users", 3)
	require.NoError(t, err)
	require.EqualValues(t, 1, prev)

	st, err := db.Stat()
	require.NoError(t, err)
	for _, r := range st.Regions {
		if r.Name == "users" {
			require.EqualValues(t, 4, r.Pages)
		}
	}
}

func TestStat(t *testing.T) {
	db := openDB(t, testConfig(t, config.BackendMemory))

	for i := 0; i < 100; i++ {
		require.NoError(t, db.Set("orders", fmt.Sprint(i), []byte("v")))
	}
	for i := 0; i < 100; i++ {
		_, err := db.Get("orders", fmt.Sprint(i))
		require.NoError(t, err)
	}

	st, err := db.Stat()
	require.NoError(t, err)
	require.Equal(t, config.BackendMemory, st.Backend)
	require.NotEmpty(t, st.ImageID)
	require.Len(t, st.Regions, 3)

	byName := make(map[string]engine.RegionStats)
	for _, r := range st.Regions {
		byName[r.Name] = r
	}
	require.EqualValues(t, 100, byName["orders"].Entries)
	require.NotZero(t, byName["orders"].Pages)
	require.Zero(t, byName["users"].Pages)
	require.NotZero(t, st.Cache.Hits)
}

func TestClosed(t *testing.T) {
	db, err := engine.Open(testConfig(t, config.BackendMemory), logger.Discard())
	require.NoError(t, err)

	require.NoError(t, db.Set("default", "a", []byte("1")))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	require.ErrorIs(t, db.Set("default", "a", nil), engine.ErrClosed)
	_, err = db.Get("default", "a")
	require.ErrorIs(t, err, engine.ErrClosed)
	_, err = db.Stat()
	require.ErrorIs(t, err, engine.ErrClosed)
}

func TestInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "tape")
	_, err := engine.Open(cfg, logger.Discard())
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestPageLimit(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.MaxPages = 3

	db := openDB(t, cfg)
	require.NoError(t, db.Set("default", "a", []byte("1")))

	err := db.Set("users", "a", []byte("1"))
	require.Error(t, err)

	v, err := db.Get("default", "a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestReopenPersists(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)

			db, err := engine.Open(cfg, logger.Discard())
			require.NoError(t, err)
			for i := 0; i < 300; i++ {
				k := fmt.Sprintf("%04d", i)
				require.NoError(t, db.Set("users", k, []byte("v"+k)))
			}
			require.NoError(t, db.Set("orders", "x", []byte("y")))
			require.NoError(t, db.Delete("users", "0000"))
			st, err := db.Stat()
			require.NoError(t, err)
			require.NoError(t, db.Close())

			db = openDB(t, cfg)
			st2, err := db.Stat()
			require.NoError(t, err)
			require.Equal(t, st.ImageID, st2.ImageID)

			_, err = db.Get("users", "0000")
			require.ErrorIs(t, err, engine.ErrKeyNotFound)
			for i := 1; i < 300; i++ {
				k := fmt.Sprintf("%04d", i)
				v, err := db.Get("users", k)
				require.NoError(t, err)
				require.Equal(t, "v"+k, string(v))
			}
			v, err := db.Get("orders", "x")
			require.NoError(t, err)
			require.Equal(t, []byte("y"), v)
			require.NoError(t, db.Verify())
		})
	}
}

func TestOpenWritesLogFile(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)

	db, err := engine.Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Set("default", "a", nil))
	require.NoError(t, db.Close())

	require.FileExists(t, filepath.Join(cfg.LogDir, "stablemem.log"))
}

func TestRegistry(t *testing.T) {
	r := engine.NewRegistry()

	a, err := r.Open("a", testConfig(t, config.BackendMemory), logger.Discard())
	require.NoError(t, err)
	_, err = r.Open("b", testConfig(t, config.BackendMemory), logger.Discard())
	require.NoError(t, err)

	_, err = r.Open("a", testConfig(t, config.BackendMemory), logger.Discard())
	require.ErrorIs(t, err, engine.ErrAlreadyOpen)

	got, ok := r.Get("a")
	require.True(t, ok)
	require.Same(t, a, got)
	require.Equal(t, []string{"a", "b"}, r.Names())

	require.NoError(t, a.Set("default", "k", []byte("v")))
	require.NoError(t, r.Close("a"))
	require.ErrorIs(t, a.Set("default", "k", nil), engine.ErrClosed)
	_, ok = r.Get("a")
	require.False(t, ok)

	require.NoError(t, r.CloseAll())
	require.Empty(t, r.Names())
}
