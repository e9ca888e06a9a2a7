package cache

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"trendai/internal/core"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute)
	c.now = clock.now

	c.Set("a", "x")
	c.Set("b", "y")
	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", "z")
	clock.t = clock.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatal("a should be expired")
	}
	if v, ok := c.Get("b"); !ok || v != "z" {
		t.Fatalf("b = %q %v", v, ok)
	}
	clock.t = clock.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}
	st := c.Stats()
	if st.Size != 0 || st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestLRUCacheClearAndDelete(t *testing.T) {
	c := NewLRUCache[int](5, time.Minute)
	for i := 0; i < 5; i++ {
		c.Set(strconv.Itoa(i), i)
	}
	c.Delete("0")
	if _, ok := c.Get("0"); ok {
		t.Fatal("0 should be deleted")
	}
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
	c.Set("again", 1)
	if _, ok := c.Get("again"); !ok {
		t.Fatal("cache unusable after Clear")
	}
}

func TestManagerCleanOnce(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewLRUCache[int](5, time.Second)
	c.now = clock.now
	c.Set("a", 1)
	clock.t = clock.t.Add(2 * time.Second)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanOnce(); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestKeyDistinguishesCriteria(t *testing.T) {
	maxFollowers := int64(100)
	a := Key("trend", core.DimColor, core.Criteria{Year: 2024, Month: 3})
	b := Key("trend", core.DimColor, core.Criteria{Year: 2024, Month: 3, FollowerMax: &maxFollowers})
	c := Key("trend", core.DimPattern, core.Criteria{Year: 2024, Month: 3})
	if a == b || a == c {
		t.Fatalf("keys collide: %q %q %q", a, b, c)
	}
	q1 := QueryKey(core.Criteria{Year: 2024, Month: 1}.Query())
	q2 := QueryKey(core.Criteria{Year: 2024, Month: 2}.Query())
	if q1 == q2 {
		t.Fatal("query keys collide")
	}
}

type mockCmdable struct {
	data map[string]string
	incr map[string]int64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: map[string]string{}, incr: map[string]int64{}}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	if n, ok := m.incr[key]; ok {
		return redis.NewStringResult(strconv.FormatInt(n, 10), nil)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func TestReportCacheRoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	rc := &ReportCache{store: mock, ttl: time.Minute}

	if _, ok, err := rc.GetReport(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	report := core.TrendReport{
		Rising:             []core.CategoryStat{{Name: "red", CurrentCount: 3, CurrentSharePercent: 100, ChangePercent: 100}},
		TotalFilteredCount: 3,
	}
	if err := rc.SetReport(ctx, "k", report); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := mock.data["trendai:report:0:k"]; !ok {
		t.Fatalf("unexpected keys %v", mock.data)
	}
	got, ok, err := rc.GetReport(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.TotalFilteredCount != 3 || got.Rising[0].Name != "red" {
		t.Fatalf("unexpected report %+v", got)
	}

	if gen, err := rc.Generation(ctx); err != nil || gen != "0" {
		t.Fatalf("generation before invalidate = %q, %v", gen, err)
	}
	if err := rc.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := rc.GetReport(ctx, "k"); ok {
		t.Fatal("expected miss after invalidate")
	}
	if gen, err := rc.Generation(ctx); err != nil || gen != "1" {
		t.Fatalf("generation after invalidate = %q, %v", gen, err)
	}
}

func TestReportCacheNilIsNoop(t *testing.T) {
	var rc *ReportCache
	ctx := context.Background()
	if _, ok, err := rc.GetReport(ctx, "k"); ok || err != nil {
		t.Fatal("nil cache should miss")
	}
	if err := rc.SetReport(ctx, "k", core.TrendReport{}); err != nil {
		t.Fatal(err)
	}
	if gen, err := rc.Generation(ctx); gen != "" || err != nil {
		t.Fatalf("nil cache generation = %q, %v", gen, err)
	}
	if err := rc.Close(); err != nil {
		t.Fatal(err)
	}
}
