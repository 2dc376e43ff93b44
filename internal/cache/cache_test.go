package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/hazard-risk-service/internal/models"
)

func sampleAssessment(c models.Coordinate) models.Assessment {
	return models.Assessment{
		Coordinate: c,
		PlaceName:  "Shinjuku, Tokyo, Japan",
		Forecast: []models.DailyForecast{
			{Date: "2024-06-01", AvgTempC: 18.4, Condition: "Moderate rain", TotalPrecipMM: 64.2},
		},
		Elevation: models.KnownElevation(40),
		Days: []models.HazardAssessment{
			{Date: "2024-06-01", RainAmountMM: 64.2, Flood: models.RiskHigh, HeavyRain: models.RiskHigh, Tsunami: models.RiskModerate, Landslide: models.RiskLow},
		},
		Seismic:     []models.SeismicEvent{},
		Errors:      []models.SourceError{},
		Status:      models.StatusOK,
		GeneratedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get returns them.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()
	coord := models.Coordinate{Lat: 35.6762, Lng: 139.6503}

	val := sampleAssessment(coord)
	if err := c.Set(ctx, coord.Key(), val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, coord.Key())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.PlaceName != val.PlaceName || got.Coordinate != val.Coordinate || len(got.Days) != 1 {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false for unknown keys.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that expired entries miss and are removed.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewInMemoryCacheWithClock(clock)

	if err := c.Set(ctx, "k", sampleAssessment(models.Coordinate{}), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("Get() before TTL ok = false, want true")
	}

	clock.Advance(2 * time.Second)
	_, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expired access", c.Len())
	}
}

// TestInMemoryCache_Set_Overwrites verifies that Set replaces value and TTL.
func TestInMemoryCache_Set_Overwrites(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewInMemoryCacheWithClock(clock)

	first := sampleAssessment(models.Coordinate{})
	second := first
	second.PlaceName = "Unknown"

	_ = c.Set(ctx, "k", first, time.Second)
	_ = c.Set(ctx, "k", second, time.Hour)
	clock.Advance(time.Minute)

	got, ok, _ := c.Get(ctx, "k")
	if !ok {
		t.Fatal("Get() ok = false, want true after overwrite with longer TTL")
	}
	if got.PlaceName != "Unknown" {
		t.Errorf("Get().PlaceName = %q, want %q", got.PlaceName, "Unknown")
	}
}

// TestInMemoryCache_Concurrent exercises Get and Set from many goroutines.
func TestInMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			_ = c.Set(ctx, key, sampleAssessment(models.Coordinate{Lat: float64(i)}), time.Minute)
			_, _, _ = c.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}
}

func TestExpirationSeconds(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ttl  time.Duration
		want int32
	}{
		{"whole seconds", 10 * time.Minute, 600},
		{"sub-second rounds up", 500 * time.Millisecond, 1},
		{"partial second rounds up", 1500 * time.Millisecond, 2},
		{"exactly 30 days stays relative", 30 * 24 * time.Hour, maxRelativeExp},
		{"over 30 days is absolute", 31 * 24 * time.Hour, int32(now.Add(31 * 24 * time.Hour).Unix())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expirationSeconds(tt.ttl, now); got != tt.want {
				t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
			}
		})
	}
}

func TestMemcachedCache_SetNonPositiveTTLSkipsStore(t *testing.T) {
	// No server listens here; a store attempt would fail to connect.
	c, err := NewMemcachedCache("127.0.0.1:1", 50*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()
	if err := c.Set(context.Background(), "k", sampleAssessment(models.Coordinate{}), 0); err != nil {
		t.Errorf("Set(ttl=0) error = %v, want nil", err)
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
	if got := parseAddrs(""); len(got) != 0 {
		t.Errorf("parseAddrs(\"\") = %v, want empty", got)
	}
}

// TestMemcachedValueCodec verifies values are stored compressed and that
// plain JSON items written without the flag still decode.
func TestMemcachedValueCodec(t *testing.T) {
	want := sampleAssessment(models.Coordinate{Lat: 35.6895, Lng: 139.6917})

	raw, flags, err := encodeValue(want)
	if err != nil {
		t.Fatalf("encodeValue() error = %v", err)
	}
	if flags != flagZstd {
		t.Fatalf("flags = %d, want %d", flags, flagZstd)
	}
	got, err := decodeValue(raw, flags)
	if err != nil {
		t.Fatalf("decodeValue() error = %v", err)
	}
	if got.PlaceName != want.PlaceName || got.Status != want.Status || got.Elevation != want.Elevation {
		t.Errorf("decodeValue() = %+v, want %+v", got, want)
	}
	if len(got.Days) != 1 || got.Days[0] != want.Days[0] {
		t.Errorf("Days = %+v, want %+v", got.Days, want.Days)
	}

	plain, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := decodeValue(plain, 0); err != nil || got.PlaceName != want.PlaceName {
		t.Errorf("decodeValue(plain) = %q, %v", got.PlaceName, err)
	}
}

func TestMemcachedValueCodec_Corrupt(t *testing.T) {
	if _, err := decodeValue([]byte("not zstd"), flagZstd); err == nil {
		t.Error("decodeValue(corrupt) error = nil, want error")
	}
}
