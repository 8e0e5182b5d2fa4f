package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tradecouncil/internal/logger"
)

const (
	moodEndpoint       = "https://api.alternative.me/fng/?limit=5"
	moodErrorBackoff   = 2 * time.Minute
	moodFallbackUpdate = 12 * time.Hour
)

type MoodPoint struct {
	Value          int
	Classification string
	Timestamp      time.Time
}

// MoodData 市场情绪指数（恐惧贪婪），供 market-mood 信号使用。
type MoodData struct {
	Value          int
	Classification string
	Timestamp      time.Time
	History        []MoodPoint
	LastUpdate     time.Time
	Error          string
}

type MoodService struct {
	endpoint string
	client   *http.Client

	mu         sync.RWMutex
	data       MoodData
	nextUpdate time.Time
	refreshMu  sync.Mutex
}

func NewMoodService() *MoodService {
	return &MoodService{
		endpoint: moodEndpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *MoodService) Get() (MoodData, bool) {
	if s == nil {
		return MoodData{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok := !s.data.LastUpdate.IsZero()
	return s.data, ok
}

// RefreshIfStale 在缓存过期时拉取一次；并发调用只触发一次请求。
func (s *MoodService) RefreshIfStale(ctx context.Context) {
	if s == nil {
		return
	}
	now := time.Now()
	s.mu.RLock()
	next := s.nextUpdate
	last := s.data.LastUpdate
	s.mu.RUnlock()
	if !last.IsZero() && !next.IsZero() && now.Before(next) {
		return
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.RLock()
	next = s.nextUpdate
	last = s.data.LastUpdate
	s.mu.RUnlock()
	if !last.IsZero() && !next.IsZero() && now.Before(next) {
		return
	}
	if err := s.refresh(ctx); err != nil {
		logger.Warnf("mood index refresh failed: %v", err)
		s.mu.Lock()
		s.data.Error = err.Error()
		s.nextUpdate = time.Now().Add(moodErrorBackoff)
		s.mu.Unlock()
	}
}

type moodAPIResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
		TimeUntil      string `json:"time_until_update"`
	} `json:"data"`
}

func (s *MoodService) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mood index status=%d", resp.StatusCode)
	}
	var payload moodAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}
	if len(payload.Data) == 0 {
		return fmt.Errorf("mood index returned no data")
	}
	points := make([]MoodPoint, 0, len(payload.Data))
	for _, item := range payload.Data {
		value, err := strconv.Atoi(item.Value)
		if err != nil {
			continue
		}
		ts, _ := strconv.ParseInt(item.Timestamp, 10, 64)
		points = append(points, MoodPoint{
			Value:          value,
			Classification: item.Classification,
			Timestamp:      time.Unix(ts, 0).UTC(),
		})
	}
	if len(points) == 0 {
		return fmt.Errorf("mood index response unparseable")
	}
	nextIn := moodFallbackUpdate
	if secs, err := strconv.Atoi(payload.Data[0].TimeUntil); err == nil && secs > 0 {
		nextIn = time.Duration(secs) * time.Second
	}
	s.mu.Lock()
	s.data = MoodData{
		Value:          points[0].Value,
		Classification: points[0].Classification,
		Timestamp:      points[0].Timestamp,
		History:        points,
		LastUpdate:     time.Now(),
	}
	s.nextUpdate = time.Now().Add(nextIn)
	s.mu.Unlock()
	return nil
}
