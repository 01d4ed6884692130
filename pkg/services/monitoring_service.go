package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"kicks-forecast-api/pkg/logger"
	"kicks-forecast-api/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// 保持するリクエストログの上限（古いものから捨てる）
const maxLogEntries = 10000

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
	ErrorKind    string        `json:"errorKind,omitempty"`
}

// MonitoringService はAPIのモニタリング機能を提供します。
type MonitoringService struct {
	logs     []LogEntry
	mu       sync.RWMutex
	log      *logger.Logger
	recorder *metrics.Recorder
	now      func() time.Time
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
// log と recorder は nil でもよい
func NewMonitoringService(log *logger.Logger, recorder *metrics.Recorder) *MonitoringService {
	if log == nil {
		log = logger.Nop()
	}
	return &MonitoringService{
		logs:     make([]LogEntry, 0),
		log:      log,
		recorder: recorder,
		now:      time.Now,
	}
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) >= maxLogEntries {
		s.logs = append(s.logs[:0], s.logs[len(s.logs)-maxLogEntries+1:]...)
	}
	s.logs = append(s.logs, entry)
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()

		// 次のミドルウェア/ハンドラを実行
		c.Next()

		elapsed := s.now().Sub(start)
		path := c.Request.URL.Path
		status := c.Writer.Status()
		kind := c.Writer.Header().Get(ErrorKindHeader)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if s.recorder != nil {
			s.recorder.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), elapsed.Seconds())
		}

		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		}
		if kind != "" {
			fields = append(fields, "error_kind", kind)
		}
		switch {
		case status >= 500:
			s.log.Error("request failed", fields...)
		case status >= 400:
			s.log.Warn("request rejected", fields...)
		default:
			s.log.Debug("request served", fields...)
		}

		// ダッシュボード自身とスクレイプは集計しない
		if strings.HasPrefix(path, "/api/monitoring") || path == "/metrics" {
			return
		}

		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   status,
			ResponseTime: elapsed,
			ErrorKind:    kind,
		})
	}
}

// DashboardPeriod ダッシュボードの集計期間
type DashboardPeriod string

const (
	PeriodHour DashboardPeriod = "1h"
	PeriodDay  DashboardPeriod = "24h"
	PeriodWeek DashboardPeriod = "7d"
)

// ParseDashboardPeriod は period クエリを解釈する。空は24h
func ParseDashboardPeriod(s string) (DashboardPeriod, error) {
	switch p := DashboardPeriod(strings.TrimSpace(s)); p {
	case "":
		return PeriodDay, nil
	case PeriodHour, PeriodDay, PeriodWeek:
		return p, nil
	default:
		return "", fmt.Errorf("%w: invalid period %q (use 1h, 24h or 7d)", ErrMalformedInput, s)
	}
}

// Hours は集計する時間数（未知の値は24）
func (p DashboardPeriod) Hours() int {
	switch p {
	case PeriodHour:
		return 1
	case PeriodWeek:
		return 24 * 7
	default:
		return 24
	}
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	Period           DashboardPeriod          `json:"period"`
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      []map[string]interface{} `json:"statusCodes"`
	ErrorKinds       map[string]int           `json:"errorKinds"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
// 時刻はすべてUTCで扱う
func (s *MonitoringService) GetDashboardData(period DashboardPeriod) DashboardData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	period, err := ParseDashboardPeriod(string(period))
	if err != nil {
		period = PeriodDay
	}
	periodHours := period.Hours()
	now := s.now().UTC()
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filteredLogs := make([]LogEntry, 0)
	for _, log := range s.logs {
		if log.Timestamp.After(since) {
			filteredLogs = append(filteredLogs, log)
		}
	}

	// requestsOverTime の集計（過去から現在へ1時間刻み）
	requestsOverTimeSlice := make([]map[string]interface{}, periodHours)
	hourlyBuckets := make(map[string]int)
	for _, log := range filteredLogs {
		bucketKey := log.Timestamp.UTC().Truncate(time.Hour).Format(time.RFC3339)
		hourlyBuckets[bucketKey]++
	}
	for i := 0; i < periodHours; i++ {
		targetTime := now.Add(-time.Duration(periodHours-1-i) * time.Hour)
		bucketKey := targetTime.Truncate(time.Hour).Format(time.RFC3339)
		requestsOverTimeSlice[i] = map[string]interface{}{
			"time":     targetTime.Format("15:00"),
			"requests": hourlyBuckets[bucketKey],
		}
	}

	endpoints := make(map[string]int)
	errorKinds := make(map[string]int)
	for _, log := range filteredLogs {
		endpoints[log.Path]++
		if log.ErrorKind != "" {
			errorKinds[log.ErrorKind]++
		}
	}

	// statusCodes の集計
	statusNames := []string{"2xx Success", "4xx Client Error", "5xx Server Error"}
	statusCodes := make(map[string]int, len(statusNames))
	for _, log := range filteredLogs {
		switch {
		case log.StatusCode >= 200 && log.StatusCode < 300:
			statusCodes[statusNames[0]]++
		case log.StatusCode >= 400 && log.StatusCode < 500:
			statusCodes[statusNames[1]]++
		case log.StatusCode >= 500:
			statusCodes[statusNames[2]]++
		}
	}
	statusCodesSlice := make([]map[string]interface{}, 0, len(statusNames))
	for _, name := range statusNames {
		statusCodesSlice = append(statusCodesSlice, map[string]interface{}{"name": name, "value": statusCodes[name]})
	}

	// avgResponseTimes の集計（ミリ秒）
	responseTimeSum := make(map[string]time.Duration)
	responseCount := make(map[string]int)
	for _, log := range filteredLogs {
		responseTimeSum[log.Path] += log.ResponseTime
		responseCount[log.Path]++
	}
	paths := make([]string, 0, len(responseTimeSum))
	for path := range responseTimeSum {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	avgResponseTimesSlice := make([]map[string]interface{}, 0, len(paths))
	for _, path := range paths {
		avg := responseTimeSum[path].Milliseconds() / int64(responseCount[path])
		avgResponseTimesSlice = append(avgResponseTimesSlice, map[string]interface{}{"endpoint": path, "responseTime": avg})
	}

	// recentErrors: 新しい順に最大10件
	recentErrors := make([]LogEntry, 0)
	for i := len(filteredLogs) - 1; i >= 0; i-- {
		if filteredLogs[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filteredLogs[i])
			if len(recentErrors) >= 10 {
				break
			}
		}
	}

	return DashboardData{
		Period:           period,
		RequestsOverTime: requestsOverTimeSlice,
		Endpoints:        endpoints,
		StatusCodes:      statusCodesSlice,
		ErrorKinds:       errorKinds,
		AvgResponseTimes: avgResponseTimesSlice,
		RecentErrors:     recentErrors,
	}
}
