package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"frostbase-alarm/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Options 遥测 API 客户端配置
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int  // 默认 0：单次轮询不应超过轮询间隔
	LegacyList bool // 使用 GET /Reading 全量列表再按 idTruck 过滤
}

// TelemetryClient Frostbase 遥测/参数 API 客户端
type TelemetryClient struct {
	httpClient *resty.Client
	opts       Options
	logger     *zap.Logger
}

// NewTelemetryClient 创建客户端
func NewTelemetryClient(opts Options, logger *zap.Logger) *TelemetryClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 4 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(1 * time.Second).
		SetHeader("Accept", "application/json")

	return &TelemetryClient{
		httpClient: client,
		opts:       opts,
		logger:     logger,
	}
}

// readingDTO 读数 JSON（兼容 temp/temperature 两种字段名）
type readingDTO struct {
	IDTruck      string   `json:"idTruck"`
	Temp         *float64 `json:"temp"`
	Temperature  *float64 `json:"temperature"`
	PercHumidity *float64 `json:"percHumidity"`
	Date         string   `json:"date"`
}

// envelope 后端统一响应格式 {status, msg, data}
type envelope struct {
	Status *int            `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

type thresholdsDTO struct {
	MinTemperature *float64 `json:"minTemperature"`
	MaxTemperature *float64 `json:"maxTemperature"`
	MinHumidity    *float64 `json:"minHumidity"`
	MaxHumidity    *float64 `json:"maxHumidity"`
}

// FetchLatestReading 获取卡车最新读数
func (c *TelemetryClient) FetchLatestReading(ctx context.Context, truckID string) (*models.Reading, error) {
	if c.opts.LegacyList {
		return c.fetchLatestFromList(ctx, truckID)
	}

	body, err := c.get(ctx, "/Reading/Latest/Truck/{truckId}", map[string]string{"truckId": truckID})
	if err != nil {
		return nil, err
	}

	raw, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	if isEmptyArray(raw) {
		return nil, fmt.Errorf("%w: %s", ErrNoData, truckID)
	}

	var dto readingDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, fmt.Errorf("%w: reading: %v", ErrParse, err)
	}

	return dto.toReading(truckID, time.Now())
}

// fetchLatestFromList GET /Reading，按 idTruck 过滤并取 date 最新的一条
func (c *TelemetryClient) fetchLatestFromList(ctx context.Context, truckID string) (*models.Reading, error) {
	body, err := c.get(ctx, "/Reading", nil)
	if err != nil {
		return nil, err
	}

	raw, err := unwrap(body)
	if err != nil {
		return nil, err
	}

	var list []readingDTO
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: reading list: %v", ErrParse, err)
	}

	type dated struct {
		dto readingDTO
		at  time.Time
	}
	var matches []dated
	for _, dto := range list {
		if dto.IDTruck != truckID {
			continue
		}
		at, err := parseDate(dto.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: reading date %q: %v", ErrParse, dto.Date, err)
		}
		matches = append(matches, dated{dto: dto, at: at})
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, truckID)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].at.After(matches[j].at) })

	return matches[0].dto.toReading(truckID, time.Now())
}

// FetchThresholds 获取阈值参数
func (c *TelemetryClient) FetchThresholds(ctx context.Context) (*models.Thresholds, error) {
	body, err := c.get(ctx, "/Parameter", nil)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: parameter: %v", ErrParse, err)
	}
	if env.Status == nil {
		return nil, fmt.Errorf("%w: parameter: missing status", ErrParse)
	}
	if *env.Status != 0 {
		c.logger.Warn("Parameter API returned error status",
			zap.Int("status", *env.Status),
			zap.String("msg", env.Msg),
		)
		return nil, fmt.Errorf("%w: status %d", ErrThresholdsUnavailable, *env.Status)
	}

	var dto thresholdsDTO
	if err := json.Unmarshal(env.Data, &dto); err != nil {
		return nil, fmt.Errorf("%w: parameter data: %v", ErrParse, err)
	}
	if dto.MinTemperature == nil || dto.MaxTemperature == nil || dto.MinHumidity == nil || dto.MaxHumidity == nil {
		return nil, fmt.Errorf("%w: parameter data: missing bounds", ErrParse)
	}

	return &models.Thresholds{
		MinTemperature: *dto.MinTemperature,
		MaxTemperature: *dto.MaxTemperature,
		MinHumidity:    *dto.MinHumidity,
		MaxHumidity:    *dto.MaxHumidity,
	}, nil
}

// get 执行 GET 请求；传输失败和非 2xx 都归为 ErrNetwork
func (c *TelemetryClient) get(ctx context.Context, path string, pathParams map[string]string) ([]byte, error) {
	req := c.httpClient.R().SetContext(ctx)
	if len(pathParams) > 0 {
		req.SetPathParams(pathParams)
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrNetwork, path, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("%w: GET %s: HTTP status %d", ErrNetwork, path, resp.StatusCode())
	}

	return resp.Body(), nil
}

// unwrap 兼容裸对象和 {status, data} 包装两种响应
// isEmptyArray 空结果集 []
func isEmptyArray(raw json.RawMessage) bool {
	var items []json.RawMessage
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return false
	}
	return json.Unmarshal(raw, &items) == nil && len(items) == 0
}

func unwrap(body []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty body", ErrParse)
	}
	if !strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed), nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if env.Status != nil && *env.Status != 0 {
		return nil, fmt.Errorf("%w: status %d %s", ErrNoData, *env.Status, env.Msg)
	}
	if len(env.Data) == 0 {
		// 非包装格式
		return json.RawMessage(body), nil
	}
	if string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: empty result", ErrNoData)
	}
	return env.Data, nil
}

func (d readingDTO) toReading(truckID string, fetchedAt time.Time) (*models.Reading, error) {
	temp := d.Temp
	if temp == nil {
		temp = d.Temperature
	}
	if temp == nil || d.PercHumidity == nil {
		return nil, fmt.Errorf("%w: reading: missing temperature or humidity", ErrParse)
	}

	ts := fetchedAt
	if d.Date != "" {
		at, err := parseDate(d.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: reading date %q: %v", ErrParse, d.Date, err)
		}
		ts = at
	}

	id := d.IDTruck
	if id == "" {
		id = truckID
	}

	return &models.Reading{
		TruckID:     id,
		Temperature: *temp,
		Humidity:    *d.PercHumidity,
		Timestamp:   ts,
	}, nil
}

// ISO8601 变体（后端可能不带时区）
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
