package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"subtitle-flow/app/config"
	"subtitle-flow/app/logger"

	"github.com/patrickmn/go-cache"
	"resty.dev/v3"
)

const commentsAPIBaseURL = "https://www.googleapis.com/youtube/v3"

// Metadata 视频元数据
type Metadata struct {
	VideoID  string `json:"video_id"`
	Title    string `json:"title"`
	Channel  string `json:"channel"`
	Views    int64  `json:"views"`
	Duration int64  `json:"duration"` // 秒
}

// Comment 单条评论及其点赞数
type Comment struct {
	Text  string `json:"text"`
	Likes int64  `json:"likes"`
}

// Client YouTube 数据客户端。元数据走 yt-dlp（不需要凭据），
// 评论走 Data API v3（需要 API 密钥），响应短期缓存避免重复请求。
type Client struct {
	ytdlp       string
	api         *resty.Client
	cache       *cache.Cache
	maxComments int
	log         *logger.Logger
}

// NewClient 创建 YouTube 数据客户端
func NewClient(cfg config.YouTubeConfig, log *logger.Logger) *Client {
	ytdlp := cfg.YtdlpBinary
	if ytdlp == "" {
		ytdlp = "yt-dlp"
	}
	ttl := time.Duration(cfg.CacheTTL) * time.Minute
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	maxComments := cfg.MaxComments
	if maxComments <= 0 {
		maxComments = 50
	}

	api := resty.New()
	api.SetBaseURL(commentsAPIBaseURL)

	return &Client{
		ytdlp:       ytdlp,
		api:         api,
		cache:       cache.New(ttl, 2*ttl),
		maxComments: maxComments,
		log:         log,
	}
}

// yt-dlp --dump-json 输出中用到的字段
type ytdlpInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Channel   string  `json:"channel"`
	Uploader  string  `json:"uploader"`
	ViewCount int64   `json:"view_count"`
	Duration  float64 `json:"duration"`
}

// FetchMetadata 通过 yt-dlp 获取视频元数据，不触发下载
func (c *Client) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	if cached, ok := c.cache.Get("meta:" + url); ok {
		meta := cached.(Metadata)
		return &meta, nil
	}

	cmd := exec.CommandContext(ctx, c.ytdlp,
		"--dump-json",
		"--no-playlist",
		"--skip-download",
		url,
	)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("获取视频元数据失败: %w", err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("解析视频元数据失败: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("视频元数据缺少 ID")
	}

	channel := info.Channel
	if channel == "" {
		channel = info.Uploader
	}
	meta := Metadata{
		VideoID:  info.ID,
		Title:    info.Title,
		Channel:  channel,
		Views:    info.ViewCount,
		Duration: int64(info.Duration),
	}
	c.cache.Set("meta:"+url, meta, cache.DefaultExpiration)
	return &meta, nil
}

// Data API commentThreads 响应中用到的字段
type commentThreadsResponse struct {
	Items []struct {
		Snippet struct {
			TopLevelComment struct {
				Snippet struct {
					TextDisplay string `json:"textDisplay"`
					LikeCount   int64  `json:"likeCount"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
}

// TopComments 拉取视频的热门评论，按点赞数降序返回。
// 未提供 API 密钥时返回空列表而不是错误，评论收集是尽力而为的。
func (c *Client) TopComments(ctx context.Context, videoID, apiKey string) ([]Comment, error) {
	if apiKey == "" || videoID == "" {
		return nil, nil
	}

	cacheKey := "comments:" + videoID
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]Comment), nil
	}

	var response commentThreadsResponse
	resp, err := c.api.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":       "snippet",
			"videoId":    videoID,
			"maxResults": strconv.Itoa(c.maxComments),
			"order":      "relevance",
			"textFormat": "plainText",
			"key":        apiKey,
		}).
		SetResult(&response).
		Get("/commentThreads")
	if err != nil {
		return nil, fmt.Errorf("请求评论失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("请求评论失败，状态码: %d, 响应: %s", resp.StatusCode(), resp.String())
	}

	comments := make([]Comment, 0, len(response.Items))
	for _, item := range response.Items {
		snippet := item.Snippet.TopLevelComment.Snippet
		text := strings.TrimSpace(snippet.TextDisplay)
		if text == "" {
			continue
		}
		comments = append(comments, Comment{
			Text:  text,
			Likes: snippet.LikeCount,
		})
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Likes > comments[j].Likes
	})

	c.cache.Set(cacheKey, comments, cache.DefaultExpiration)
	c.log.Infof("已获取 %d 条评论: %s", len(comments), videoID)
	return comments, nil
}
