package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type VideoData struct {
	Title        string        `json:"title"`
	AuthorName   string        `json:"author_name"`
	ThumbnailUrl string        `json:"thumbnail_url"`
	Duration     time.Duration `json:"-"`
}

type Client struct {
	http      *http.Client
	oembedUrl string
	pageUrl   string
}

func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		http:      httpClient,
		oembedUrl: "https://www.youtube.com/oembed",
		pageUrl:   "https://www.youtube.com/watch",
	}
}

// WithBaseURL points the client at another host, which must serve /oembed and /watch.
func (c *Client) WithBaseURL(baseUrl string) *Client {
	return &Client{
		http:      c.http,
		oembedUrl: baseUrl + "/oembed",
		pageUrl:   baseUrl + "/watch",
	}
}

// Get returns metadata for videoId. oEmbed is preferred for the title; the watch page
// supplies the duration and the title of videos that cannot be embedded.
func (c *Client) Get(ctx context.Context, videoId string) (*VideoData, error) {
	videoData, err := c.getWithEmbed(ctx, videoId)
	if err != nil && !errors.Is(err, ErrVideoNotEmbeddable) {
		return nil, fmt.Errorf("failed to get video data with embed: %w", err)
	}

	pageData, pageErr := c.getFromPage(ctx, videoId)
	if pageErr != nil {
		return nil, fmt.Errorf("failed to get video data from page: %w", pageErr)
	}

	if videoData == nil {
		return pageData, nil
	}

	videoData.Duration = pageData.Duration
	return videoData, nil
}

// Status reports whether videoId can still be played. A nil error means available,
// ErrVideoNotFound and ErrVideoNotEmbeddable mean it never will be, anything else is transient.
func (c *Client) Status(ctx context.Context, videoId string) error {
	_, err := c.getWithEmbed(ctx, videoId)
	return err
}
