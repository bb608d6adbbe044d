package lesson

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPixverseURL = "https://app-api.pixverse.ai/openapi/v2"
	defaultSpeaker     = "en-US-1"
	basePrompt         = "A friendly character portrait, slight natural breathing animation, neutral expression ready to speak"
	maxImageBytes      = 10 << 20
)

// VideoRequest describes a lip-synced tutor video.
type VideoRequest struct {
	ImageURL  string
	Script    string
	TutorName string
}

// VideoGenerator renders a tutor video and returns its URL.
type VideoGenerator interface {
	Generate(ctx context.Context, req VideoRequest) (string, error)
}

// PixverseClient drives the Pixverse image -> base video -> lip-sync pipeline.
type PixverseClient struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
}

// PixverseOption configures a PixverseClient.
type PixverseOption func(*PixverseClient)

// WithPixverseURL sets the API base URL.
func WithPixverseURL(url string) PixverseOption {
	return func(c *PixverseClient) {
		if url != "" {
			c.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithPixverseHTTPClient sets a custom HTTP client.
func WithPixverseHTTPClient(client *http.Client) PixverseOption {
	return func(c *PixverseClient) {
		c.client = client
	}
}

// WithPolling sets how often and how many times task status is polled.
func WithPolling(interval time.Duration, maxPolls int) PixverseOption {
	return func(c *PixverseClient) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if maxPolls > 0 {
			c.maxPolls = maxPolls
		}
	}
}

// NewPixverseClient creates a client. Defaults poll every 5s up to 60 times.
func NewPixverseClient(apiKey string, opts ...PixverseOption) *PixverseClient {
	c := &PixverseClient{
		apiKey:       apiKey,
		baseURL:      defaultPixverseURL,
		client:       http.DefaultClient,
		pollInterval: 5 * time.Second,
		maxPolls:     60,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pixverseEnvelope is the shape of every Pixverse response.
type pixverseEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type taskStatus struct {
	Status   string `json:"status"`
	VideoID  int64  `json:"video_id"`
	VideoURL string `json:"video_url"`
}

type ttsSpeaker struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Generate runs the full pipeline. It blocks until the lip-sync video is
// ready, polling fails, or ctx ends.
func (c *PixverseClient) Generate(ctx context.Context, req VideoRequest) (string, error) {
	script := CleanScript(req.Script)
	if req.ImageURL == "" || script == "" {
		return "", fmt.Errorf("image URL and script are required")
	}

	img, err := c.loadImage(ctx, req.ImageURL)
	if err != nil {
		return "", fmt.Errorf("loading image: %w", err)
	}

	var upload struct {
		ImgID int64 `json:"img_id"`
	}
	if err := c.uploadImage(ctx, img, &upload); err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}
	slog.Debug("pixverse image uploaded", "img_id", upload.ImgID, "tutor", req.TutorName)

	var base struct {
		TaskID int64 `json:"task_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/video/img/generate", map[string]any{
		"img_id":   upload.ImgID,
		"prompt":   basePrompt,
		"duration": 5,
		"model":    "v4.5",
		"quality":  "540p",
	}, &base); err != nil {
		return "", fmt.Errorf("starting base video: %w", err)
	}

	baseStatus, err := c.poll(ctx, base.TaskID)
	if err != nil {
		return "", fmt.Errorf("base video: %w", err)
	}

	speaker := c.pickSpeaker(ctx)

	var lipsync struct {
		TaskID int64 `json:"task_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/video/lip_sync/generate", map[string]any{
		"source_video_id":         baseStatus.VideoID,
		"lip_sync_tts_speaker_id": speaker,
		"lip_sync_tts_content":    script,
	}, &lipsync); err != nil {
		return "", fmt.Errorf("starting lip-sync: %w", err)
	}

	final, err := c.poll(ctx, lipsync.TaskID)
	if err != nil {
		return "", fmt.Errorf("lip-sync video: %w", err)
	}
	if final.VideoURL == "" {
		return "", fmt.Errorf("lip-sync video finished without a URL")
	}
	return final.VideoURL, nil
}

func (c *PixverseClient) loadImage(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "data:image") {
		_, payload, ok := strings.Cut(src, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URL")
		}
		return base64.StdEncoding.DecodeString(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

func (c *PixverseClient) uploadImage(ctx context.Context, img []byte, out any) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "character.png")
	if err != nil {
		return err
	}
	if _, err := part.Write(img); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/image/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *PixverseClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// do sends req with auth and a fresh trace id and decodes the data field into out.
func (c *PixverseClient) do(req *http.Request, out any) error {
	req.Header.Set("API-KEY", c.apiKey)
	req.Header.Set("Ai-trace-id", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pixverse api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var env pixverseEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return nil
}

var errTaskFailed = errors.New("generation failed")

// poll waits for taskID to finish. Transient status errors count as a poll.
func (c *PixverseClient) poll(ctx context.Context, taskID int64) (taskStatus, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for i := 0; i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return taskStatus{}, ctx.Err()
		case <-ticker.C:
		}

		var st taskStatus
		if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/video/status?task_id=%d", taskID), nil, &st); err != nil {
			slog.Debug("pixverse status check failed", "task_id", taskID, "error", err)
			continue
		}
		switch st.Status {
		case "success":
			return st, nil
		case "failed":
			return taskStatus{}, errTaskFailed
		}
	}
	return taskStatus{}, fmt.Errorf("timed out after %d polls", c.maxPolls)
}

// pickSpeaker prefers an Indian English voice, then any English voice, then
// the first listed, then a fixed default.
func (c *PixverseClient) pickSpeaker(ctx context.Context) string {
	var speakers []ttsSpeaker
	if err := c.call(ctx, http.MethodGet, "/video/lip_sync/tts/list", nil, &speakers); err != nil {
		slog.Warn("listing pixverse speakers failed, using default", "error", err)
		return defaultSpeaker
	}
	return chooseSpeaker(speakers)
}

func chooseSpeaker(speakers []ttsSpeaker) string {
	for _, s := range speakers {
		if strings.Contains(strings.ToLower(s.ID), "en-in") || strings.Contains(strings.ToLower(s.Name), "indian") {
			return s.ID
		}
	}
	for _, s := range speakers {
		if strings.Contains(strings.ToLower(s.ID), "en") {
			return s.ID
		}
	}
	if len(speakers) > 0 && speakers[0].ID != "" {
		return speakers[0].ID
	}
	return defaultSpeaker
}
