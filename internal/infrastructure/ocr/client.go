package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/scanread/internal/config"
	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/infrastructure/resilience"
)

// Client talks to a PaddleOCR-style recognition service over HTTP. The
// engine itself is opaque; the client ships a rendered page image plus the
// recognition parameters and normalizes the returned line geometry into
// page space.
type Client struct {
	endpoint   string
	params     Params
	httpClient *http.Client
}

// Params mirrors the OCR-affecting configuration fields; they are also the
// inputs of the cache fingerprint signature.
type Params struct {
	DetectionModelName     string  `json:"detection_model_name"`
	RecognitionModelName   string  `json:"recognition_model_name"`
	UseDocUnwarping        bool    `json:"use_doc_unwarping"`
	UseTextlineOrientation bool    `json:"use_textline_orientation"`
	DetLimitType           string  `json:"det_limit_type"`
	DetLimitSideLen        int     `json:"det_limit_side_len"`
	DetThresh              float64 `json:"det_thresh"`
	DetBoxThresh           float64 `json:"det_box_thresh"`
	DetUnclipRatio         float64 `json:"det_unclip_ratio"`
	RecScoreThresh         float64 `json:"rec_score_thresh"`
}

func ParamsFromConfig(cfg config.Config) Params {
	return Params{
		DetectionModelName:     cfg.DetectionModelName,
		RecognitionModelName:   cfg.RecognitionModelName,
		UseDocUnwarping:        cfg.UseDocUnwarping,
		UseTextlineOrientation: cfg.UseTextlineOrientation,
		DetLimitType:           cfg.DetLimitType,
		DetLimitSideLen:        cfg.DetLimitSideLen,
		DetThresh:              cfg.DetThresh,
		DetBoxThresh:           cfg.DetBoxThresh,
		DetUnclipRatio:         cfg.DetUnclipRatio,
		RecScoreThresh:         cfg.RecScoreThresh,
	}
}

func New(endpoint string, params Params) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		params:     params,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type recognizeRequest struct {
	Image      string `json:"image"`
	Parameters Params `json:"parameters"`
}

type recognizeResponse struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Lines  []struct {
		Polygon [][2]float64 `json:"polygon"`
		Text    string       `json:"text"`
		Score   float64      `json:"score"`
	} `json:"lines"`
}

// Recognize submits one page image and returns recognized lines with
// polygon coordinates normalized to 0..1 page space.
func (c *Client) Recognize(ctx context.Context, image []byte) ([]domain.OcrLine, error) {
	payload := recognizeRequest{
		Image:      base64.StdEncoding.EncodeToString(image),
		Parameters: c.params,
	}

	var response recognizeResponse
	if err := c.postJSON(ctx, "/ocr", payload, &response); err != nil {
		return nil, err
	}
	if response.Width <= 0 || response.Height <= 0 {
		return nil, fmt.Errorf("ocr response missing page dimensions")
	}

	lines := make([]domain.OcrLine, 0, len(response.Lines))
	for _, raw := range response.Lines {
		polygon := make(domain.Polygon, 0, len(raw.Polygon))
		for _, pt := range raw.Polygon {
			polygon = append(polygon, domain.Point{
				X: pt[0] / response.Width,
				Y: pt[1] / response.Height,
			})
		}
		lines = append(lines, domain.OcrLine{
			Polygon:    polygon,
			Text:       raw.Text,
			Confidence: raw.Score,
		})
	}
	return lines, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &resilience.HTTPStatusError{
			Operation:  "ocr recognize",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ocr response: %w", err)
	}
	return nil
}
