package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/CreateIntelligens/banana-art/internal/config"
	"github.com/CreateIntelligens/banana-art/internal/utils"
	"github.com/sirupsen/logrus"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiAdapter invokes the Gemini generateContent endpoint. One HTTP call
// per Invoke, no internal retry.
type GeminiAdapter struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

func NewGeminiAdapter(cfg config.Config) (*GeminiAdapter, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, errors.New("gemini api key is not configured")
	}

	model := strings.TrimSpace(cfg.GeminiModelName)
	if model == "" {
		model = "gemini-3-pro-preview"
	}

	return &GeminiAdapter{
		httpClient: &http.Client{},
		apiKey:     cfg.GeminiAPIKey,
		model:      model,
		baseURL:    defaultGeminiBaseURL,
	}, nil
}

// Invoke sends the composed input to Gemini and classifies the outcome.
func (g *GeminiAdapter) Invoke(ctx context.Context, request Request) (*Result, error) {
	logger := adapterLogger(ctx, g.model)
	logger.WithFields(logrus.Fields{
		"prompt_length":       len([]rune(request.Prompt)),
		"prompt_preview":      logSnippet(request.Prompt),
		"reference_image_cnt": len(request.Images),
		"aspect_ratio":        request.AspectRatio,
	}).Info("llm_invoke_start")

	// 画幅比例以提示词后缀形式传递
	prompt := strings.TrimSpace(request.Prompt)
	if ar := strings.TrimSpace(request.AspectRatio); ar != "" {
		prompt = fmt.Sprintf("%s, aspect ratio %s", prompt, ar)
	}

	parts := []geminiContentPart{{Text: prompt}}
	for idx, image := range request.Images {
		if len(image.Data) == 0 {
			logger.WithField("image_index", idx).Warn("llm_invoke_skip_empty_reference")
			continue
		}
		mimeType := strings.TrimSpace(image.MimeType)
		if mimeType == "" {
			mimeType = utils.DetectImageMime(image.Data)
		}
		parts = append(parts, geminiContentPart{
			InlineData: &geminiInlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(image.Data),
			},
		})
	}

	payload := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: parts},
		},
		GenerationConfig: &geminiConfig{
			MaxOutputTokens: 2048,
			Temperature:     0.8,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).Error("llm_invoke_payload_marshal_failed")
		return nil, NewFailure(FailureUnknown, err.Error())
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		logger.WithError(err).Error("llm_invoke_request_build_failed")
		return nil, NewFailure(FailureUnknown, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	logger.WithField("payload_bytes", len(body)).Info("llm_invoke_request_send")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		logger.WithError(err).Error("llm_invoke_request_failed")
		return nil, NewFailure(classifyTransportError(err), err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.WithError(err).Error("llm_invoke_response_read_failed")
		return nil, NewFailure(FailureTransientNetwork, err.Error())
	}

	logger.WithField("status", resp.StatusCode).Info("llm_invoke_response_status")
	if resp.StatusCode >= http.StatusBadRequest {
		message := fmt.Sprintf("gemini request failed with status %d", resp.StatusCode)
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		logger.WithFields(logrus.Fields{
			"status":       resp.StatusCode,
			"body_preview": logSnippet(string(respBody)),
		}).Warn("llm_invoke_response_error")
		return nil, NewFailure(classifyStatus(resp.StatusCode, apiErr.Error.Status), message)
	}

	var apiResponse geminiResponse
	if err := json.Unmarshal(respBody, &apiResponse); err != nil {
		logger.WithError(err).Error("llm_invoke_response_unmarshal_failed")
		return nil, NewFailure(FailureUnknown, err.Error())
	}

	var (
		imageData     []byte
		imageMimeType string
		textBuilder   strings.Builder
	)

	for _, candidate := range apiResponse.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" && imageData == nil {
				decoded, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					logger.WithError(err).Error("llm_invoke_image_decode_failed")
					return nil, NewFailure(FailureUnknown, fmt.Sprintf("decode image payload: %v", err))
				}
				imageData = decoded
				imageMimeType = part.InlineData.MimeType
				if imageMimeType == "" {
					imageMimeType = "image/png"
				}
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				if textBuilder.Len() > 0 {
					textBuilder.WriteString("\n")
				}
				textBuilder.WriteString(text)
			}
		}
	}

	textResult := strings.TrimSpace(textBuilder.String())
	logger.WithFields(logrus.Fields{
		"image_bytes":     len(imageData),
		"image_mime_type": imageMimeType,
		"text_length":     len([]rune(textResult)),
		"text_preview":    logSnippet(textResult),
	}).Info("llm_invoke_response_summary")

	if len(imageData) > 0 {
		logger.WithField("result", "image").Info("llm_invoke_success")
		return &Result{ImageData: imageData, ImageMime: imageMimeType, Text: textResult}, nil
	}
	if textResult != "" {
		logger.WithField("result", "text").Info("llm_invoke_success")
		return &Result{Text: textResult}, nil
	}

	logger.Warn("llm_invoke_no_parseable_content")
	return nil, NewFailure(FailureUnknown, "gemini response did not include image or text content")
}

// classifyStatus maps an HTTP status (and optional Gemini status string) to a
// failure kind.
func classifyStatus(statusCode int, apiStatus string) FailureKind {
	if strings.EqualFold(strings.TrimSpace(apiStatus), "RESOURCE_EXHAUSTED") {
		return FailureQuotaExceeded
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return FailureQuotaExceeded
	case statusCode == http.StatusBadRequest,
		statusCode == http.StatusRequestEntityTooLarge,
		statusCode == http.StatusUnprocessableEntity:
		return FailureInvalidInput
	case statusCode >= http.StatusInternalServerError:
		return FailureTransientNetwork
	default:
		return FailureUnknown
	}
}

// classifyTransportError distinguishes network-level faults from everything
// else so the job record can hint that a retry by the user may help.
func classifyTransportError(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransientNetwork
	}
	return FailureUnknown
}

type geminiContentPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string              `json:"role"`
	Parts []geminiContentPart `json:"parts"`
}

type geminiConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float32 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig *geminiConfig   `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiContentPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var _ Adapter = (*GeminiAdapter)(nil)
