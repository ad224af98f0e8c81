package telegrambot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const telegramAPIBaseURL = "https://api.telegram.org/bot"

// WebhookInfo contains information about the current webhook status.
type WebhookInfo struct {
	URL                  string   `json:"url"`
	HasCustomCertificate bool     `json:"has_custom_certificate"`
	PendingUpdateCount   int      `json:"pending_update_count"`
	IPAddress            string   `json:"ip_address,omitempty"`
	LastErrorDate        int64    `json:"last_error_date,omitempty"`
	LastErrorMessage     string   `json:"last_error_message,omitempty"`
	MaxConnections       int      `json:"max_connections,omitempty"`
	AllowedUpdates       []string `json:"allowed_updates,omitempty"`
}

// WebhookParams is the body of a setWebhook call. SecretToken is echoed back
// by Telegram in the secret header of every delivery.
type WebhookParams struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secret_token,omitempty"`
	MaxConnections     int      `json:"max_connections,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
}

// telegramResponse is the generic response structure from Telegram API.
type telegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// defaultHTTPClient returns a configured HTTP client for Telegram API calls.
func defaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// SetWebhook registers url with Telegram. The library client in use predates
// secret_token support, so this call is made directly.
func SetWebhook(ctx context.Context, client HTTPClient, botToken SecretToken, params WebhookParams) error {
	if params.MaxConnections == 0 {
		params.MaxConnections = 40 // Telegram default
	}
	_, err := callAPI(ctx, client, botToken, "setWebhook", params)
	return err
}

// DeleteWebhook removes the current webhook. It must be called before
// long polling, which Telegram refuses while a webhook is set.
func DeleteWebhook(ctx context.Context, client HTTPClient, botToken SecretToken, dropPendingUpdates bool) error {
	_, err := callAPI(ctx, client, botToken, "deleteWebhook", map[string]bool{
		"drop_pending_updates": dropPendingUpdates,
	})
	return err
}

// GetWebhookInfo retrieves the current webhook configuration.
func GetWebhookInfo(ctx context.Context, client HTTPClient, botToken SecretToken) (*WebhookInfo, error) {
	result, err := callAPI(ctx, client, botToken, "getWebhookInfo", nil)
	if err != nil {
		return nil, err
	}

	var info WebhookInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, &TelegramAPIError{Description: "failed to parse webhook info", Err: err}
	}
	return &info, nil
}

// callAPI POSTs payload as JSON to a Bot API method and returns the result
// field of a successful response.
func callAPI(ctx context.Context, client HTTPClient, botToken SecretToken, method string, payload any) (json.RawMessage, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &TelegramAPIError{Description: "failed to marshal request", Err: err}
		}
		body = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s%s/%s", telegramAPIBaseURL, botToken.Value(), method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, &TelegramAPIError{Description: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TelegramAPIError{Description: method + ": failed to send request", Err: err}
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	return parseAPIResponse(resp)
}

// parseAPIResponse decodes the common Telegram response envelope.
func parseAPIResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TelegramAPIError{Description: "failed to read response", Err: err}
	}

	var telegramResp telegramResponse
	if err := json.Unmarshal(respBody, &telegramResp); err != nil {
		return nil, &TelegramAPIError{
			Code:        resp.StatusCode,
			Description: "failed to parse response",
			Err:         err,
		}
	}

	if !telegramResp.OK {
		return nil, &TelegramAPIError{
			Code:        telegramResp.ErrorCode,
			Description: telegramResp.Description,
		}
	}

	return telegramResp.Result, nil
}
