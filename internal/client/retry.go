// Package client は呼び出し側アプリケーション向けのHTTPクライアントと
// リトライポリシーを提供する。
//
// 再試行の対象は一時的障害（接続失敗と5xx）のみ。4xxは呼び出し側の
// 問題であり、何度送っても結果は変わらないため即座に確定する。
package client

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// CallResult は呼び出し結果の分類を表す。
type CallResult string

const (
	// CallResultSuccess は成功（2xx）。
	CallResultSuccess CallResult = "success"
	// CallResultTransient は一時的障害（接続失敗・5xx）。再試行の対象。
	CallResultTransient CallResult = "transient"
	// CallResultTerminal は確定的失敗（4xx）。再試行しても結果は変わらない。
	CallResultTerminal CallResult = "terminal"
)

// ClassifyStatus はHTTPステータスコードを呼び出し結果に分類する。
// status 0 はレスポンスが得られなかった接続レベルの失敗を表す。
func ClassifyStatus(status int) CallResult {
	switch {
	case status == 0:
		return CallResultTransient
	case status >= 500:
		return CallResultTransient
	case status >= 400:
		return CallResultTerminal
	default:
		return CallResultSuccess
	}
}

// RetryPolicy は再試行の上限と間隔を定める。
type RetryPolicy struct {
	// MaxAttempts は初回を含む最大試行回数。
	MaxAttempts int
	// InitialBackoff は初回再試行までの待ち時間。以降は倍々に増える。
	InitialBackoff time.Duration
}

// DefaultRetryPolicy はデフォルトの再試行ポリシーを返す。
// 最大3回試行、バックオフは200msから倍々。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
	}
}

// ShouldRetry はattempt回目（1始まり）の試行がstatusで終わった後に
// 再試行すべきかどうかを返す。一時的障害のみが対象。
func (p RetryPolicy) ShouldRetry(attempt int, status int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return ClassifyStatus(status) == CallResultTransient
}

// backoffFor はattempt回目の試行後の待ち時間を返す。
func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	return backoff
}

// Client は再試行ポリシー付きのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	policy     RetryPolicy
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, policy RetryPolicy, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		policy:     policy,
		logger:     logger,
	}
}

// Do はリクエストを実行し、一時的障害に対してポリシーの範囲内で
// 再試行する。試行を使い果たした場合は最後のレスポンス（または
// 接続エラー）をそのまま返す。再試行の際はレスポンスボディを
// クローズしてからバックオフする。
//
// リクエストボディを持つリクエストはGetBodyが設定されている必要がある
// （http.NewRequestWithContextがbytes.Reader等に対して自動設定する）。
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		// 2回目以降はボディを巻き戻す
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.httpClient.Do(req)

		status := 0
		if err == nil {
			status = resp.StatusCode
		}

		if !c.policy.ShouldRetry(attempt, status) {
			return resp, err
		}

		// 再試行する。保持中のレスポンスは破棄する
		if resp != nil {
			resp.Body.Close()
		}

		if c.logger != nil {
			c.logger.Warn("transient failure, retrying",
				slog.String("method", req.Method),
				slog.String("url", req.URL.String()),
				slog.Int("status", status),
				slog.Int("attempt", attempt),
			)
		}

		backoff := c.policy.backoffFor(attempt)
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(backoff):
		}
	}
}
