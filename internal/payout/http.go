package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const idempotencyKeyHeader = "Idempotency-Key"

type instruction struct {
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// Http posts payout instructions to a settlement service. Any non 2xx
// response means the funds were not released. The client should retry with
// CheckRetry at most.
type Http struct {
	url       string
	accessKey string
	client    *retryablehttp.Client
}

func NewHttp(url, accessKey string, client *retryablehttp.Client) *Http {
	return &Http{url, accessKey, client}
}

func (h *Http) Release(ctx context.Context, to string, amount *big.Int, reference string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	body, err := json.Marshal(instruction{To: to, Amount: amount.String(), Reference: reference})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequest("POST", h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyKeyHeader, reference)
	if h.accessKey != "" {
		req.Header.Set("AccessKey", h.accessKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("to", to), zap.String("amount", amount.String()), zap.String("reference", reference)).
			Error("Payout: Failed to handle payout request")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		zap.L().With(zap.Int("status", resp.StatusCode), zap.String("to", to), zap.String("reference", reference)).Error("Payout: Settlement rejected payout")
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	zap.L().With(zap.String("to", to), zap.String("amount", amount.String())).Info("Payout: Released funds")

	return nil
}
