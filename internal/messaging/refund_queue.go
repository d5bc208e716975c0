package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const refundFollowUpKey = "tour-booking:refund-follow-ups"

// RefundFollowUp is a recorded refund that still has to be paid out by hand
type RefundFollowUp struct {
	BookingID       uuid.UUID `json:"booking_id"`
	RefundAmount    string    `json:"refund_amount"`
	CancellationFee string    `json:"cancellation_fee"`
	Currency        string    `json:"currency"`
	CustomerEmail   string    `json:"customer_email"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// RedisRefundQueue keeps refund follow-ups in a Redis list
type RedisRefundQueue struct {
	rdb *redis.Client
}

// NewRedisRefundQueue creates a new RedisRefundQueue
func NewRedisRefundQueue(rdb *redis.Client) *RedisRefundQueue {
	return &RedisRefundQueue{rdb: rdb}
}

// Push appends a follow-up to the queue
func (q *RedisRefundQueue) Push(ctx context.Context, f RefundFollowUp) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshalling refund follow-up: %w", err)
	}
	if err := q.rdb.RPush(ctx, refundFollowUpKey, data).Err(); err != nil {
		return fmt.Errorf("pushing refund follow-up: %w", err)
	}
	return nil
}

// List returns up to limit follow-ups, oldest first
func (q *RedisRefundQueue) List(ctx context.Context, limit int64) ([]RefundFollowUp, error) {
	if limit <= 0 {
		limit = 100
	}
	values, err := q.rdb.LRange(ctx, refundFollowUpKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing refund follow-ups: %w", err)
	}

	followUps := make([]RefundFollowUp, 0, len(values))
	for _, v := range values {
		var f RefundFollowUp
		if err := json.Unmarshal([]byte(v), &f); err != nil {
			return nil, fmt.Errorf("decoding refund follow-up: %w", err)
		}
		followUps = append(followUps, f)
	}
	return followUps, nil
}
