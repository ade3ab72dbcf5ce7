package sync

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/pkg/errors"
)

// cursor encodes the last emitted position in the (last_modified_at,
// entity_id) total order. Clients treat the encoded form as a black box.
type cursor struct {
	Timestamp time.Time `json:"ts"`
	EntityID  string    `json:"id"`
}

func encodeCursor(ts time.Time, entityID string) string {
	data, err := json.Marshal(cursor{Timestamp: ts.UTC(), EntityID: entityID})
	if err != nil {
		// cursor fields always marshal
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return time.Time{}, "", errors.Wrap(domain.ErrInvalidCursor, err.Error())
	}

	var c cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return time.Time{}, "", errors.Wrap(domain.ErrInvalidCursor, err.Error())
	}
	if c.Timestamp.IsZero() {
		return time.Time{}, "", domain.ErrInvalidCursor
	}

	return c.Timestamp.UTC(), c.EntityID, nil
}
