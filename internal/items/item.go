// Package items defines the Item entity, its cached read projection, and the
// request and task types shared by the service, the store and the worker.
package items

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/errors"
	"github.com/google/uuid"
)

// MaxNameLength bounds Item.Name in characters.
const MaxNameLength = 200

// Item is the durable record. Enrichment and EnrichedAt stay nil until the
// worker has processed the item and are always written together.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Enrichment  *string    `json:"enrichment"`
	EnrichedAt  *time.Time `json:"enriched_at"`
}

// CreateItem is the inbound write payload.
type CreateItem struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description"`
}

// CacheKey is the cache key of the projection for id.
func CacheKey(id uuid.UUID) string {
	return "item:" + id.String()
}

// Projection serialises the read projection stored in the cache.
func (i *Item) Projection() ([]byte, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("encoding item %s: %w", i.ID, err)
	}
	return data, nil
}

// DecodeProjection parses a cached projection.
func DecodeProjection(data []byte) (*Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decoding item projection: %w", err)
	}
	if item.ID == uuid.Nil {
		return nil, fmt.Errorf("decoding item projection: missing id")
	}
	return &item, nil
}

// ParseID parses the string form of an item id. Malformed input is reported
// as ErrInvalidInput.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid item id %q", raw)
	}
	return id, nil
}

// Enriched reports whether the worker has completed processing.
func (i *Item) Enriched() bool {
	return i.Enrichment != nil && i.EnrichedAt != nil
}
