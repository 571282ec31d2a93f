package service

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
)

const itemsIndex = "items"

// SearchService keeps hidden items out of the public item index. Indexing
// itself belongs to the item service.
type SearchService interface {
	RemoveItems(ctx context.Context, ids []uuid.UUID) error
}

type indexClient interface {
	DeleteDocument(index, id string) error
}

type meiliClient struct {
	client meilisearch.ServiceManager
}

func (m meiliClient) DeleteDocument(index, id string) error {
	_, err := m.client.Index(index).DeleteDocument(id)
	return err
}

type meiliSearchService struct {
	client indexClient
}

func NewMeiliSearchService(client meilisearch.ServiceManager) SearchService {
	return &meiliSearchService{client: meiliClient{client: client}}
}

func (s *meiliSearchService) RemoveItems(ctx context.Context, ids []uuid.UUID) error {
	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.client.DeleteDocument(itemsIndex, id.String()); err != nil {
			log.Printf("Failed to remove item %s from search index: %v", id, err)
			return err
		}
		removed++
	}
	log.Printf("Removed %d items from search index", removed)
	return nil
}
