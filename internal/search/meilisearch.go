package search

import (
	"strconv"

	"imovel-portal/internal/models"

	"github.com/meilisearch/meilisearch-go"
)

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})

	return &SearchClient{
		client: client,
		index:  "properties",
	}
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && err.Error() != "index already exists" {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"cidade",
		"bairro",
		"endereco",
		"descricao",
		"subtipo",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"id",
		"categoria",
		"tipo_transacao",
		"cidade",
		"bairro",
		"valor",
		"area",
		"source_api",
		"active",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"valor",
		"area",
		"created_at",
	})
	return err
}

// IndexImovel indexes a single listing
func (s *SearchClient) IndexImovel(imovel *models.Imovel) error {
	_, err := s.client.Index(s.index).AddDocuments([]models.Imovel{*imovel})
	return err
}

// IndexImoveis indexes multiple listings
func (s *SearchClient) IndexImoveis(imoveis []models.Imovel) error {
	if len(imoveis) == 0 {
		return nil
	}
	_, err := s.client.Index(s.index).AddDocuments(imoveis)
	return err
}

// RemoveImovel drops a listing from the index (deactivated or deleted)
func (s *SearchClient) RemoveImovel(id uint) error {
	_, err := s.client.Index(s.index).DeleteDocument(strconv.FormatUint(uint64(id), 10))
	return err
}

// Search searches listings by free text
func (s *SearchClient) Search(query string, limit int64) ([]models.Imovel, error) {
	return s.FilterSearch(FilterParams{Query: query, Limit: limit})
}
