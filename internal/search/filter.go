package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"imovel-portal/internal/models"

	"github.com/meilisearch/meilisearch-go"
)

type FilterParams struct {
	Query         string
	Categoria     string
	TipoTransacao string
	Cidade        string
	MinValor      *float64
	MaxValor      *float64
	SortBy        string
	Limit         int64
}

// FilterSearch performs a filtered search over active listings
func (s *SearchClient) FilterSearch(params FilterParams) ([]models.Imovel, error) {
	filters := []string{"active = true"}

	if params.Categoria != "" {
		filters = append(filters, fmt.Sprintf("categoria = '%s'", params.Categoria))
	}
	if params.TipoTransacao != "" {
		filters = append(filters, fmt.Sprintf("tipo_transacao = '%s'", params.TipoTransacao))
	}
	if params.Cidade != "" {
		filters = append(filters, fmt.Sprintf("cidade = '%s'", params.Cidade))
	}
	if params.MinValor != nil {
		filters = append(filters, fmt.Sprintf("valor >= %f", *params.MinValor))
	}
	if params.MaxValor != nil {
		filters = append(filters, fmt.Sprintf("valor <= %f", *params.MaxValor))
	}

	if params.Limit == 0 {
		params.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  params.Limit,
		Filter: strings.Join(filters, " AND "),
	}

	if params.SortBy != "" {
		searchReq.Sort = []string{params.SortBy}
	}

	searchRes, err := s.client.Index(s.index).Search(params.Query, searchReq)
	if err != nil {
		return nil, err
	}

	// Convert hits to listings via JSON round trip
	var imoveis []models.Imovel
	for _, hit := range searchRes.Hits {
		hitJSON, err := json.Marshal(hit)
		if err != nil {
			continue
		}

		var imovel models.Imovel
		if err := json.Unmarshal(hitJSON, &imovel); err != nil {
			continue
		}

		imoveis = append(imoveis, imovel)
	}

	return imoveis, nil
}
