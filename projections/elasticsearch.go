package projections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/giftcard/config"
	"example.com/backstage/services/giftcard/models"
)

// GiftCardsIndex is the unprefixed name of the search mirror
const GiftCardsIndex = "gift-cards"

// NewElasticsearchClient creates a new Elasticsearch client
func NewElasticsearchClient(cfg config.ElasticConfig) (*elasticsearch.Client, error) {
	elasticCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
		},
	}

	client, err := elasticsearch.NewClient(elasticCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	// Check the connection
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("error connecting to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.String())
	}

	log.Info().Msg("Successfully connected to Elasticsearch")
	return client, nil
}

// ElasticIndexer mirrors gift card rows into one index, keyed by gift card id
type ElasticIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticIndexer(client *elasticsearch.Client, cfg config.ElasticConfig) *ElasticIndexer {
	return &ElasticIndexer{client: client, index: config.FormatIndex(cfg, GiftCardsIndex)}
}

// EnsureIndex creates the index if it does not exist
func (i *ElasticIndexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error checking if index %s exists: %w", i.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	log.Info().Msgf("Creating index %s", i.index)
	res, err = i.client.Indices.Create(i.index, i.client.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error creating index %s: %w", i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index %s: %s", i.index, res.String())
	}
	return nil
}

func (i *ElasticIndexer) IndexGiftCard(ctx context.Context, row *models.GiftCard) error {
	doc, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal gift card: %w", err)
	}

	res, err := i.client.Index(
		i.index,
		bytes.NewReader(doc),
		i.client.Index.WithDocumentID(row.GiftCardID),
		i.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index gift card: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing gift card: %s", res.String())
	}
	return nil
}

// Reset drops and recreates the index ahead of a rebuild
func (i *ElasticIndexer) Reset(ctx context.Context) error {
	res, err := i.client.Indices.Delete([]string{i.index},
		i.client.Indices.Delete.WithContext(ctx),
		i.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("error deleting index %s: %w", i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error deleting index %s: %s", i.index, res.String())
	}
	return i.EnsureIndex(ctx)
}
