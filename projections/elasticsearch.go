package projections

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/provenance/config"
)

// Index names, before the configured prefix
const (
	ProductsIndex     = "products"
	CertificatesIndex = "certificates"
	LedgerIndex       = "ledger-entries"
)

// Indices lists every index the projections write to
var Indices = []string{ProductsIndex, CertificatesIndex, LedgerIndex}

// Indexer writes and searches projected documents
type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
	Search(ctx context.Context, index string, query map[string]interface{}) ([]map[string]interface{}, error)
}

// ElasticClient is the Elasticsearch implementation of Indexer
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a client and checks the connection
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating Elasticsearch client")
	}

	res, err := client.Info()
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to Elasticsearch")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.Errorf("Elasticsearch returned error: %s", res.String())
	}

	log.Info().Str("url", cfg.URL).Msg("Successfully connected to Elasticsearch")
	return &ElasticClient{client: client, config: cfg}, nil
}

// EnsureIndices creates any missing index
func (c *ElasticClient) EnsureIndices(ctx context.Context) error {
	for _, name := range Indices {
		index := c.config.FormatIndex(name)

		res, err := c.client.Indices.Exists([]string{index}, c.client.Indices.Exists.WithContext(ctx))
		if err != nil {
			return errors.Wrapf(err, "error checking if index %s exists", index)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			continue
		}

		log.Info().Str("index", index).Msg("Creating index")
		res, err = c.client.Indices.Create(index, c.client.Indices.Create.WithContext(ctx))
		if err != nil {
			return errors.Wrapf(err, "error creating index %s", index)
		}
		if res.IsError() {
			defer res.Body.Close()
			return errors.Errorf("error creating index %s: %s", index, res.String())
		}
		res.Body.Close()
	}

	return nil
}

// IndexDocument writes document under id, replacing any previous version
func (c *ElasticClient) IndexDocument(ctx context.Context, index, id string, document interface{}) error {
	body, err := json.Marshal(document)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}

	req := esapi.IndexRequest{
		Index:      c.config.FormatIndex(index),
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("Elasticsearch index error: %s", res.String())
	}

	return nil
}

// Search runs a query DSL body against index and returns the matching sources
func (c *ElasticClient) Search(ctx context.Context, index string, query map[string]interface{}) ([]map[string]interface{}, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.FormatIndex(index)},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.Errorf("Elasticsearch search error: %s", res.String())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch response")
	}

	documents := make([]map[string]interface{}, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		documents = append(documents, hit.Source)
	}
	return documents, nil
}
