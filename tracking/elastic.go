package tracking

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/goccy/go-json"
)

const DefaultIndex = "mlflow-metrics"

// ElasticSink indexes one document per record: the metrics as top level
// fields, the params under "params", and an @timestamp.
type ElasticSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticSink(host, index string) (*ElasticSink, error) {
	if index == "" {
		index = DefaultIndex
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{host}})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &ElasticSink{client: client, index: index}, nil
}

func (s *ElasticSink) Record(ctx context.Context, params map[string]string, metrics map[string]float64) error {
	doc := make(map[string]any, len(metrics)+2)
	for k, v := range metrics {
		doc[k] = v
	}
	doc["params"] = params
	doc["@timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := s.client.Index(s.index, bytes.NewReader(body), s.client.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("elasticsearch index %s: %s: %s", s.index, res.Status(), bytes.TrimSpace(msg))
	}
	return nil
}
