// Package elasticsearch provides Elasticsearch connectivity for the sensor archive.
//
// It wraps github.com/elastic/go-elasticsearch/v8 with a connect-time ping,
// JSON document indexing and the daily index naming used by the archive.
//
// # Usage
//
//	client, err := elasticsearch.Connect(cfg.Archive.Elasticsearch)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = client.Index(ctx, client.DailyIndex(time.Now()), doc)
package elasticsearch
