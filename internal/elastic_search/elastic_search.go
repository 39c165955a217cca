package elastic_search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/aws/aws-sdk-go/aws/credentials"
	v4 "github.com/aws/aws-sdk-go/aws/signer/v4"
	"github.com/olivere/elastic/v7"
	"github.com/patrickmn/go-cache"
	"github.com/sha1sum/aws_signing_client"
	"go.uber.org/zap"
)

var ErrNoClient = errors.New("elastic search client not configured")

type Index interface {
	GetClient() *elastic.Client

	InstallMappings(ctx context.Context, mappingDir string, reindex bool) error

	AddIndexRequest(index string, entity entity.Entity)
	AddDeleteRequest(index string, entity entity.Entity)
	AddEvent(e entity.Event)
	HasRequest(index string, entity entity.Entity) bool
	GetRequests() []Request
	GetRequest(index string, id string) *Request
	ClearRequests()

	BatchPersist(ctx context.Context) bool
	Persist(ctx context.Context) (int, error)

	Listen(manager *event.Manager)
}

type index struct {
	client    *elastic.Client
	cache     *cache.Cache
	refresh   string
	bulkCount int
	mu        sync.Mutex
}

// Request is a buffered write. A non-zero Version is sent as an external
// version, so a write older than the stored document is dropped.
type Request struct {
	Index   string
	Entity  entity.Entity
	Type    RequestType
	Version int64
}

type RequestType string

const (
	IndexRequest  RequestType = "index"
	DeleteRequest RequestType = "delete"
)

const (
	saveAttempts   int = 3
	batchThreshold int = 250

	externalVersion = "external"
)

func New() (Index, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	return NewIndex(client, config.Get().ElasticSearch.Refresh, config.Get().ElasticSearch.BulkPersistCount), nil
}

// NewIndex buffers requests for client. A nil client still buffers, but
// Persist fails while requests are pending.
func NewIndex(client *elastic.Client, refresh string, bulkCount int) Index {
	if bulkCount <= 0 {
		bulkCount = batchThreshold
	}

	return &index{
		client:    client,
		cache:     cache.New(cache.NoExpiration, 0),
		refresh:   refresh,
		bulkCount: bulkCount,
	}
}

func newClient() (*elastic.Client, error) {
	opts := []elastic.ClientOptionFunc{
		elastic.SetURL(config.Get().ElasticSearch.Hosts...),
		elastic.SetSniff(config.Get().ElasticSearch.Sniff),
		elastic.SetHealthcheck(config.Get().ElasticSearch.HealthCheck),
	}

	if config.Get().ElasticSearch.Debug {
		opts = append(opts, elastic.SetTraceLog(ElasticLogger{}))
	}

	if config.Get().ElasticSearch.Aws {
		awsClient, err := newAwsClient(config.Get().Aws)
		if err != nil {
			return nil, err
		}

		opts = append(opts, elastic.SetHttpClient(awsClient))
		opts = append(opts, elastic.SetScheme("https"))
		return elastic.NewClient(opts...)
	}

	if config.Get().ElasticSearch.Username != "" {
		opts = append(opts, elastic.SetBasicAuth(
			config.Get().ElasticSearch.Username,
			config.Get().ElasticSearch.Password,
		))
	}

	return elastic.NewClient(opts...)
}

func newAwsClient(cfg config.AwsConfig) (*http.Client, error) {
	creds := credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, cfg.Token)

	return aws_signing_client.New(v4.NewSigner(creds), nil, "es", cfg.Region)
}

func (i *index) GetClient() *elastic.Client {
	return i.client
}

// InstallMappings creates one index per mapping file, named after the file.
// With reindex set, existing indices are dropped first.
func (i *index) InstallMappings(ctx context.Context, mappingDir string, reindex bool) error {
	zap.L().With(zap.String("dir", mappingDir)).Info("ElasticSearch: Install Mappings")

	if i.client == nil {
		return ErrNoClient
	}

	files, err := os.ReadDir(mappingDir)
	if err != nil {
		return fmt.Errorf("mappings directory: %w", err)
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}

		b, err := os.ReadFile(filepath.Join(mappingDir, f.Name()))
		if err != nil {
			return fmt.Errorf("mappings file %s: %w", f.Name(), err)
		}

		name := Indices(strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))).Get()
		if err = i.createIndex(ctx, name, b, reindex); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}

	return nil
}

func (i *index) createIndex(ctx context.Context, index string, mapping []byte, reindex bool) error {
	exists, err := i.client.IndexExists(index).Do(ctx)
	if err != nil {
		return err
	}

	if exists && reindex {
		zap.S().Infof("ElasticSearch: Deleting index %s", index)
		if _, err = i.client.DeleteIndex(index).Do(ctx); err != nil {
			return err
		}
		exists = false
	}

	if !exists {
		createIndex, err := i.client.CreateIndex(index).BodyString(string(mapping)).Do(ctx)
		if err != nil {
			return err
		}

		if createIndex.Acknowledged {
			zap.S().Infof("ElasticSearch: Created index %s", index)
		}
	}

	return nil
}

func (i *index) AddIndexRequest(index string, entity entity.Entity) {
	zap.L().With(zap.String("index", index), zap.String("slug", entity.Slug())).Debug("ElasticSearch: AddIndexRequest")

	i.addRequest(Request{Index: index, Entity: entity, Type: IndexRequest})
}

func (i *index) AddDeleteRequest(index string, entity entity.Entity) {
	zap.L().With(zap.String("index", index), zap.String("slug", entity.Slug())).Debug("ElasticSearch: AddDeleteRequest")

	i.addRequest(Request{Index: index, Entity: entity, Type: DeleteRequest})
}

// AddEvent buffers the event document and the change it makes to the
// listing index. Listing writes are versioned by the event sequence so
// events may arrive in any order.
func (i *index) AddEvent(e entity.Event) {
	i.AddIndexRequest(EventIndex.Get(), NewEventDocument(e))

	listing := Request{Index: ListingIndex.Get(), Entity: NewListingDocument(e), Version: int64(e.Sequence)}
	switch e.Type {
	case entity.ItemListed:
		listing.Type = IndexRequest
	case entity.ItemCanceled, entity.ItemBought:
		listing.Type = DeleteRequest
	default:
		return
	}

	zap.L().With(zap.String("slug", listing.Entity.Slug()), zap.Int64("version", listing.Version)).Debug("ElasticSearch: AddEvent")
	i.addRequest(listing)
}

func (i *index) HasRequest(index string, entity entity.Entity) bool {
	_, found := i.cache.Get(requestKey(index, entity.Slug()))

	return found
}

// A later request for the same document replaces the pending one, unless
// the pending one carries a higher version.
func (i *index) addRequest(req Request) {
	key := requestKey(req.Index, req.Entity.Slug())
	if pending, found := i.cache.Get(key); found && pending.(Request).Version > req.Version {
		return
	}

	i.cache.Set(key, req, cache.NoExpiration)
}

func (i *index) GetRequests() []Request {
	requests := make([]Request, 0)

	for _, item := range i.cache.Items() {
		requests = append(requests, item.Object.(Request))
	}

	return requests
}

func (i *index) GetRequest(index string, id string) *Request {
	if item, found := i.cache.Get(requestKey(index, id)); found {
		req := item.(Request)
		return &req
	}

	return nil
}

func (i *index) ClearRequests() {
	i.cache.Flush()
}

func (i *index) BatchPersist(ctx context.Context) bool {
	if i.cache.ItemCount() < batchThreshold {
		return false
	}

	actions := i.cache.ItemCount()
	start := time.Now()
	if _, err := i.Persist(ctx); err != nil {
		zap.L().With(zap.Error(err)).Error("ElasticSearch: Failed to persist batch")
		return false
	}

	zap.L().With(
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("actions", actions),
	).Info("ElasticSearch: Persisting data")

	return true
}

// Persist sends all buffered requests in bulk and returns the number of
// actions sent. The buffer is kept when persisting fails.
func (i *index) Persist(ctx context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	requests := i.GetRequests()
	if len(requests) == 0 {
		return 0, nil
	}
	if i.client == nil {
		return 0, ErrNoClient
	}

	total := 0
	bulk := i.client.Bulk()
	for _, r := range requests {
		switch r.Type {
		case IndexRequest:
			req := elastic.NewBulkIndexRequest().Index(r.Index).Id(r.Entity.Slug()).Doc(r.Entity)
			if r.Version != 0 {
				req = req.Version(r.Version).VersionType(externalVersion)
			}
			bulk.Add(req)
		case DeleteRequest:
			req := elastic.NewBulkDeleteRequest().Index(r.Index).Id(r.Entity.Slug())
			if r.Version != 0 {
				req = req.Version(r.Version).VersionType(externalVersion)
			}
			bulk.Add(req)
		}

		if bulk.NumberOfActions() >= i.bulkCount {
			total += bulk.NumberOfActions()
			if err := i.persist(ctx, bulk); err != nil {
				return total, err
			}
			bulk = i.client.Bulk()
		}
	}

	if actions := bulk.NumberOfActions(); actions != 0 {
		total += actions
		if err := i.persist(ctx, bulk); err != nil {
			return total, err
		}
	}

	for _, r := range requests {
		i.cache.Delete(requestKey(r.Index, r.Entity.Slug()))
	}

	return total, nil
}

func (i *index) persist(ctx context.Context, bulk *elastic.BulkService) error {
	zap.S().Debugf("ElasticSearch: Persisting %d actions", bulk.NumberOfActions())

	response, err := bulk.Refresh(i.refresh).Do(ctx)
	if err != nil {
		time.Sleep(1 * time.Second)
		if response, err = bulk.Refresh(i.refresh).Do(ctx); err != nil {
			return fmt.Errorf("persist requests: %w", err)
		}
	}

	for _, failed := range response.Failed() {
		// deleting a listing that was never indexed is not an error
		if failed.Status == http.StatusNotFound {
			continue
		}
		if failed.Status == http.StatusConflict {
			zap.L().With(zap.String("index", failed.Index), zap.String("id", failed.Id)).Debug("ElasticSearch: Skipped stale request")
			continue
		}

		zap.L().With(
			zap.Any("error", failed.Error),
			zap.String("index", failed.Index),
			zap.String("id", failed.Id),
		).Error("ElasticSearch: Failed to persist request. Retrying...")

		if req := i.GetRequest(failed.Index, failed.Id); req != nil && req.Type == IndexRequest {
			if err := i.save(ctx, *req, 1); err != nil {
				return err
			}
		}
	}

	return nil
}

func (i *index) save(ctx context.Context, req Request, attempt int) error {
	service := i.client.Index().
		Index(req.Index).
		Id(req.Entity.Slug()).
		BodyJson(req.Entity)
	if req.Version != 0 {
		service = service.Version(req.Version).VersionType(externalVersion)
	}

	_, err := service.Do(ctx)
	if err == nil || elastic.IsConflict(err) {
		return nil
	}

	zap.L().With(zap.Error(err), zap.String("index", req.Index), zap.String("slug", req.Entity.Slug())).
		Error("ElasticSearch: Failed to save entity")

	if attempt >= saveAttempts {
		return fmt.Errorf("save %s/%s: too many attempts: %w", req.Index, req.Entity.Slug(), err)
	}
	time.Sleep(1 * time.Second)

	return i.save(ctx, req, attempt+1)
}

// Listen indexes every marketplace event published on manager.
func (i *index) Listen(manager *event.Manager) {
	manager.AddEventListener(event.AnyEvent, func(msg interface{}) {
		e, ok := msg.(entity.Event)
		if !ok {
			return
		}

		i.AddEvent(e)
		if _, err := i.Persist(context.Background()); err != nil {
			zap.L().With(zap.Error(err), zap.Uint64("sequence", e.Sequence)).Error("ElasticSearch: Failed to index event")
		}
	})
}

func requestKey(index string, id string) string {
	return index + "/" + id
}
