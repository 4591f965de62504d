/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/rs/xid"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/logging"
	"github.com/suparena/storemodel/registry"
	"github.com/suparena/storemodel/storagemodels"
)

// API is the subset of the DynamoDB client the backend uses.
type API interface {
	GetItem(ctx context.Context, in *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	PutItem(ctx context.Context, in *sdk.PutItemInput, optFns ...func(*sdk.Options)) (*sdk.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *sdk.UpdateItemInput, optFns ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *sdk.DeleteItemInput, optFns ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error)
	Query(ctx context.Context, in *sdk.QueryInput, optFns ...func(*sdk.Options)) (*sdk.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *sdk.TransactWriteItemsInput, optFns ...func(*sdk.Options)) (*sdk.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *sdk.DescribeTableInput, optFns ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error)
}

// Config holds the connection settings of NewFromConfig.
type Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Table     string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
}

// Backend implements datastore.Backend and datastore.BatchWriter on one
// DynamoDB table. Collections are laid out by their registry index map.
type Backend struct {
	client  API
	streams StreamsAPI
	table   string

	gsis       []GSIConfig
	streamOpts storagemodels.StreamOptions
	logger     *slog.Logger

	hub *datastore.Hub

	mu         sync.Mutex
	partitions map[string][]string // partition key value -> collections
	poller     *poller
}

var (
	_ datastore.Backend     = (*Backend)(nil)
	_ datastore.BatchWriter = (*Backend)(nil)
)

// Option configures a Backend.
type Option func(*Backend)

// WithGSI lets queries with an equality predicate use a global secondary index.
func WithGSI(cfg GSIConfig) Option {
	return func(b *Backend) { b.gsis = append(b.gsis, cfg) }
}

// WithStreamOptions configures DynamoDB Streams polling for Watch.
func WithStreamOptions(opts ...storagemodels.StreamOption) Option {
	return func(b *Backend) {
		for _, opt := range opts {
			opt(&b.streamOpts)
		}
	}
}

// New creates a Backend over an existing client. streams may be nil, in
// which case Watch is unsupported.
func New(client API, streams StreamsAPI, table string, opts ...Option) *Backend {
	b := &Backend{
		client:     client,
		streams:    streams,
		table:      table,
		streamOpts: storagemodels.DefaultStreamOptions(),
		logger:     logging.Logger("ddb").With("table", table),
		hub:        datastore.NewHub(),
		partitions: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewFromConfig builds DynamoDB and DynamoDB Streams clients with static
// credentials and returns a Backend on cfg.Table.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Backend, error) {
	if cfg.Table == "" {
		return nil, errors.NewValidationError("table", "must not be empty")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := sdk.NewFromConfig(awsCfg, func(o *sdk.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	streams := dynamodbstreams.NewFromConfig(awsCfg, func(o *dynamodbstreams.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	b := New(client, streams, cfg.Table, opts...)
	b.logger.Info("DynamoDB backend initialized", "region", cfg.Region)
	return b, nil
}

// keyLayout is the index map of one collection.
type keyLayout struct {
	collection string
	indexMap   map[string]string
}

func layoutOf(collection string) keyLayout {
	return keyLayout{collection: collection, indexMap: registry.GetIndexMap(collection)}
}

// expandMacros replaces every {macro} in template. {collection} and {id}
// come from the layout, anything else from the document attributes. ok is
// false when a referenced field is missing or not a scalar.
func (l keyLayout) expandMacros(template, id string, av map[string]types.AttributeValue) (string, bool) {
	ok := true
	expanded := registry.MacroPattern.ReplaceAllStringFunc(template, func(macro string) string {
		name := strings.Trim(macro, "{}")
		switch name {
		case registry.MacroCollection:
			return l.collection
		case registry.MacroID:
			return id
		}
		s, scalar := scalarString(av[name])
		if !scalar {
			ok = false
		}
		return s
	})
	return expanded, ok
}

// scalarString renders a key-able attribute value as a string.
func scalarString(val types.AttributeValue) (string, bool) {
	switch tv := val.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value, true
	case *types.AttributeValueMemberN:
		return tv.Value, true
	case *types.AttributeValueMemberBOOL:
		return fmt.Sprintf("%v", tv.Value), true
	default:
		// NULL, binary, sets, lists and maps cannot form a key
		return "", false
	}
}

func (l keyLayout) partition() string {
	pk, _ := l.expandMacros(l.indexMap["PK"], "", nil)
	return pk
}

func (l keyLayout) key(id string) map[string]types.AttributeValue {
	sk, _ := l.expandMacros(l.indexMap["SK"], id, nil)
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: l.partition()},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// idFromSort recovers a document id from its sort key.
func (l keyLayout) idFromSort(sk string) (string, bool) {
	template := l.indexMap["SK"]
	i := strings.Index(template, "{"+registry.MacroID+"}")
	if i < 0 {
		return "", false
	}
	prefix, _ := l.expandMacros(template[:i], "", nil)
	suffix, _ := l.expandMacros(template[i+len(registry.MacroID)+2:], "", nil)
	if !strings.HasPrefix(sk, prefix) || !strings.HasSuffix(sk, suffix) || len(sk) < len(prefix)+len(suffix) {
		return "", false
	}
	return sk[len(prefix) : len(sk)-len(suffix)], true
}

// derived expands the index map entries other than PK and SK. Entries whose
// fields are absent are left out, keeping sparse indexes sparse.
func (l keyLayout) derived(id string, av map[string]types.AttributeValue) map[string]string {
	out := make(map[string]string)
	for attr, template := range l.indexMap {
		if attr == "PK" || attr == "SK" {
			continue
		}
		if v, ok := l.expandMacros(template, id, av); ok {
			out[attr] = v
		}
	}
	return out
}

// item encodes a document with its key and derived attributes. Document
// fields named like index map attributes are dropped.
func (l keyLayout) item(id string, data map[string]any) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(data)
	if err != nil {
		return nil, errors.NewValidationError("data", fmt.Sprintf("failed to marshal document: %v", err))
	}
	for attr := range l.indexMap {
		delete(av, attr)
	}
	for attr, v := range l.derived(id, av) {
		av[attr] = &types.AttributeValueMemberS{Value: v}
	}
	for attr, v := range l.key(id) {
		av[attr] = v
	}
	return av, nil
}

// record decodes an item, stripping the key layout attributes.
func (l keyLayout) record(item map[string]types.AttributeValue) (datastore.Record, error) {
	sk, _ := item["SK"].(*types.AttributeValueMemberS)
	if sk == nil {
		return datastore.Record{}, fmt.Errorf("item without SK in collection %s", l.collection)
	}
	id, ok := l.idFromSort(sk.Value)
	if !ok {
		return datastore.Record{}, fmt.Errorf("sort key %q does not match layout of %s", sk.Value, l.collection)
	}

	body := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		if _, reserved := l.indexMap[k]; !reserved {
			body[k] = v
		}
	}
	data := map[string]any{}
	if err := attributevalue.UnmarshalMap(body, &data); err != nil {
		return datastore.Record{}, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return datastore.Record{ID: id, Data: data}, nil
}

// Get retrieves a single document with a strongly consistent read.
func (b *Backend) Get(ctx context.Context, collection, id string) (*datastore.Record, error) {
	l := layoutOf(collection)
	out, err := b.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            l.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem error: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	rec, err := l.record(out.Item)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create stores data under a new xid.
func (b *Backend) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := xid.New().String()
	if err := b.put(ctx, collection, id, data, true); err != nil {
		return "", err
	}
	return id, nil
}

// Set replaces the document at id.
func (b *Backend) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return b.put(ctx, collection, id, data, false)
}

func (b *Backend) put(ctx context.Context, collection, id string, data map[string]any, mustNotExist bool) error {
	l := layoutOf(collection)
	item, err := l.item(id, data)
	if err != nil {
		return err
	}
	input := &sdk.PutItemInput{
		TableName: aws.String(b.table),
		Item:      item,
	}
	if mustNotExist {
		expr, err := expression.NewBuilder().
			WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
			Build()
		if err != nil {
			return fmt.Errorf("failed to build put condition: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
	}

	if _, err := b.client.PutItem(ctx, input); err != nil {
		var cfe *types.ConditionalCheckFailedException
		if stderrors.As(err, &cfe) {
			return errors.NewConditionFailedError("put", "attribute_not_exists(PK)")
		}
		return fmt.Errorf("PutItem failed: %w", err)
	}
	return nil
}

// buildUpdate turns a partial document into a SET update guarded by the
// existence of the item. Derived index attributes whose fields are all part
// of the update are refreshed too.
func (l keyLayout) buildUpdate(id string, data map[string]any) (expression.Expression, error) {
	fields := make([]string, 0, len(data))
	for k := range data {
		if _, reserved := l.indexMap[k]; !reserved {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)

	var update expression.UpdateBuilder
	for i, k := range fields {
		if i == 0 {
			update = expression.Set(expression.Name(k), expression.Value(data[k]))
			continue
		}
		update = update.Set(expression.Name(k), expression.Value(data[k]))
	}

	av, err := attributevalue.MarshalMap(data)
	if err != nil {
		return expression.Expression{}, errors.NewValidationError("data", fmt.Sprintf("failed to marshal update: %v", err))
	}
	for attr, v := range l.derived(id, av) {
		update = update.Set(expression.Name(attr), expression.Value(v))
	}

	return expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
}

// Update merges data into an existing document.
func (b *Backend) Update(ctx context.Context, collection, id string, data map[string]any) error {
	l := layoutOf(collection)
	if len(data) == 0 {
		rec, err := b.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return errors.NewNotFoundError(collection, id)
		}
		return nil
	}

	expr, err := l.buildUpdate(id, data)
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}
	_, err = b.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                 aws.String(b.table),
		Key:                       l.key(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if stderrors.As(err, &cfe) {
			return errors.NewNotFoundError(collection, id)
		}
		return fmt.Errorf("UpdateItem failed: %w", err)
	}
	return nil
}

// Increment adds delta to a numeric field with an atomic ADD.
func (b *Backend) Increment(ctx context.Context, collection, id, field string, delta float64) error {
	l := layoutOf(collection)
	if _, reserved := l.indexMap[field]; reserved {
		return errors.NewValidationError(field, "key attributes cannot be incremented")
	}
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Add(expression.Name(field), expression.Value(delta))).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build increment: %w", err)
	}
	_, err = b.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                 aws.String(b.table),
		Key:                       l.key(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if stderrors.As(err, &cfe) {
			return errors.NewNotFoundError(collection, id)
		}
		return fmt.Errorf("UpdateItem (ADD) failed: %w", err)
	}
	return nil
}

// Delete removes an item. Deleting an absent item succeeds.
func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	_, err := b.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName: aws.String(b.table),
		Key:       layoutOf(collection).key(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item in DynamoDB: %w", err)
	}
	return nil
}

// Close stops stream polling and cancels every watcher.
func (b *Backend) Close() error {
	b.mu.Lock()
	p := b.poller
	b.poller = nil
	b.mu.Unlock()

	if p != nil {
		p.stop()
	}
	b.hub.CloseAll()
	return nil
}
