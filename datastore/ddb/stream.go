/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/aws/smithy-go"

	"github.com/suparena/storemodel/datastore"
	"github.com/suparena/storemodel/errors"
	sm "github.com/suparena/storemodel/storagemodels"
)

// StreamsAPI is the subset of the DynamoDB Streams client Watch uses.
type StreamsAPI interface {
	DescribeStream(ctx context.Context, in *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, in *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, in *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

// Watch reports changes read from the table's DynamoDB stream. The stream
// must be enabled with at least KEYS_ONLY records. Polling starts with the
// first watcher and runs until Close.
func (b *Backend) Watch(ctx context.Context, collection, id string, fn datastore.ChangeFunc) (sm.Subscription, error) {
	if b.streams == nil {
		return nil, errors.NewUnsupportedError("watch without a DynamoDB Streams client")
	}
	l := layoutOf(collection)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.poller == nil {
		p, err := b.startPoller(ctx)
		if err != nil {
			return nil, err
		}
		b.poller = p
	}
	pk := l.partition()
	if !contains(b.partitions[pk], collection) {
		b.partitions[pk] = append(b.partitions[pk], collection)
	}
	return b.hub.Subscribe(ctx, collection, id, fn), nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func (b *Backend) startPoller(ctx context.Context) (*poller, error) {
	out, err := b.client.DescribeTable(ctx, &sdk.DescribeTableInput{TableName: aws.String(b.table)})
	if err != nil {
		return nil, fmt.Errorf("DescribeTable failed: %w", err)
	}
	if out.Table == nil || aws.ToString(out.Table.LatestStreamArn) == "" {
		return nil, fmt.Errorf("table %s has no stream enabled", b.table)
	}

	pctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		b:      b,
		arn:    aws.ToString(out.Table.LatestStreamArn),
		opts:   b.streamOpts,
		cancel: cancel,
		done:   make(chan struct{}),
		shards: make(map[string]*shard),
		seen:   make(map[string]bool),
	}
	go p.run(pctx)
	b.logger.Info("stream polling started", "stream", p.arn)
	return p, nil
}

// poller reads every shard of a stream and publishes document changes.
type poller struct {
	b      *Backend
	arn    string
	opts   sm.StreamOptions
	cancel context.CancelFunc
	done   chan struct{}

	// shards and seen are owned by the run goroutine
	shards map[string]*shard
	seen   map[string]bool
}

type shard struct {
	id       string
	iterator *string
	lastSeq  string
}

func (p *poller) stop() {
	p.cancel()
	<-p.done
}

func (p *poller) run(ctx context.Context) {
	defer close(p.done)

	initial := true
	for polls := 0; ; polls++ {
		if ctx.Err() != nil {
			return
		}
		if initial || (p.opts.ShardRefresh > 0 && polls%p.opts.ShardRefresh == 0) {
			if err := p.refresh(ctx, initial); err != nil {
				if !p.handle(ctx, err) {
					return
				}
			} else {
				initial = false
			}
		}

		n, err := p.poll(ctx)
		if err != nil && !p.handle(ctx, err) {
			return
		}
		if n == 0 {
			if sleep(ctx, p.opts.PollInterval) != nil {
				return
			}
		}
	}
}

// handle reports whether polling continues after err. When the error
// handler stops polling every watcher is cancelled.
func (p *poller) handle(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	p.b.logger.Warn("stream polling error", "stream", p.arn, "error", err)
	if p.opts.ErrorHandler == nil || p.opts.ErrorHandler(err) {
		return true
	}

	p.b.mu.Lock()
	if p.b.poller == p {
		p.b.poller = nil
	}
	p.b.mu.Unlock()
	p.b.hub.CloseAll()
	return false
}

// refresh discovers new shards. Shards present at start are read from
// LATEST, shards that appear later from TRIM_HORIZON.
func (p *poller) refresh(ctx context.Context, initial bool) error {
	var start *string
	for {
		out, err := withRetry(ctx, p.opts, func() (*dynamodbstreams.DescribeStreamOutput, error) {
			return p.b.streams.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
				StreamArn:             aws.String(p.arn),
				ExclusiveStartShardId: start,
			})
		})
		if err != nil {
			return fmt.Errorf("DescribeStream failed: %w", err)
		}
		if out.StreamDescription == nil {
			return nil
		}

		for _, s := range out.StreamDescription.Shards {
			id := aws.ToString(s.ShardId)
			if p.seen[id] {
				continue
			}
			closed := s.SequenceNumberRange != nil && s.SequenceNumberRange.EndingSequenceNumber != nil
			if initial && closed {
				p.seen[id] = true
				continue
			}
			typ := streamtypes.ShardIteratorTypeTrimHorizon
			if initial {
				typ = streamtypes.ShardIteratorTypeLatest
			}
			it, err := p.iterator(ctx, id, typ, "")
			if err != nil {
				return err
			}
			p.seen[id] = true
			p.shards[id] = &shard{id: id, iterator: it}
		}

		start = out.StreamDescription.LastEvaluatedShardId
		if start == nil {
			return nil
		}
	}
}

func (p *poller) iterator(ctx context.Context, shardID string, typ streamtypes.ShardIteratorType, after string) (*string, error) {
	in := &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         aws.String(p.arn),
		ShardId:           aws.String(shardID),
		ShardIteratorType: typ,
	}
	if after != "" {
		in.SequenceNumber = aws.String(after)
	}
	out, err := withRetry(ctx, p.opts, func() (*dynamodbstreams.GetShardIteratorOutput, error) {
		return p.b.streams.GetShardIterator(ctx, in)
	})
	if err != nil {
		return nil, fmt.Errorf("GetShardIterator failed for shard %s: %w", shardID, err)
	}
	return out.ShardIterator, nil
}

// poll reads one batch from every shard and returns the record count.
func (p *poller) poll(ctx context.Context) (int, error) {
	total := 0
	var errs []error
	for id, s := range p.shards {
		out, err := withRetry(ctx, p.opts, func() (*dynamodbstreams.GetRecordsOutput, error) {
			return p.b.streams.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{ShardIterator: s.iterator})
		})
		if err != nil {
			var expired *streamtypes.ExpiredIteratorException
			if stderrors.As(err, &expired) {
				if rerr := p.renew(ctx, s); rerr != nil {
					errs = append(errs, rerr)
				}
				continue
			}
			errs = append(errs, fmt.Errorf("GetRecords failed for shard %s: %w", id, err))
			continue
		}

		for _, rec := range out.Records {
			if rec.Dynamodb != nil && rec.Dynamodb.SequenceNumber != nil {
				s.lastSeq = *rec.Dynamodb.SequenceNumber
			}
			p.publish(rec)
		}
		total += len(out.Records)

		if out.NextShardIterator == nil {
			// closed shard fully read
			delete(p.shards, id)
			continue
		}
		s.iterator = out.NextShardIterator
	}
	return total, stderrors.Join(errs...)
}

// renew replaces an expired iterator, resuming after the last record read.
func (p *poller) renew(ctx context.Context, s *shard) error {
	typ := streamtypes.ShardIteratorTypeLatest
	if s.lastSeq != "" {
		typ = streamtypes.ShardIteratorTypeAfterSequenceNumber
	}
	it, err := p.iterator(ctx, s.id, typ, s.lastSeq)
	if err != nil {
		return err
	}
	s.iterator = it
	return nil
}

var operations = map[streamtypes.OperationType]datastore.Op{
	streamtypes.OperationTypeInsert: datastore.OpPut,
	streamtypes.OperationTypeModify: datastore.OpUpdate,
	streamtypes.OperationTypeRemove: datastore.OpDelete,
}

func (p *poller) publish(rec streamtypes.Record) {
	if rec.Dynamodb == nil {
		return
	}
	pk, ok := rec.Dynamodb.Keys["PK"].(*streamtypes.AttributeValueMemberS)
	if !ok {
		return
	}
	sk, ok := rec.Dynamodb.Keys["SK"].(*streamtypes.AttributeValueMemberS)
	if !ok {
		return
	}

	p.b.mu.Lock()
	collections := append([]string(nil), p.b.partitions[pk.Value]...)
	p.b.mu.Unlock()

	for _, collection := range collections {
		id, ok := layoutOf(collection).idFromSort(sk.Value)
		if !ok {
			continue
		}
		p.b.hub.Publish(datastore.ChangeEvent{
			Collection: collection,
			ID:         id,
			Op:         operations[rec.EventName],
		})
	}
}

// withRetry retries fn on throttling and server errors with a linear backoff.
func withRetry[T any](ctx context.Context, opts sm.StreamOptions, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return zero, err
		}
		if attempt < opts.MaxRetries {
			if err := sleep(ctx, time.Duration(attempt+1)*opts.RetryBackoff); err != nil {
				return zero, err
			}
		}
	}
	return zero, fmt.Errorf("failed after %d retries: %w", opts.MaxRetries, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ThrottlingException":                    true,
	"LimitExceededException":                 true,
}

// isRetryableError determines if a DynamoDB or DynamoDB Streams error is retryable
func isRetryableError(err error) bool {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) && retryableCodes[apiErr.ErrorCode()] {
		return true
	}

	// Check for AWS SDK retryable errors
	var retryable interface{ IsRetryable() bool }
	if stderrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}
