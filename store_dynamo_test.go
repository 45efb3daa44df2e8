package rescache

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynStub struct {
	items    map[string]map[string]types.AttributeValue
	pageSize int
	scans    int
	batches  []int
	scanErr  error
}

func newDynStub() *dynStub { return &dynStub{items: map[string]map[string]types.AttributeValue{}} }

func (d *dynStub) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	key := in.Key["k"].(*types.AttributeValueMemberS).Value
	item, ok := d.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (d *dynStub) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := in.Item["k"].(*types.AttributeValueMemberS).Value
	d.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (d *dynStub) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	key := in.Key["k"].(*types.AttributeValueMemberS).Value
	delete(d.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (d *dynStub) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	for _, writes := range in.RequestItems {
		d.batches = append(d.batches, len(writes))
		for _, wr := range writes {
			if dr := wr.DeleteRequest; dr != nil {
				key := dr.Key["k"].(*types.AttributeValueMemberS).Value
				delete(d.items, key)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// Scan honours the begins_with filter and pages by sorted key.
func (d *dynStub) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	d.scans++
	if d.scanErr != nil {
		return nil, d.scanErr
	}
	prefix := ""
	if p, ok := in.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS); ok {
		prefix = p.Value
	}
	start := ""
	if k, ok := in.ExclusiveStartKey["k"].(*types.AttributeValueMemberS); ok {
		start = k.Value
	}
	keys := make([]string, 0, len(d.items))
	for k := range d.items {
		if strings.HasPrefix(k, prefix) && k > start {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	out := &dynamodb.ScanOutput{}
	for i, k := range keys {
		if d.pageSize > 0 && i == d.pageSize {
			out.LastEvaluatedKey = map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: keys[i-1]}}
			break
		}
		out.Items = append(out.Items, map[string]types.AttributeValue{
			"k":  d.items[k]["k"],
			"ea": d.items[k]["ea"],
		})
	}
	return out, nil
}

func (d *dynStub) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func (d *dynStub) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return nil, &types.ResourceNotFoundException{}
}

func newStubDynamoStore(t *testing.T, stub *dynStub) Store {
	t.Helper()
	store, err := newDynamoStore(context.Background(), StoreConfig{
		BaseConfig:   BaseConfig{Prefix: "p", DefaultTTL: time.Minute},
		DynamoClient: stub,
		DynamoTable:  "tbl",
	})
	if err != nil {
		t.Fatalf("store create failed: %v", err)
	}
	return store
}

func TestDynamoStoreBasicOperations(t *testing.T) {
	stub := newDynStub()
	store := newStubDynamoStore(t, stub)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(body) != "v" {
		t.Fatalf("get failed: ok=%v err=%v val=%s", ok, err, string(body))
	}
	if _, exists := stub.items["p:k"]; !exists {
		t.Fatalf("expected prefixed item key, have %v", stub.items)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected k deleted")
	}
}

func TestDynamoStoreExpiredItemIsMiss(t *testing.T) {
	stub := newDynStub()
	store := newStubDynamoStore(t, stub)
	ctx := context.Background()

	stub.items["p:old"] = map[string]types.AttributeValue{
		"k":  &types.AttributeValueMemberS{Value: "p:old"},
		"v":  &types.AttributeValueMemberB{Value: []byte("v")},
		"ea": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Add(-time.Second).UnixMilli(), 10)},
	}
	if _, ok, err := store.Get(ctx, "old"); err != nil || ok {
		t.Fatalf("expected expired miss, ok=%v err=%v", ok, err)
	}
	if _, exists := stub.items["p:old"]; exists {
		t.Fatalf("expected expired item removed")
	}
	keys, err := store.Keys(ctx, "")
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected no keys, got %v err=%v", keys, err)
	}
}

func TestDynamoStoreKeysPagesAndFlushBatches(t *testing.T) {
	stub := newDynStub()
	stub.pageSize = 2
	store := newStubDynamoStore(t, stub)
	ctx := context.Background()

	for _, k := range []string{"team/1", "team/2", "team/3", "user/1"} {
		if err := store.Set(ctx, k, []byte("v"), time.Minute); err != nil {
			t.Fatalf("set %s failed: %v", k, err)
		}
	}
	keys, err := store.Keys(ctx, "team/")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if want := []string{"team/1", "team/2", "team/3"}; !slices.Equal(keys, want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	if stub.scans < 2 {
		t.Fatalf("expected paged scans, got %d", stub.scans)
	}

	for i := 0; i < 30; i++ {
		if err := store.Set(ctx, "bulk/"+strconv.Itoa(i), []byte("v"), time.Minute); err != nil {
			t.Fatalf("set bulk failed: %v", err)
		}
	}
	stub.pageSize = 0
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if len(stub.items) != 0 {
		t.Fatalf("expected table empty, have %d items", len(stub.items))
	}
	for _, n := range stub.batches {
		if n > 25 {
			t.Fatalf("batch of %d exceeds dynamo limit", n)
		}
	}
}

func TestDynamoStoreScanError(t *testing.T) {
	stub := newDynStub()
	store := newStubDynamoStore(t, stub)
	stub.scanErr = errors.New("scan")
	if _, err := store.Keys(context.Background(), ""); err == nil {
		t.Fatalf("expected scan error")
	}
	if err := store.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush scan error")
	}
}
