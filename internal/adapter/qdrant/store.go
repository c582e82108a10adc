// Package qdrant stores documentation chunks in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"

	"opensim-assistant/internal/vector"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

var _ vector.Index = (*Store)(nil)

type Store struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
	conn        *grpc.ClientConn
}

// Dial connects to addr ("host:6334") without transport security.
func Dial(addr, collection string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("could not connect to Qdrant: %w", err)
	}
	s := New(qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn), collection)
	s.conn = conn
	return s, nil
}

func New(points qdrant.PointsClient, collections qdrant.CollectionsClient, collection string) *Store {
	if collection == "" {
		collection = vector.DefaultClassName
	}
	return &Store{points: points, collections: collections, collection: collection}
}

func (s *Store) collectionExists(ctx context.Context) (bool, error) {
	resp, err := s.collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{
		CollectionName: s.collection,
	})
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	return resp.GetResult().GetExists(), nil
}

// Ping checks the server answers. Used by bootstrap retries.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.collectionExists(ctx)
	return err
}

// ensureCollection creates the collection sized for dims on first write.
func (s *Store) ensureCollection(ctx context.Context, dims int) error {
	exists, err := s.collectionExists(ctx)
	if err != nil || exists {
		return err
	}
	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	dims, err := vector.ValidateBatch(records, 0)
	if err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, dims); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: uuid.NewString()}},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: r.Vector}}},
			Payload: toPayload(r),
		})
	}

	_, err = s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           proto.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points to Qdrant: %w", err)
	}
	return nil
}

func toPayload(r vector.Record) map[string]*qdrant.Value {
	str := func(v string) *qdrant.Value {
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	num := func(v int) *qdrant.Value {
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
	}
	return map[string]*qdrant.Value{
		"content":     str(r.Text),
		"url":         str(r.Meta.URL),
		"title":       str(r.Meta.Title),
		"section":     str(r.Meta.Section),
		"type":        str(r.Meta.Type),
		"chunk_index": num(r.Meta.ChunkIndex),
		"offset":      num(r.Meta.Offset),
	}
}

func (s *Store) Query(ctx context.Context, vec []float32, k int) ([]vector.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	exists, err := s.collectionExists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	res, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(k),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points in Qdrant: %w", err)
	}

	hits := make([]vector.Hit, 0, len(res.GetResult()))
	for _, p := range res.GetResult() {
		payload := p.GetPayload()
		hit := vector.Hit{
			Record: vector.Record{
				Text: payload["content"].GetStringValue(),
				Meta: vector.Meta{
					URL:        payload["url"].GetStringValue(),
					Title:      payload["title"].GetStringValue(),
					Section:    payload["section"].GetStringValue(),
					Type:       payload["type"].GetStringValue(),
					ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
					Offset:     int(payload["offset"].GetIntegerValue()),
				},
			},
			Score: p.GetScore(),
		}
		if id, ok := p.GetId().GetPointIdOptions().(*qdrant.PointId_Uuid); ok {
			hit.ID = id.Uuid
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	exists, err := s.collectionExists(ctx)
	if err != nil || !exists {
		return 0, err
	}
	resp, err := s.points.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          proto.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *Store) Exists(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}

func (s *Store) Reset(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil || !exists {
		return err
	}
	if _, err := s.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: s.collection}); err != nil {
		return fmt.Errorf("delete collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
