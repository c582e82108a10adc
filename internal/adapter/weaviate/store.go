package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"opensim-assistant/internal/vector"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

var _ vector.Index = (*Store)(nil)

type Store struct {
	client *weaviate.Client
	schema schemaAPI
	class  string
}

func NewStore(client *weaviate.Client, className string) *Store {
	if className == "" {
		className = vector.DefaultClassName
	}
	return &Store{
		client: client,
		schema: schemaAPI{client: client},
		class:  className,
	}
}

func (s *Store) ClassName() string { return s.class }

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, s.schema, s.class)
}

func (s *Store) Add(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := vector.ValidateBatch(records, 0); err != nil {
		return err
	}

	objs := make([]*models.Object, 0, len(records))
	for _, r := range records {
		objs = append(objs, &models.Object{
			Class: s.class,
			Properties: map[string]interface{}{
				"content":    r.Text,
				"url":        r.Meta.URL,
				"title":      r.Meta.Title,
				"section":    r.Meta.Section,
				"type":       r.Meta.Type,
				"chunkIndex": r.Meta.ChunkIndex,
				"offset":     r.Meta.Offset,
			},
			Vector: r.Vector,
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}
	for i, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch insert object %d: %s", i, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vec []float32, k int) ([]vector.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "url"},
		{Name: "title"},
		{Name: "section"},
		{Name: "type"},
		{Name: "chunkIndex"},
		{Name: "offset"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	var hits []vector.Hit
	data, _ := res.Data["Get"].(map[string]interface{})
	objects, _ := data[s.class].([]interface{})
	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		hit := vector.Hit{}
		hit.Text, _ = props["content"].(string)
		hit.Meta.URL, _ = props["url"].(string)
		hit.Meta.Title, _ = props["title"].(string)
		hit.Meta.Section, _ = props["section"].(string)
		hit.Meta.Type, _ = props["type"].(string)
		if idx, ok := props["chunkIndex"].(float64); ok {
			hit.Meta.ChunkIndex = int(idx)
		}
		if off, ok := props["offset"].(float64); ok {
			hit.Meta.Offset = int(off)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			hit.ID, _ = additional["id"].(string)
			hit.Score = float32(1 - parseFloat(additional["distance"]))
		}
		hits = append(hits, hit)
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// parseFloat accepts both JSON numbers and numeric strings.
func parseFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func (s *Store) Count(ctx context.Context) (int, error) {
	exists, err := s.schema.ClassExists(ctx, s.class)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	agg, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := agg[s.class].([]interface{})
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	return int(parseFloat(meta["count"])), nil
}

// Exists is true when the class holds at least one object. The class itself
// is created at bootstrap so its presence alone says nothing.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}

func (s *Store) Reset(ctx context.Context) error {
	exists, err := s.schema.ClassExists(ctx, s.class)
	if err != nil {
		return err
	}
	if exists {
		if err := s.schema.DeleteClass(ctx, s.class); err != nil {
			return fmt.Errorf("delete class %s: %w", s.class, err)
		}
	}
	return s.EnsureSchema(ctx)
}

func (s *Store) Close() error { return nil }
