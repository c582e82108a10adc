package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

type MockSchemaClient struct {
	CreatedClass    *models.Class
	ExistingClass   *models.Class
	AddedProperties []*models.Property
	ExistsErr       error
	CheckedName     string
}

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	m.CheckedName = className
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	return m.ExistingClass != nil, nil
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	m.CreatedClass = class
	return nil
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return m.ExistingClass, nil
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	m.AddedProperties = append(m.AddedProperties, property)
	return nil
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	client := &MockSchemaClient{}
	require.NoError(t, EnsureSchema(context.Background(), client, ""))

	require.NotNil(t, client.CreatedClass)
	assert.Equal(t, DefaultClassName, client.CreatedClass.Class)
	assert.Equal(t, "none", client.CreatedClass.Vectorizer)

	expectedProps := map[string]string{
		"content":    "text",
		"url":        "string",
		"section":    "string",
		"chunkIndex": "int",
	}
	found := 0
	for _, prop := range client.CreatedClass.Properties {
		if expectedType, ok := expectedProps[prop.Name]; ok {
			found++
			assert.Equal(t, expectedType, prop.DataType[0], prop.Name)
		}
	}
	assert.Equal(t, len(expectedProps), found)
}

func TestEnsureSchema_CustomClassName(t *testing.T) {
	client := &MockSchemaClient{}
	require.NoError(t, EnsureSchema(context.Background(), client, "Docs"))
	assert.Equal(t, "Docs", client.CheckedName)
	assert.Equal(t, "Docs", client.CreatedClass.Class)
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	existingClass := &models.Class{
		Class: DefaultClassName,
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "url", DataType: []string{"string"}},
		},
	}

	client := &MockSchemaClient{ExistingClass: existingClass}
	require.NoError(t, EnsureSchema(context.Background(), client, DefaultClassName))

	assert.Nil(t, client.CreatedClass, "should not recreate an existing class")

	addedNames := make(map[string]bool)
	for _, p := range client.AddedProperties {
		addedNames[p.Name] = true
	}
	assert.True(t, addedNames["section"])
	assert.True(t, addedNames["offset"])
	assert.False(t, addedNames["content"], "should not re-add existing property")
}

func TestEnsureSchema_ExistsError(t *testing.T) {
	boom := errors.New("connection refused")
	client := &MockSchemaClient{ExistsErr: boom}
	err := EnsureSchema(context.Background(), client, "")
	assert.ErrorIs(t, err, boom)
}
