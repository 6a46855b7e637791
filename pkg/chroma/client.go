package chroma

import (
	"context"
	"fmt"
	"log"
	"os"

	"cochat-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

const (
	collectionName = "messages"
	maxDocumentLen = 10000
)

// ChromaClient indexes accepted messages for semantic search and embeds
// free text (user preference profiles) with the same model.
type ChromaClient struct {
	client     chroma.Client
	embedFunc  *gemini.GeminiEmbeddingFunction
	collection chroma.Collection
}

func NewChromaClient(cfg *config.Config) (*ChromaClient, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}
	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	opts := []chroma.ClientOption{
		chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
		chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
	}
	switch {
	case cfg.ChromaDatabase != "" && cfg.ChromaTenant != "":
		opts = append(opts, chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant))
	case cfg.ChromaTenant != "":
		opts = append(opts, chroma.WithTenant(cfg.ChromaTenant))
	}

	client, err := chroma.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		context.Background(),
		collectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("[Chroma] using collection %q", collectionName)
	return &ChromaClient{client: client, embedFunc: embedFunc, collection: collection}, nil
}

// UpsertMessage indexes one message under its internal ID.
func (c *ChromaClient) UpsertMessage(ctx context.Context, messageID, userID, provider, category, subject, content string) error {
	text := content
	if subject != "" {
		text = fmt.Sprintf("Subject: %s\n\n%s", subject, content)
	}
	if len(text) > maxDocumentLen {
		text = text[:maxDocumentLen]
	}

	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"user_id":    userID,
		"message_id": messageID,
		"provider":   provider,
		"category":   category,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	if err := c.collection.Upsert(ctx,
		chroma.WithIDs(chroma.DocumentID(messageID)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	); err != nil {
		return fmt.Errorf("failed to upsert message embedding: %w", err)
	}
	return nil
}

// SemanticSearch returns message IDs ordered by similarity, scoped to one user.
func (c *ChromaClient) SemanticSearch(ctx context.Context, userID, query string, limit int) ([]string, []float64, error) {
	results, err := c.collection.Query(ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(chroma.EqString("user_id", userID)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query collection: %w", err)
	}
	if results == nil || results.CountGroups() == 0 {
		return []string{}, []float64{}, nil
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return []string{}, []float64{}, nil
	}

	ids := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		ids = append(ids, string(id))
	}

	distances := []float64{}
	if groups := results.GetDistancesGroups(); len(groups) > 0 {
		for _, d := range groups[0] {
			distances = append(distances, float64(d))
		}
	}
	return ids, distances, nil
}

func (c *ChromaClient) DeleteMessage(ctx context.Context, messageID string) error {
	if err := c.collection.Delete(ctx, chroma.WithIDsDelete(chroma.DocumentID(messageID))); err != nil {
		return fmt.Errorf("failed to delete message embedding: %w", err)
	}
	return nil
}

// Embed turns free text into a vector with the collection's embedding model.
func (c *ChromaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := c.embedFunc.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	return emb.ContentAsFloat32(), nil
}
