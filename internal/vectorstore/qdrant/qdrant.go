// Package qdrant stores chunk vectors in Qdrant, one collection per vector space.
package qdrant

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/perspectives-ai/rag/internal/domain"
	"github.com/perspectives-ai/rag/internal/vectorstore"
)

// Index implements vectorstore.Index on Qdrant's gRPC API.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	prefix      string

	mu    sync.Mutex
	ready map[string]bool
}

// New connects to Qdrant. Collections are created lazily per space.
func New(ctx context.Context, host string, port int, prefix string) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	if prefix == "" {
		prefix = "chunks"
	}
	return &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		prefix:      prefix,
		ready:       make(map[string]bool),
	}, nil
}

// CollectionName maps a vector space to its collection
func CollectionName(prefix string, space domain.VectorSpace) string {
	model := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, space.Model)
	return fmt.Sprintf("%s_%s_%d", prefix, model, space.Dimension)
}

// parseCollection recovers the space from a collection name created by CollectionName
func parseCollection(prefix, name string) (domain.VectorSpace, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return domain.VectorSpace{}, false
	}
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return domain.VectorSpace{}, false
	}
	dim, err := strconv.Atoi(rest[i+1:])
	if err != nil || dim <= 0 {
		return domain.VectorSpace{}, false
	}
	return domain.VectorSpace{Model: rest[:i], Dimension: dim}, true
}

func (x *Index) exists(ctx context.Context, name string) (bool, error) {
	x.mu.Lock()
	ok := x.ready[name]
	x.mu.Unlock()
	if ok {
		return true, nil
	}
	resp, err := x.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, fmt.Errorf("qdrant collection exists: %w", err)
	}
	if resp.GetResult().GetExists() {
		x.mu.Lock()
		x.ready[name] = true
		x.mu.Unlock()
		return true, nil
	}
	return false, nil
}

func (x *Index) ensureCollection(ctx context.Context, space domain.VectorSpace) (string, error) {
	name := CollectionName(x.prefix, space)
	ok, err := x.exists(ctx, name)
	if err != nil {
		return "", err
	}
	if ok {
		return name, nil
	}

	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(space.Dimension), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("qdrant create collection %s: %w", name, err)
	}

	wait := true
	_, err = x.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: name,
		Wait:           &wait,
		FieldName:      "document_id",
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return "", fmt.Errorf("qdrant index document_id on %s: %w", name, err)
	}

	x.mu.Lock()
	x.ready[name] = true
	x.mu.Unlock()
	return name, nil
}

func (x *Index) Upsert(ctx context.Context, space domain.VectorSpace, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Vector) != space.Dimension {
			return fmt.Errorf("chunk %s: vector has %d dimensions, space %s", r.ChunkID, len(r.Vector), space)
		}
	}
	name, err := x.ensureCollection(ctx, space)
	if err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = toPoint(r, space)
	}

	wait := true
	_, err = x.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// ReplaceDocument writes the new points first and then prunes the document's
// points that are not among them, so the document stays searchable throughout.
func (x *Index) ReplaceDocument(ctx context.Context, docID uuid.UUID, space domain.VectorSpace, records []vectorstore.Record) error {
	name, err := x.ensureCollection(ctx, space)
	if err != nil {
		return err
	}
	if err := x.Upsert(ctx, space, records); err != nil {
		return err
	}
	keep := make([]uuid.UUID, len(records))
	for i, r := range records {
		keep[i] = r.ChunkID
	}
	return x.deleteDocumentIn(ctx, name, docID, keep)
}

// DeleteVectors drops the document's points from every collection
func (x *Index) DeleteVectors(ctx context.Context, docID uuid.UUID) error {
	names, err := x.collectionNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := x.deleteDocumentIn(ctx, name, docID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) deleteDocumentIn(ctx context.Context, collection string, docID uuid.UUID, keep []uuid.UUID) error {
	wait := true
	_, err := x.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Filter{
			Filter: documentFilter(docID, keep...),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete document %s from %s: %w", docID, collection, err)
	}
	return nil
}

func (x *Index) Search(ctx context.Context, q vectorstore.Query) ([]domain.RetrievalResult, error) {
	if !q.Searchable() {
		return []domain.RetrievalResult{}, nil
	}
	name := CollectionName(x.prefix, q.Space)
	ok, err := x.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.RetrievalResult{}, nil
	}

	threshold := float32(q.Floor)
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: name,
		Vector:         q.Vector,
		Limit:          uint64(q.TopK),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	out := make([]domain.RetrievalResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		r, err := fromScored(pt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	vectorstore.Sort(out)
	return out, nil
}

func (x *Index) Spaces(ctx context.Context) ([]vectorstore.SpaceStats, error) {
	names, err := x.collectionNames(ctx)
	if err != nil {
		return nil, err
	}
	var out []vectorstore.SpaceStats
	for _, name := range names {
		space, _ := parseCollection(x.prefix, name)
		info, err := x.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
		if err != nil {
			return nil, fmt.Errorf("qdrant collection info %s: %w", name, err)
		}
		out = append(out, vectorstore.SpaceStats{Space: space, Vectors: int(info.GetResult().GetPointsCount())})
	}
	return out, nil
}

// collectionNames lists the collections this index owns
func (x *Index) collectionNames(ctx context.Context) ([]string, error) {
	resp, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("qdrant list collections: %w", err)
	}
	var names []string
	for _, c := range resp.GetCollections() {
		if _, ok := parseCollection(x.prefix, c.GetName()); ok {
			names = append(names, c.GetName())
		}
	}
	return names, nil
}

func (x *Index) Close() error {
	return x.conn.Close()
}

func toPoint(r vectorstore.Record, space domain.VectorSpace) *pb.PointStruct {
	str := func(s string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.ChunkID.String()}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Vector}}},
		Payload: map[string]*pb.Value{
			"chunk_id":    str(r.ChunkID.String()),
			"document_id": str(r.DocumentID.String()),
			"title":       str(r.Title),
			"filename":    str(r.Filename),
			"text":        str(r.Text),
			"model":       str(space.Model),
			"page":        {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.Page)}},
		},
	}
}

func fromScored(pt *pb.ScoredPoint) (domain.RetrievalResult, error) {
	p := pt.GetPayload()
	chunkID, err := uuid.Parse(pt.GetId().GetUuid())
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("qdrant point id: %w", err)
	}
	docID, err := uuid.Parse(p["document_id"].GetStringValue())
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("qdrant point %s document_id: %w", chunkID, err)
	}
	return domain.RetrievalResult{
		ChunkID:    chunkID,
		DocumentID: docID,
		Title:      p["title"].GetStringValue(),
		Filename:   p["filename"].GetStringValue(),
		Page:       int(p["page"].GetIntegerValue()),
		ChunkText:  p["text"].GetStringValue(),
		Similarity: float64(pt.GetScore()),
	}, nil
}

// documentFilter matches the document's points except those in keep
func documentFilter(docID uuid.UUID, keep ...uuid.UUID) *pb.Filter {
	f := &pb.Filter{Must: []*pb.Condition{{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   "document_id",
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: docID.String()}},
		}},
	}}}
	if len(keep) == 0 {
		return f
	}
	ids := make([]*pb.PointId, len(keep))
	for i, id := range keep {
		ids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id.String()}}
	}
	f.MustNot = []*pb.Condition{{
		ConditionOneOf: &pb.Condition_HasId{HasId: &pb.HasIdCondition{HasId: ids}},
	}}
	return f
}
