// Package qdrant is a domain.VectorIndex backed by a Qdrant collection over gRPC.
package qdrant

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"echodoc/internal/domain"
)

const (
	payloadChunkID = "chunk_id"
	payloadSeq     = "seq"
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

type Config struct {
	Addr       string
	APIKey     string
	Collection string
	Dimension  int
}

// Storage keeps one cosine collection in Qdrant. Every point carries an
// insertion sequence in its payload; a replaced chunk keeps its original
// sequence, so equal scores order as in the in-memory index. Ties are only
// reordered among the k points Qdrant returns: when more than k points share
// the k-th score, which of them Qdrant includes is its own choice.
type Storage struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	dimension   int
	apiKey      string
	seq         atomic.Int64
}

// New dials Qdrant. The collection is not touched until Init.
func New(cfg Config) (*Storage, error) {
	if cfg.Collection == "" || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: qdrant needs a collection and a positive dimension", domain.ErrInvalidConfig)
	}
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", cfg.Addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg.Collection, cfg.Dimension)
	s.conn = conn
	s.apiKey = cfg.APIKey
	return s, nil
}

// NewWithClients builds a Storage around existing gRPC clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, dimension int) *Storage {
	s := &Storage{
		points:      points,
		collections: collections,
		collection:  collection,
		dimension:   dimension,
	}
	s.seq.Store(time.Now().UnixNano())
	return s
}

func (s *Storage) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Storage) Dimension() int { return s.dimension }

// Init creates the collection if it does not exist yet.
func (s *Storage) Init(ctx context.Context) error {
	ctx = s.withKey(ctx)
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *Storage) Insert(ctx context.Context, e domain.Entry) error {
	return s.InsertBatch(ctx, []domain.Entry{e})
}

// InsertBatch upserts all entries in one request. Point IDs are derived from
// chunk IDs so re-inserting a chunk overwrites it in place.
func (s *Storage) InsertBatch(ctx context.Context, batch []domain.Entry) error {
	if len(batch) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, len(batch))
	for i, e := range batch {
		if e.ChunkID == "" {
			return fmt.Errorf("qdrant: entry %d has no chunk id", i)
		}
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("qdrant: insert %s: %w: got %d, want %d",
				e.ChunkID, domain.ErrDimensionMismatch, len(e.Vector), s.dimension)
		}
		ids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(e.ChunkID)}}
	}
	seqs, err := s.existingSeqs(ctx, ids)
	if err != nil {
		return err
	}
	points := make([]*pb.PointStruct, len(batch))
	for i, e := range batch {
		id := ids[i].GetUuid()
		seq, ok := seqs[id]
		if !ok {
			seq = s.seq.Add(1)
			seqs[id] = seq
		}
		points[i] = &pb.PointStruct{
			Id: ids[i],
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}},
			},
			Payload: toPayload(e, seq),
		}
	}
	wait := true
	_, err = s.points.Upsert(s.withKey(ctx), &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
	}
	return nil
}

// existingSeqs returns the stored sequence of every point in ids that exists.
func (s *Storage) existingSeqs(ctx context.Context, ids []*pb.PointId) (map[string]int64, error) {
	resp, err := s.points.Get(s.withKey(ctx), &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            ids,
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Include{
			Include: &pb.PayloadIncludeSelector{Fields: []string{payloadSeq}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: get %d points: %w", len(ids), err)
	}
	seqs := make(map[string]int64, len(ids))
	for _, p := range resp.GetResult() {
		if v, ok := p.GetPayload()[payloadSeq]; ok {
			seqs[p.GetId().GetUuid()] = v.GetIntegerValue()
		}
	}
	return seqs, nil
}

func (s *Storage) Search(ctx context.Context, query []float32, k int) ([]domain.RetrievalResult, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("qdrant: search: %w: got %d, want %d",
			domain.ErrDimensionMismatch, len(query), s.dimension)
	}
	if k <= 0 {
		return []domain.RetrievalResult{}, nil
	}
	resp, err := s.points.Search(s.withKey(ctx), &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	if len(resp.GetResult()) == 0 {
		return nil, domain.ErrEmptyIndex
	}
	return fromScored(resp.GetResult()), nil
}

func (s *Storage) Len(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(s.withKey(ctx), &pb.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *Storage) withKey(ctx context.Context) context.Context {
	if s.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
}

// PointID maps a chunk ID to the stable UUID used as its Qdrant point ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("echodoc:"+chunkID)).String()
}

func toPayload(e domain.Entry, seq int64) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	payload[payloadChunkID] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: e.ChunkID}}
	payload[payloadSeq] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: seq}}
	return payload
}

// fromScored converts search hits, reordering equal scores by insertion sequence.
func fromScored(points []*pb.ScoredPoint) []domain.RetrievalResult {
	type hit struct {
		result domain.RetrievalResult
		seq    int64
	}
	hits := make([]hit, len(points))
	for i, p := range points {
		meta := make(map[string]string, len(p.GetPayload()))
		var h hit
		for k, v := range p.GetPayload() {
			switch k {
			case payloadChunkID:
				h.result.ChunkID = v.GetStringValue()
			case payloadSeq:
				h.seq = v.GetIntegerValue()
			default:
				meta[k] = v.GetStringValue()
			}
		}
		h.result.Score = float64(p.GetScore())
		h.result.Text = meta[domain.MetaText]
		h.result.Metadata = meta
		hits[i] = h
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.result.Score, a.result.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]domain.RetrievalResult, len(hits))
	for i, h := range hits {
		out[i] = h.result
	}
	return out
}
