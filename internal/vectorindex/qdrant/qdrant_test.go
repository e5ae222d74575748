package qdrant

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"echodoc/internal/domain"
)

type mockPoints struct {
	upserted   *pb.UpsertPoints
	upsertErr  error
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	count      uint64
	// stored maps point UUIDs to the sequence already kept in Qdrant.
	stored map[string]int64
	getErr error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserted = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Get(_ context.Context, in *pb.GetPoints, _ ...grpc.CallOption) (*pb.GetResponse, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	resp := &pb.GetResponse{}
	for _, id := range in.GetIds() {
		seq, ok := m.stored[id.GetUuid()]
		if !ok {
			continue
		}
		resp.Result = append(resp.Result, &pb.RetrievedPoint{
			Id:      id,
			Payload: map[string]*pb.Value{payloadSeq: {Kind: &pb.Value_IntegerValue{IntegerValue: seq}}},
		})
	}
	return resp, nil
}

func (m *mockPoints) Count(context.Context, *pb.CountPoints, ...grpc.CallOption) (*pb.CountResponse, error) {
	return &pb.CountResponse{Result: &pb.CountResult{Count: m.count}}, nil
}

type mockCollections struct {
	existing []string
	created  *pb.CreateCollection
	listErr  error
}

func (m *mockCollections) List(context.Context, *pb.ListCollectionsRequest, ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	resp := &pb.ListCollectionsResponse{}
	for _, name := range m.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func scored(chunkID string, score float32, seq int64) *pb.ScoredPoint {
	return &pb.ScoredPoint{
		Score: score,
		Payload: map[string]*pb.Value{
			payloadChunkID:  {Kind: &pb.Value_StringValue{StringValue: chunkID}},
			payloadSeq:      {Kind: &pb.Value_IntegerValue{IntegerValue: seq}},
			domain.MetaText: {Kind: &pb.Value_StringValue{StringValue: "text " + chunkID}},
		},
	}
}

func TestInit_CreatesMissingCollection(t *testing.T) {
	cols := &mockCollections{existing: []string{"other"}}
	s := NewWithClients(&mockPoints{}, cols, "docs", 8)

	require.NoError(t, s.Init(context.Background()))
	require.NotNil(t, cols.created)
	params := cols.created.GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(8), params.GetSize())
	assert.Equal(t, pb.Distance_Cosine, params.GetDistance())
}

func TestInit_ExistingCollection(t *testing.T) {
	cols := &mockCollections{existing: []string{"docs"}}
	s := NewWithClients(&mockPoints{}, cols, "docs", 8)

	require.NoError(t, s.Init(context.Background()))
	assert.Nil(t, cols.created)
}

func TestInit_ListError(t *testing.T) {
	s := NewWithClients(&mockPoints{}, &mockCollections{listErr: errors.New("down")}, "docs", 8)
	assert.Error(t, s.Init(context.Background()))
}

func TestInsertBatch_BuildsPoints(t *testing.T) {
	pts := &mockPoints{}
	s := NewWithClients(pts, &mockCollections{}, "docs", 2)

	err := s.InsertBatch(context.Background(), []domain.Entry{
		{ChunkID: "d:0", Vector: []float32{1, 0}, Metadata: map[string]string{domain.MetaText: "hello"}},
		{ChunkID: "d:1", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
	require.Len(t, pts.upserted.GetPoints(), 2)

	p := pts.upserted.GetPoints()[0]
	assert.Equal(t, PointID("d:0"), p.GetId().GetUuid())
	assert.Equal(t, []float32{1, 0}, p.GetVectors().GetVector().GetData())
	assert.Equal(t, "hello", p.GetPayload()[domain.MetaText].GetStringValue())
	assert.Equal(t, "d:0", p.GetPayload()[payloadChunkID].GetStringValue())

	first := p.GetPayload()[payloadSeq].GetIntegerValue()
	second := pts.upserted.GetPoints()[1].GetPayload()[payloadSeq].GetIntegerValue()
	assert.Less(t, first, second)
}

func TestInsertBatch_ReplaceKeepsSequence(t *testing.T) {
	pts := &mockPoints{stored: map[string]int64{PointID("d:0"): 5}}
	s := NewWithClients(pts, &mockCollections{}, "docs", 2)

	err := s.InsertBatch(context.Background(), []domain.Entry{
		{ChunkID: "d:0", Vector: []float32{1, 0}},
		{ChunkID: "d:1", Vector: []float32{0, 1}},
		{ChunkID: "d:1", Vector: []float32{1, 1}},
	})
	require.NoError(t, err)
	points := pts.upserted.GetPoints()
	require.Len(t, points, 3)
	assert.Equal(t, int64(5), points[0].GetPayload()[payloadSeq].GetIntegerValue())
	assert.Greater(t, points[1].GetPayload()[payloadSeq].GetIntegerValue(), int64(5))
	assert.Equal(t, points[1].GetPayload()[payloadSeq].GetIntegerValue(),
		points[2].GetPayload()[payloadSeq].GetIntegerValue())
}

func TestInsertBatch_LookupErrorSendsNothing(t *testing.T) {
	pts := &mockPoints{getErr: errors.New("down")}
	s := NewWithClients(pts, &mockCollections{}, "docs", 2)

	err := s.InsertBatch(context.Background(), []domain.Entry{{ChunkID: "d:0", Vector: []float32{1, 0}}})
	assert.Error(t, err)
	assert.Nil(t, pts.upserted)
}

func TestInsertBatch_DimensionMismatchSendsNothing(t *testing.T) {
	pts := &mockPoints{}
	s := NewWithClients(pts, &mockCollections{}, "docs", 2)

	err := s.InsertBatch(context.Background(), []domain.Entry{
		{ChunkID: "d:0", Vector: []float32{1, 0}},
		{ChunkID: "d:1", Vector: []float32{1}},
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Nil(t, pts.upserted)
}

func TestPointID_Stable(t *testing.T) {
	assert.Equal(t, PointID("a:1"), PointID("a:1"))
	assert.NotEqual(t, PointID("a:1"), PointID("a:2"))
}

func TestSearch_OrdersTiesBySequence(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		scored("late", 0.5, 30),
		scored("best", 0.9, 40),
		scored("early", 0.5, 10),
	}}}
	s := NewWithClients(pts, &mockCollections{}, "docs", 2)

	results, err := s.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "best", results[0].ChunkID)
	assert.Equal(t, "early", results[1].ChunkID)
	assert.Equal(t, "late", results[2].ChunkID)
	assert.Equal(t, "text early", results[1].Text)
	assert.NotContains(t, results[1].Metadata, payloadSeq)
	assert.Equal(t, uint64(3), pts.searchReq.GetLimit())
}

func TestSearch_Empty(t *testing.T) {
	s := NewWithClients(&mockPoints{searchResp: &pb.SearchResponse{}}, &mockCollections{}, "docs", 2)
	_, err := s.Search(context.Background(), []float32{1, 0}, 3)
	assert.ErrorIs(t, err, domain.ErrEmptyIndex)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	s := NewWithClients(&mockPoints{}, &mockCollections{}, "docs", 2)
	_, err := s.Search(context.Background(), []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestLen(t *testing.T) {
	s := NewWithClients(&mockPoints{count: 7}, &mockCollections{}, "docs", 2)
	n, err := s.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{Addr: "localhost:6334", Collection: "docs"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
