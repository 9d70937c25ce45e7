package investigation

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lupa/internal/model"
)

func finishedResult() *model.InvestigationResult {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(2 * time.Second)
	return &model.InvestigationResult{
		ID:     "4f1c9a8e-0c1b-4bb5-9f55-6f2c1d9b7e10",
		Query:  supplierQuery,
		Status: model.InvestigationCompleted,
		Intent: model.IntentSupplierInvestigation,
		StageResults: []model.StageResult{
			{Name: "contract_search", Status: model.StagePartialSuccess, SourcesUsed: []string{"pncp"}},
			{Name: "company_lookup", Status: model.StageSuccess, SourcesUsed: []string{"receita"}},
			{Name: "anomaly_analysis", Status: model.StageSuccess},
		},
		Entities: []model.Entity{
			{ID: "company:12345678000190", Type: model.EntityCompany, Name: "Alfa"},
			{ID: "agency:ministerio-da-saude", Type: model.EntityAgency, Name: "Ministério da Saúde"},
		},
		Relationships: []model.EntityRelationship{
			{SourceID: "agency:ministerio-da-saude", TargetID: "contract:001-2024", Type: model.RelIssuedContract},
		},
		SourcesUsed: []string{"pncp", "receita"},
		Confidence:  0.81,
		StartedAt:   started,
		EndedAt:     &ended,
		Elapsed:     ended.Sub(started),
	}
}

func TestFileSink_RoundTrip(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	in := finishedResult()

	require.NoError(t, sink.Save(context.Background(), in))
	require.FileExists(t, sink.Path(in.ID))

	out, err := sink.Load(in.ID)
	require.NoError(t, err)

	var stages []string
	for _, st := range out.StageResults {
		stages = append(stages, st.Name)
	}
	assert.Equal(t, []string{"contract_search", "company_lookup", "anomaly_analysis"}, stages, "stage order is the run order")
	assert.Equal(t, in.Entities[0].ID, out.Entities[0].ID)
	assert.Equal(t, in.Entities[1].ID, out.Entities[1].ID)
	assert.Equal(t, in.Relationships[0].SourceID, out.Relationships[0].SourceID)
	assert.Equal(t, in.Relationships[0].TargetID, out.Relationships[0].TargetID)
	assert.Equal(t, in.SourcesUsed, out.SourcesUsed)
	assert.True(t, in.StartedAt.Equal(out.StartedAt))
	assert.Equal(t, in.Status, out.Status)
}

func TestFileSink_OverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)
	result := finishedResult()

	require.NoError(t, sink.Save(context.Background(), result))
	result.Status = model.InvestigationFailed
	result.Error = "boom"
	require.NoError(t, sink.Save(context.Background(), result))

	out, err := sink.Load(result.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvestigationFailed, out.Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSink_LoadMissing(t *testing.T) {
	_, err := NewFileSink(t.TempDir()).Load("nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Sink_Save(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
	}{
		{prefix: "", key: "investigations/4f1c9a8e-0c1b-4bb5-9f55-6f2c1d9b7e10.json"},
		{prefix: "lupa/prod", key: "lupa/prod/investigations/4f1c9a8e-0c1b-4bb5-9f55-6f2c1d9b7e10.json"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			putter := &fakePutter{}
			sink := NewS3Sink(putter, "evidence", tt.prefix)

			require.NoError(t, sink.Save(context.Background(), finishedResult()))
			assert.Equal(t, "evidence", aws.ToString(putter.input.Bucket))
			assert.Equal(t, tt.key, aws.ToString(putter.input.Key))
			assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))
			assert.Contains(t, string(putter.body), `"stage_name": "contract_search"`)
		})
	}
}

func TestS3Sink_SaveError(t *testing.T) {
	sink := NewS3Sink(&fakePutter{err: errors.New("access denied")}, "evidence", "")
	err := sink.Save(context.Background(), finishedResult())
	assert.ErrorContains(t, err, "access denied")
}

func TestMultiSink_ContinuesPastFailures(t *testing.T) {
	first := &recordingSink{err: errors.New("first down")}
	second := &recordingSink{}
	file := NewFileSink(t.TempDir())
	result := finishedResult()

	err := MultiSink{first, second, file}.Save(context.Background(), result)

	assert.ErrorContains(t, err, "first down")
	assert.Len(t, second.saved(), 1)
	assert.FileExists(t, file.Path(result.ID))
}
