package pipeline_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/derickschaefer/lifeos/internal/model"
	"github.com/derickschaefer/lifeos/internal/pipeline"
	"github.com/derickschaefer/lifeos/internal/util"
)

func benchRecords(n int) []model.MetricRecord {
	start, _ := util.ParseDate("2024-01-01")
	out := make([]model.MetricRecord, n)
	for i := range out {
		out[i] = model.MetricRecord{
			Date:     start.AddDate(0, 0, i),
			Type:     model.TypeSleep,
			Value:    6 + float64(i%4)/2,
			Source:   "oura",
			Metadata: map[string]float64{model.MetaDeepSleepHours: 1.2},
		}
	}
	return out
}

func BenchmarkWriteRecords(b *testing.B) {
	records := benchRecords(365)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := pipeline.WriteRecords(io.Discard, records); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkReadInput(b *testing.B) {
	var buf bytes.Buffer
	if err := pipeline.WriteRecords(&buf, benchRecords(365)); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		in, err := pipeline.ReadInput(bytes.NewReader(data))
		if err != nil {
			b.Fatal(err)
		}
		if len(in.Records) != 365 {
			b.Fatalf("read %d records", len(in.Records))
		}
	}
}
