package export

import (
	"context"
	"fmt"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// Row 导出文件中的一行，一个数据点一行
type Row struct {
	DeviceID  string  `parquet:"name=device_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Domain    string  `parquet:"name=domain, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TSUTCISO  string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8"`
	TSMs      int64   `parquet:"name=ts_ms, type=INT64"`
	Value     float64 `parquet:"name=value, type=DOUBLE"`
	Calories  float64 `parquet:"name=kcal, type=DOUBLE"`
	DistanceM int64   `parquet:"name=distance_m, type=INT64"`
	EndMs     int64   `parquet:"name=end_ms, type=INT64"`
	Stage     string  `parquet:"name=stage, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

// Querier 导出所需的查询能力，*datastore.SQLStore 实现了它
type Querier interface {
	Query(ctx context.Context, deviceID string, d inter.Domain, from, to time.Time) ([]inter.MetricPoint, error)
}

// Collect 按数据域顺序读取 [from, to] 内的数据点
func Collect(ctx context.Context, q Querier, deviceID string, domains []inter.Domain, from, to time.Time) ([]Row, error) {
	var rows []Row
	for _, d := range domains {
		points, err := q.Query(ctx, deviceID, d, from, to)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", d, err)
		}
		for _, p := range points {
			rows = append(rows, rowOf(deviceID, p))
		}
	}
	return rows, nil
}

func rowOf(deviceID string, p inter.MetricPoint) Row {
	r := Row{
		DeviceID:  deviceID,
		Domain:    p.Domain.String(),
		TSUTCISO:  p.Timestamp.UTC().Format(time.RFC3339),
		TSMs:      p.Timestamp.UnixMilli(),
		Value:     p.Value,
		Calories:  p.Calories,
		DistanceM: int64(p.Distance),
		Stage:     p.Stage,
	}
	if p.End != nil {
		r.EndMs = p.End.UnixMilli()
	}
	return r
}

func write(fw source.ParquetFile, rows []Row) error {
	pw, err := writer.NewParquetWriter(fw, new(Row), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

// WriteFile 把行写入本地 parquet 文件
func WriteFile(path string, rows []Row) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(fw, rows); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

// Marshal 在内存中生成 parquet 文件
func Marshal(rows []Row) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := write(fw, rows); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// Unmarshal 读取 Marshal 或 WriteFile 生成的内容
func Unmarshal(data []byte) ([]Row, error) {
	fr := parquetbuffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(fr, new(Row), 4)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	rows := make([]Row, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}
