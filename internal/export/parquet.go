package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type field struct {
	name string
	kind string // INT64, DOUBLE, BOOLEAN, UTF8
}

var nonField = regexp.MustCompile(`[^a-z0-9_]+`)

// WriteParquet writes a result set to a local Parquet file. Column types are
// inferred from the first non-null value of each column; all fields are optional.
func WriteParquet(path string, columns []string, rows []map[string]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("no columns to export")
	}
	fields := inferFields(columns, rows)

	schema, err := jsonSchema(fields)
	if err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("parquet file writer: %w", err)
	}
	pw, err := writer.NewJSONWriter(schema, fw, 1)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, r := range rows {
		rec := make(map[string]any, len(fields))
		for ci, c := range columns {
			rec[fields[ci].name] = coerce(r[c], fields[ci].kind)
		}
		b, err := json.Marshal(rec)
		if err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("parquet encode row %d: %w", i, err)
		}
		if err := pw.Write(string(b)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("parquet write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}
	return nil
}

// UploadS3 copies a local file to s3://bucket/key.
func UploadS3(ctx context.Context, c S3Client, bucket, key, path string) error {
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(key) == "" {
		return fmt.Errorf("missing s3 bucket or key")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read parquet: %w", err)
	}
	_, err = c.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("s3 putobject failed: %w", err)
	}
	return nil
}

func inferFields(columns []string, rows []map[string]any) []field {
	used := map[string]int{}
	out := make([]field, len(columns))
	for i, c := range columns {
		name := strings.Trim(nonField.ReplaceAllString(strings.ToLower(c), "_"), "_")
		if name == "" {
			name = fmt.Sprintf("col%d", i)
		}
		if used[name] > 0 {
			base := name
			for n := used[base]; used[name] > 0; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
				used[base] = n + 1
			}
		}
		used[name]++

		out[i] = field{name: name, kind: kindOf(firstValue(rows, c))}
	}
	return out
}

func firstValue(rows []map[string]any, col string) any {
	for _, r := range rows {
		if v := r[col]; v != nil {
			return v
		}
	}
	return nil
}

func kindOf(v any) string {
	switch v.(type) {
	case int64, uint64, int:
		return "INT64"
	case float64:
		return "DOUBLE"
	case bool:
		return "BOOLEAN"
	default:
		return "UTF8"
	}
}

func jsonSchema(fields []field) (string, error) {
	type tagged struct {
		Tag string `json:"Tag"`
	}
	root := struct {
		Tag    string   `json:"Tag"`
		Fields []tagged `json:"Fields"`
	}{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}

	for _, f := range fields {
		var t string
		switch f.kind {
		case "INT64":
			t = fmt.Sprintf("name=%s, type=INT64, repetitiontype=OPTIONAL", f.name)
		case "DOUBLE":
			t = fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", f.name)
		case "BOOLEAN":
			t = fmt.Sprintf("name=%s, type=BOOLEAN, repetitiontype=OPTIONAL", f.name)
		default:
			t = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", f.name)
		}
		root.Fields = append(root.Fields, tagged{Tag: t})
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("parquet schema: %w", err)
	}
	return string(b), nil
}

func coerce(v any, kind string) any {
	if v == nil {
		return nil
	}
	switch kind {
	case "INT64":
		switch n := v.(type) {
		case int64:
			return n
		case uint64:
			return int64(n)
		case int:
			return int64(n)
		case float64:
			return int64(n)
		}
	case "DOUBLE":
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	case "BOOLEAN":
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fmt.Sprintf("%v", v)
}
