package nlq

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
)

type GlueClient interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

// GlueCatalog describes a fixed list of tables of one Glue database.
type GlueCatalog struct {
	client   GlueClient
	database string
	tables   []string
}

func NewGlueCatalog(c GlueClient, database string, tables []string) (*GlueCatalog, error) {
	database = strings.TrimSpace(database)
	if database == "" {
		return nil, fmt.Errorf("missing glue database")
	}
	clean := make([]string, 0, len(tables))
	for _, t := range tables {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("missing glue tables")
	}
	return &GlueCatalog{client: c, database: database, tables: clean}, nil
}

func (g *GlueCatalog) Describe(ctx context.Context) (Schema, error) {
	var out Schema
	for _, t := range g.tables {
		cols, err := g.loadTable(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, cols...)
	}
	return out, nil
}

func (g *GlueCatalog) loadTable(ctx context.Context, table string) ([]ColumnInfo, error) {
	out, err := g.client.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(g.database),
		Name:         aws.String(table),
	})
	if err != nil {
		return nil, fmt.Errorf("glue GetTable %s.%s: %w", g.database, table, err)
	}

	ti := out.Table
	if ti == nil {
		return nil, fmt.Errorf("glue GetTable %s.%s: empty table", g.database, table)
	}
	name := aws.ToString(ti.Name)
	if name == "" {
		name = table
	}

	var cols []ColumnInfo
	if ti.StorageDescriptor != nil {
		for _, c := range ti.StorageDescriptor.Columns {
			cols = append(cols, glueColumn(name, c))
		}
	}
	// Make prompt stable across runs
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })

	// partition keys are queryable columns too
	parts := make([]ColumnInfo, 0, len(ti.PartitionKeys))
	for _, p := range ti.PartitionKeys {
		parts = append(parts, glueColumn(name, p))
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })

	return append(cols, parts...), nil
}

func NormalizeGlueType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func glueColumn(table string, c gluetypes.Column) ColumnInfo {
	return ColumnInfo{Table: table, Name: aws.ToString(c.Name), Type: NormalizeGlueType(aws.ToString(c.Type))}
}
