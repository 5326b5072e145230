package etl

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"retailqa/internal/logging"
	"retailqa/internal/nlq"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Invalidator drops cached schema descriptions.
type Invalidator interface {
	Invalidate()
}

type RepairResult struct {
	Ok       bool     `json:"ok"`
	Repaired []string `json:"repaired,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// PartitionRepairer registers newly landed S3 partitions with the catalog so
// the question pipeline sees fresh data. It talks to the raw datastore since
// MSCK is DDL and would be rejected by the read-only guard.
type PartitionRepairer struct {
	store   nlq.Datastore
	catalog Invalidator
	log     *slog.Logger
}

func NewPartitionRepairer(store nlq.Datastore, catalog Invalidator, log *slog.Logger) *PartitionRepairer {
	if log == nil {
		log = logging.Nop()
	}
	return &PartitionRepairer{store: store, catalog: catalog, log: log}
}

func (r *PartitionRepairer) Repair(ctx context.Context, tables []string) (RepairResult, error) {
	if len(tables) == 0 {
		return RepairResult{}, fmt.Errorf("no tables to repair")
	}
	var res RepairResult
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if !tableName.MatchString(t) {
			return res, fmt.Errorf("invalid table name %q", t)
		}
		if _, err := r.store.Run(ctx, fmt.Sprintf("MSCK REPAIR TABLE %s", t)); err != nil {
			r.log.Error("repair failed", "table", t, "error", err)
			res.Failed = append(res.Failed, t)
			continue
		}
		r.log.Info("repair succeeded", "table", t)
		res.Repaired = append(res.Repaired, t)
	}

	if len(res.Repaired) > 0 && r.catalog != nil {
		r.catalog.Invalidate()
	}
	res.Ok = len(res.Failed) == 0
	if !res.Ok {
		return res, fmt.Errorf("repair failed for %s", strings.Join(res.Failed, ", "))
	}
	return res, nil
}
