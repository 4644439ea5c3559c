package storage

import (
	"context"
	"errors"
	"sort"
	"strings"

	logx "localnotify/pkg/logx"
)

// Store is the persistence API used by the notification center.
type Store interface {
	PutPending(ctx context.Context, r Record) error
	DeletePending(ctx context.Context, id string) error
	ListPending(ctx context.Context) ([]Record, error)

	// MarkDelivered moves r from the pending set to the delivered set.
	MarkDelivered(ctx context.Context, r Record) error
	DeleteDelivered(ctx context.Context, ids ...string) error
	ListDelivered(ctx context.Context) ([]Record, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" || driver == "memory" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func sortPending(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Seq < rs[j].Seq })
}

func sortDelivered(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].DeliveredAt.Equal(rs[j].DeliveredAt) {
			return rs[i].DeliveredAt.Before(rs[j].DeliveredAt)
		}
		return rs[i].Seq < rs[j].Seq
	})
}
