package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/metrics"
	"ledger-sync-service/internal/repositories"
)

type CleanupService struct {
	store   repositories.Store
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
}

func NewCleanupService(store repositories.Store, m *metrics.Metrics, logger logrus.FieldLogger) *CleanupService {
	return &CleanupService{store: store, metrics: m, logger: logger}
}

// RemoveInactive deletes every customer whose file id is not in
// activeFileIDs, along with their records, payments and sales.
func (s *CleanupService) RemoveInactive(ctx context.Context, activeFileIDs []string) (int64, error) {
	ids := make([]string, 0, len(activeFileIDs))
	for _, id := range activeFileIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, ErrNoActiveFiles
	}

	var removed int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repositories.Repositories) error {
		var err error
		removed, err = repos.Customers.DeleteNotIn(ctx, ids)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to remove inactive customers: %w", err)
	}

	s.metrics.CustomersRemoved(removed)
	s.logger.WithFields(logrus.Fields{
		"activeFiles": len(ids),
		"removed":     removed,
	}).Info("inactive customers removed")
	return removed, nil
}
