package services

import (
	"context"
	"time"

	"github.com/dappnode/staking-pool-manager/internal/application/ports"
	"github.com/dappnode/staking-pool-manager/internal/logger"
)

// OracleSync polls the balance oracle and feeds its reports into the pool:
// per-operator stopped counts first, then the balance report that may
// trigger a reward distribution.
type OracleSync struct {
	Oracle       ports.BalanceOraclePort
	Pool         *Pool
	PollInterval time.Duration
}

func (s *OracleSync) Run(ctx context.Context) {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sync(ctx); err != nil {
				logger.Error("Oracle sync failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *OracleSync) sync(ctx context.Context) error {
	stopped, err := s.Oracle.ReportedStoppedCounts(ctx)
	if err != nil {
		logger.Warn("Error fetching stopped counts, validator exits not applied this round: %v", err)
	} else {
		for name, count := range stopped {
			if err := s.Pool.ReportStopped(ctx, name, count); err != nil {
				logger.Warn("Error applying stopped count %d for %q: %v", count, name, err)
			}
		}
	}

	return s.Pool.ProcessOracleReport(ctx)
}
