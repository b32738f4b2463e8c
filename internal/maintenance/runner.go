// Package maintenance runs the periodic housekeeping of the control plane: deleting expired
// session credentials, expiring overdue API credentials and purging old API credential rows.
package maintenance

import (
	"context"
	"errors"
	"log"
	"time"
)

// CredentialCleaner deletes session credentials that expired before a cutoff.
type CredentialCleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// APICredentialSweeper expires and purges API credentials.
type APICredentialSweeper interface {
	ExpireOverdue(ctx context.Context) (int, error)
	PurgeStale(ctx context.Context, retention time.Duration) (int64, error)
}

// Result counts what one pass did.
type Result struct {
	CredentialsDeleted    int64
	APICredentialsExpired int
	APICredentialsPurged  int64
}

// Runner performs maintenance passes.
type Runner struct {
	credentials CredentialCleaner
	apiCreds    APICredentialSweeper
	grace       time.Duration
	retention   time.Duration
	nowF        func() time.Time
}

// NewRunner returns a Runner. grace keeps expired session credentials around that long before deletion;
// retention does the same for revoked and expired API credentials. apiCreds may be nil.
func NewRunner(credentials CredentialCleaner, apiCreds APICredentialSweeper, grace, retention time.Duration) *Runner {
	return &Runner{
		credentials: credentials,
		apiCreds:    apiCreds,
		grace:       grace,
		retention:   retention,
		nowF:        time.Now,
	}
}

// RunOnce performs one pass. Every step runs even when an earlier one fails; the errors are joined.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	var errs []error

	n, err := r.credentials.Cleanup(ctx, r.nowF().Add(-r.grace))
	if err != nil {
		errs = append(errs, err)
	}
	res.CredentialsDeleted = n

	if r.apiCreds != nil {
		expired, err := r.apiCreds.ExpireOverdue(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		res.APICredentialsExpired = expired

		purged, err := r.apiCreds.PurgeStale(ctx, r.retention)
		if err != nil {
			errs = append(errs, err)
		}
		res.APICredentialsPurged = purged
	}
	return res, errors.Join(errs...)
}

// Run performs a pass immediately and then every interval until ctx is done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := r.RunOnce(ctx)
		if err != nil {
			log.Printf("maintenance: pass failed: %v", err)
		}
		if res != (Result{}) {
			log.Printf("maintenance: deleted %d credential(s), expired %d and purged %d api credential(s)",
				res.CredentialsDeleted, res.APICredentialsExpired, res.APICredentialsPurged)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
