package task

import (
	"context"
	"sync"
	"time"
)

// VendorLocker grants time-bounded per-vendor exclusivity so that at most
// one task per vendor is in flight.
// Version: 1.0
type VendorLocker interface {
	// TryLock takes the vendor's lease for owner. It returns false, without
	// error, when another owner holds an unexpired lease.
	TryLock(ctx context.Context, vendorID, owner string, ttl time.Duration) (bool, error)

	// Unlock releases the lease if owner still holds it.
	Unlock(ctx context.Context, vendorID, owner string) error
}

type lease struct {
	owner   string
	expires time.Time
}

// LocalLocker is an in-process VendorLocker for single-instance deployments.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]lease), now: time.Now}
}

// TryLock implements VendorLocker.
func (l *LocalLocker) TryLock(_ context.Context, vendorID, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, held := l.leases[vendorID]; held && cur.owner != owner && now.Before(cur.expires) {
		return false, nil
	}
	l.leases[vendorID] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// Unlock implements VendorLocker.
func (l *LocalLocker) Unlock(_ context.Context, vendorID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, held := l.leases[vendorID]; held && cur.owner == owner {
		delete(l.leases, vendorID)
	}
	return nil
}
