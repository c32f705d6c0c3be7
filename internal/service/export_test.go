package service

import "time"

// SetNow overrides the backup service's clock so retention-window tests
// can move time around.
func (b *BackupService) SetNow(fn func() time.Time) {
	b.now = fn
}
