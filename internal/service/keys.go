// Package service implements the application's use cases over the
// local store, the external HTTP store and the entity API.
package service

// Local store key layout, carried over from the original app's
// local-storage schema so old exports and backups stay readable.
const (
	keyCashMovements     = "cash_movements"
	keyMarketplaceOrders = "marketplace_orders"
	keyAppUsers          = "app_users"
	keyCurrentUser       = "current_user"
	keyProductsMeta      = "products_meta"
	keyAlertMode         = "alert_mode"
	keyAlertInterval     = "alert_interval_minutes"
	keyMarketplaceMode   = "marketplace_mode"
	keyLastBackupDate    = "last_backup_date"
	keyBackupList        = "backup_list"

	backupKeyPrefix   = "backup_"
	fileKeyPrefix     = "local_file_"
	manualAudioPrefix = "manual_audio_"
)
