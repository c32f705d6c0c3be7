// Package domain holds the core types of the gestor backend.
// Most records started life as untyped JSON blobs in the browser's
// local storage; the structs here keep those wire shapes (and their
// Portuguese field values) so old data keeps round-tripping.
package domain

// Movement types for cash movements.
const (
	MovementIn  = "entrada"
	MovementOut = "saida"
)

// CashMovement is a single entry in the cash book.
type CashMovement struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"` // entrada | saida
	Value       float64 `json:"value"`
	Category    string  `json:"category"`
	Reason      string  `json:"reason"`
	Description string  `json:"description,omitempty"`
	Proof       string  `json:"proof,omitempty"` // file id of the uploaded receipt
	Date        string  `json:"date"`
	CreatedDate string  `json:"created_date"`
}

// CashSummary aggregates cash movements over a period.
type CashSummary struct {
	TotalIn    float64            `json:"total_in"`
	TotalOut   float64            `json:"total_out"`
	Balance    float64            `json:"balance"`
	ByCategory map[string]float64 `json:"by_category"`
}

// Marketplace order statuses. The accented legacy form of "concluido"
// still appears in old stored data and is normalized on read.
const (
	OrderStatusPending = "pendente"
	OrderStatusPicking = "separando"
	OrderStatusDone    = "concluido"
	OrderStatusDoneOld = "concluído"
)

// OrderItem is one line of a marketplace order.
type OrderItem struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
	Location string `json:"location,omitempty"`
}

// MarketplaceOrder is an order to pick and ship for a marketplace sale.
type MarketplaceOrder struct {
	ID           string      `json:"id"`
	OrderNumber  string      `json:"order_number"`
	CustomerName string      `json:"customer_name"`
	Items        []OrderItem `json:"items"`
	Status       string      `json:"status"`
	CreatedDate  string      `json:"created_date"`
	CreatedAt    string      `json:"created_at,omitempty"`
	CompletedBy  string      `json:"completed_by,omitempty"`
	Source       string      `json:"source,omitempty"`
}

// OrderStats summarizes orders by status.
type OrderStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Picking   int `json:"picking"`
	Completed int `json:"completed"`
}

// User roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// AdminUsername is the sentinel account: never deletable, bypasses
// permission checks, recreated on boot if missing.
const AdminUsername = "admin"

// StoredUser is an application user kept in the app_users collection.
// Password holds a bcrypt hash for records written by this backend;
// records restored from old backups may still carry plaintext and are
// upgraded on first successful login.
type StoredUser struct {
	Username    string   `json:"username"`
	Password    string   `json:"password,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Redacted returns a copy safe for listing (no credential material).
func (u StoredUser) Redacted() StoredUser {
	u.Password = ""
	return u
}

// StoredFile is an uploaded blob persisted entirely in the local store
// as a base64 data URL. There is no external object storage.
type StoredFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Data       string `json:"data"` // data:<mime>;base64,<payload>
	Size       int64  `json:"size"`
	UploadedAt string `json:"uploadedAt"` // RFC 3339
}

// MaxFileSize is the hard cap on a single uploaded file (5 MiB),
// inherited from the browser's local-storage budget.
const MaxFileSize = 5 * 1024 * 1024

// Source tells a caller where a read or write actually landed, so
// degraded-durability paths are visible instead of silently swallowed.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
	SourceQueued Source = "queued"
)

// BackupSnapshot is a point-in-time copy of the allowlisted local-store
// keys. Values are kept verbatim (some keys hold bare strings, not
// JSON) so restore is a byte-exact rewrite.
type BackupSnapshot struct {
	Timestamp string            `json:"timestamp"`
	Data      map[string]string `json:"data"`
}

// BackupEntry is one row of the tracked backup list.
type BackupEntry struct {
	Timestamp string `json:"timestamp"` // RFC 3339
	Date      string `json:"date"`      // 2006-01-02, doubles as the storage key suffix
	Source    Source `json:"source"`
}

// BackupResult reports the outcome of a backup or restore.
type BackupResult struct {
	Timestamp string `json:"timestamp"`
	Date      string `json:"date"`
	Source    Source `json:"source"`
	Keys      int    `json:"keys"`
}

// CollectionSync is the per-collection outcome of one sync cycle.
type CollectionSync struct {
	Name   string `json:"name"`
	Merged int    `json:"merged"` // records in the merged local array
	Pulled int    `json:"pulled"` // remote-only records appended locally
	Pushed int    `json:"pushed"` // local-only records posted to the remote
	Error  string `json:"error,omitempty"`
}

// SyncReport is returned by a full sync cycle. Collections are always
// reported in execution order; a failed collection carries its error
// and does not abort the rest.
type SyncReport struct {
	StartedAt   string           `json:"started_at"`
	Duration    string           `json:"duration"`
	Collections []CollectionSync `json:"collections"`
}

// Failed reports whether any collection in the cycle errored.
func (r SyncReport) Failed() bool {
	for _, c := range r.Collections {
		if c.Error != "" {
			return true
		}
	}
	return false
}

// QueuedRecord is an entity write that could not reach the entity API
// and is parked in the external_<entity> fallback queue.
type QueuedRecord struct {
	ID       string         `json:"id"`
	Data     map[string]any `json:"data"`
	Synced   bool           `json:"synced"`
	QueuedAt string         `json:"queued_at"`
}

// StorageUsage reports local-store consumption against the quota.
type StorageUsage struct {
	UsedBytes  int64   `json:"used_bytes"`
	QuotaBytes int64   `json:"quota_bytes"`
	Percent    float64 `json:"percent"`
}

// Settings is the small bag of app-level toggles the frontend edits.
type Settings struct {
	AlertMode            string `json:"alert_mode"`
	AlertIntervalMinutes int    `json:"alert_interval_minutes"`
	MarketplaceMode      string `json:"marketplace_mode"`
}

// EntityNames lists the business entities served by the
// backend-as-a-service entity API. Everything else (cash movements,
// marketplace orders, app users) lives in the local store and syncs
// through the external HTTP store instead.
var EntityNames = []string{
	"Product",
	"Sale",
	"Customer",
	"Supplier",
	"Material",
	"Expense",
	"Employee",
	"Asset",
	"Invoice",
	"ProductionOrder",
	"Service",
}

// KnownEntity reports whether name is a served entity type.
func KnownEntity(name string) bool {
	for _, n := range EntityNames {
		if n == name {
			return true
		}
	}
	return false
}
