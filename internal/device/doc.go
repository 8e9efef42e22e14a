// Package device persists the BleBox devices tracked by the bridge.
//
// Only identity is stored (id, type, address, name, device info). State is
// never persisted: a restored device starts polling immediately and its
// cache refills within one polling interval.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	saved, err := repo.LoadDevices(ctx)
//
// *SQLiteRepository satisfies blebox.DeviceStore.
package device
