// Package blebox implements the BleBox LAN device bridge for Gray Logic.
//
// BleBox devices (switchBox, shutterBox, dimmerBox, wLightBox, gateBox,
// saunaBox, sensors) are small embedded HTTP servers on the local network.
// They answer terse GET endpoints with small JSON bodies and are easily
// overwhelmed, so every call is paced and coalesced.
//
// # Architecture
//
//	┌─────────────┐          ┌──────────────────────────────────┐   HTTP
//	│ Gray Logic  │   MQTT   │ Bridge                           │◄────────► devices
//	│    Core     │◄────────►│  Scanner → Registry → Monitor(s) │
//	└─────────────┘          │            Scheduler             │
//	                         └──────────────────────────────────┘
//
// # Components
//
//   - Scheduler: serialises HTTP calls per (address, command) key. One request
//     is in flight per key, and at most one waits behind it. A newer submission
//     replaces the waiting one.
//   - Scanner: enumerates the host addresses of every eligible local subnet and
//     probes them with the identity command at a fixed pace.
//   - Registry: maps persistent device ids to monitors, reconciles address
//     changes and enforces the population cap.
//   - Monitor: one per device. Runs a general identity loop and a
//     type-specific state loop, and derives the responding/suspect health flag.
//   - Family: the per-type adapter (state command, state unwrapping, controls).
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package blebox
