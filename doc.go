// Package waferbot drives a dual end-effector wafer transfer robot: a
// rotating base carrying two three-joint arms, FingerA and FingerB.
//
// # Installation
//
//	go install github.com/gwillem/waferbot/cmd/waferbot@latest
//
// # Usage
//
// Find the servo bus and calibrate the joints (skip for simulation):
//
//	waferbot setup
//
// Operate the robot from the terminal, or serve it over HTTP:
//
//	waferbot run
//	waferbot serve
//
// Teach a station and run transfers:
//
//	waferbot teach --station pm1 --finger A
//	waferbot exec "pick station=pm1 finger=A" "place station=pm2 finger=A"
//
// # Packages
//
//   - cmd/waferbot: CLI with setup, run, serve, exec, teach and poses commands
//   - pkg/robot: joint model, pose state, calibration and configuration
//   - pkg/animate: motion handles and the simulated joint driver
//   - pkg/servo: Feetech servo bus driver
//   - pkg/motion: composite moves (rotate, extend, home, replay a pose)
//   - pkg/transfer: pick, place, teach and locate
//   - pkg/station: station presence signal (simulated, MQTT, Modbus)
//   - pkg/store: taught poses (SQLite, Redis, memory)
//   - pkg/queue: sequential action queue
//   - pkg/registry: named commands and queued sequences
//   - pkg/events: in-process event bus
//   - pkg/messaging: MQTT/Kafka client and event publisher
//   - pkg/cell: wiring of all of the above
//   - pkg/web: HTTP API and websocket event stream
package waferbot
