// Package rubeus drives a four-wheel swerve robot with a two-link arm.
//
// The control core runs headless at a fixed rate: swerve modules steer
// with circular PID loops on absolute encoders, the arm zeroes against
// its limit switches and tracks inverse-kinematics goals, and odometry
// fuses field markers with inertial displacement.
//
// # Installation
//
//	go install github.com/gwillem/rubeus/cmd/rubeus@latest
//
// # Usage
//
// Try the robot in the simulator first:
//
//	rubeus sim
//
// Record the steering encoder offsets with every wheel pointing forward:
//
//	rubeus calibrate
//
// Then drive the real robot over SocketCAN:
//
//	rubeus run -i can0
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/rubeus: CLI with sim, run, calibrate and solve commands
//   - pkg/robot: configuration, hardware adapters, simulator and the tick loop
//   - pkg/control: fixed-rate controller, operator input latch and log feed
//   - pkg/swerve: swerve modules and the module chain
//   - pkg/arm: arm kinematics and the arm controller
//   - pkg/odometry: marker tables and the position estimator
//   - pkg/motor: actuator interfaces, PID controller and current watcher
//   - pkg/telemetry: key/value sinks, including MQTT
//   - pkg/vector, pkg/clock: 2-D vectors and time sources
package rubeus
