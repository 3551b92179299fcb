// Package sim provides the tick-based simulation engine for dinebot-sim.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - order.go: Order lifecycle (pending → preparing → ready → in delivery → delivered/failed)
//   - robot.go: Robot state machine (idle → planning → moving → terminal → idle)
//   - simulator.go: The tick loop that releases orders, applies obstacles and ticks robots
//
// # Architecture
//
// The sim package defines the core types and interfaces; implementations of external
// collaborators live in sub-packages:
//   - sim/layout/: decodes named layouts (integer code matrices) into a Grid
//   - sim/decision/: Decision Provider implementations (baseline, rules, http, script)
//   - sim/scenario/: YAML scenario files wiring a layout, robots, orders and policy
//   - sim/trace/: trajectory, transition and decision recording
//
// # Key Interfaces
//
// The extension points are single-method interfaces:
//   - Planner: shortest path between two cells (AStarPlanner with radius retry)
//   - Occupancy: dynamic blockages layered over the static grid (ObstacleField)
//   - DecisionProvider: answers obstacle encounters with reroute, wait or report_unreachable
//
// Within a tick every robot performs at most one step or one decision exchange, in
// robot-id order, so runs are reproducible given identical inputs and a deterministic
// DecisionProvider.
package sim
