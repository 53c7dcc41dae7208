// Package tui renders live progress for groundwork runs.
//
// The view is read-only: one row per agent in pipeline order, a spinner on
// running agents, and each agent's headline once it finishes. The program
// quits on its own when the event stream closes. Pressing q or Ctrl+C
// detaches the view; the run itself keeps going.
//
// Usage:
//
//	events, err := coordinator.Start(ctx, evaluationID)
//	if err != nil {
//		return err
//	}
//	return tui.RunGroundwork(ctx, evaluationID, events, os.Stderr)
package tui
