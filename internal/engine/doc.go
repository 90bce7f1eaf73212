// Package engine supervises the externally managed server engine.
//
// The engine is an nginx-style binary that Gray Logic Edge does not implement
// and does not parent: it daemonizes itself. This package owns the three
// concerns that surround it:
//
//   - Synthesizer renders engine.conf from a template and Options
//   - Validator runs the engine's own config test and explains failures
//   - Supervisor drives start, reload and stop through a daemon.Controller
//
// WaitForExit blocks until the engine's listening socket disappears. It has
// no timeout of its own; cancel the context to give up early.
//
// Typical start flow:
//
//	sup, err := engine.NewSupervisor(opts)
//	if err != nil {
//	    return err
//	}
//	sup.SetLogger(log)
//	if err := sup.Start(ctx); errors.Is(err, engine.ErrConfigDumped) {
//	    return nil
//	}
package engine
