// Package daemon controls self-daemonizing server processes.
//
// Unlike a child process, a daemonizing engine forks into the background and
// the launching process exits almost immediately. The supervisor therefore
// cannot wait on it; it only knows the engine through three artefacts:
//
//   - the PID file the engine writes once it is up
//   - the log file the engine appends to while initialising
//   - the socket (unix or TCP) the engine listens on
//
// Controller is the capability the rest of Gray Logic Edge depends on. Daemon
// is the implementation used in production:
//
//	d := daemon.New(daemon.Config{
//	    Identifier:   "Engine",
//	    StartCommand: []string{"/usr/sbin/nginx", "-c", conf, "-p", dir + "/"},
//	    Ping:         daemon.TCPPing("127.0.0.1", 3000),
//	    PIDFile:      dir + "/engine.pid",
//	    LogFile:      dir + "/engine.log",
//	})
//
//	if err := d.Start(ctx); errors.Is(err, daemon.ErrAlreadyStarted) {
//	    pid, _ := d.PID()
//	    ...
//	}
package daemon
