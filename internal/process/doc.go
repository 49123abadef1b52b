// Package process supervises child processes.
//
// Process runs one argv command:
//   - SIGINT on Shutdown, SIGKILL when the grace period runs out
//   - stdout and stderr forwarded line by line to a logger, with an
//     optional LogParser choosing the level of each line
//
// Pool tracks named processes through idle, starting, running, stopping and
// error, and reports every transition through OnStateChange. The installer
// uses it to keep the extension process alive:
//
//	pool := process.NewPool(&process.PoolOptions{
//	    CommandProvider: func(id string) ([]string, error) {
//	        return []string{exe, "extension", "--nats-port", "4223"}, nil
//	    },
//	    OnStateChange: func(id string, old, next process.State, err error) {
//	        logger.Info("extension", "from", old, "to", next)
//	    },
//	})
//	pool.Start("extension")
//	defer pool.StopAll()
package process
