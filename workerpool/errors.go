package workerpool

import "github.com/pkg/errors"

var errPoolStopped = errors.New("workerpool: pool is stopped")
