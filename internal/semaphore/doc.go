// Package semaphore provides the counting admission primitive that bounds
// how many worker processes run at once. Waiters are woken in strict FIFO
// order and may abandon the queue via context cancellation. The primitive
// has no knowledge of tasks or commands.
package semaphore
