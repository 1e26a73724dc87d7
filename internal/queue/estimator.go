package queue

// estimate is the advisory wait for a new booking: one average consultation
// per appointment still ahead of it. It is computed once, at booking, and
// never refreshed as the queue drains.
func (e *Engine) estimate(pendingAhead int64) int {
	return int(pendingAhead) * e.opts.ConsultationMinutes
}
