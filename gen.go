package fiber

// Gen is a producer/consumer handoff built from two signals: s0 carries
// "value ready" from producer to consumer, s1 carries "value consumed" (or
// closure) back. The udata slot holds exactly one in-flight value; the
// signal rendezvous guarantees neither side overruns it.
type Gen struct {
	s0    *Signal
	s1    *Signal
	udata any
}

// NewGen creates a generator bound to this runtime.
func (r *Runtime) NewGen() *Gen {
	return &Gen{s0: r.NewSignal(), s1: r.NewSignal()}
}

// Yield publishes v and parks the producer until the consumer acknowledges
// with Done or tears the generator down with Close. Returns ErrGenClosed
// after Close; the producer should unwind.
func (g *Gen) Yield(v any) error {
	g.udata = v
	g.s0.Send()
	return g.s1.Subscribe()
}

// Next parks the consumer until the producer yields, then returns the value.
// Call Done (or Close) before the next call to Next.
func (g *Gen) Next() (any, error) {
	if err := g.s0.Subscribe(); err != nil {
		return nil, err
	}
	return g.udata, nil
}

// Done acknowledges the current value, unparking the producer for its next
// Yield.
func (g *Gen) Done() {
	g.s1.Send()
}

// Close tears the generator down from the consumer side: the producer parked
// in Yield observes ErrGenClosed, and Close parks until the producer's entry
// returns. A Close with no producer parked is a no-op.
func (g *Gen) Close() error {
	return g.s1.ErrorAndJoin(RCGenClosed)
}
