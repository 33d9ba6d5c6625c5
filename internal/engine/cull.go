package engine

// Sweep destroys every instance that has fully left the surface through its
// left edge, whether or not its completion timer has fired. It returns the
// number of instances removed.
func (e *Engine) Sweep() int {
	if e.surface == nil {
		return 0
	}
	removed := 0
	for _, in := range append([]*Instance(nil), e.live...) {
		if e.surface.TrailingEdge(in.ID) < 0 {
			e.destroy(in)
			removed++
		}
	}
	return removed
}
