package supervisor

// allocatePortLocked returns the first port at or above PortStart that no
// registered instance claims. Callers must hold s.mu and register the
// instance before releasing it, so that allocate+register is one critical
// section and two concurrent starts cannot observe the same free port.
func (s *Supervisor) allocatePortLocked() int {
	claimed := make(map[int]struct{}, len(s.instances))
	for _, in := range s.instances {
		claimed[in.port] = struct{}{}
	}
	p := s.cfg.PortStart
	for {
		if _, ok := claimed[p]; !ok {
			return p
		}
		p++
	}
}
