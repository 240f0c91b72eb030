package rwlock

// ReaderStat is the state of one reader record.
type ReaderStat struct {
	Thread   ThreadID
	Requests int
}

// Stats is a point-in-time view of a lock's bookkeeping.
type Stats struct {
	// Readers is the number of outstanding read acquisitions, nested ones
	// included.
	Readers int
	// ReaderThreads counts the distinct threads ever recorded as readers.
	ReaderThreads int
	// ActiveReaderThreads counts the threads currently holding read access.
	ActiveReaderThreads int
	// Writers is the nesting depth of the current writer, 0 if none.
	Writers int
	Writer  ThreadID
	// Records lists every reader record in thread order, idle ones included.
	Records   []ReaderStat
	Destroyed bool
}

// Stats returns a snapshot of the lock state.
func (l *RWLock) Stats() Stats {
	if l == nil {
		return Stats{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		Readers:             l.readerCount,
		ReaderThreads:       l.readerThreadCount,
		ActiveReaderThreads: l.activeReaderThreads,
		Writers:             l.writerCount,
		Writer:              l.writerThread,
		Destroyed:           l.destroyed,
	}
	l.readers.Enumerate(func(id ThreadID, rec *readerRecord) bool {
		s.Records = append(s.Records, ReaderStat{Thread: id, Requests: rec.requests})
		return true
	})
	return s
}

// ReaderRequests returns the outstanding read acquisitions of thread.
func (l *RWLock) ReaderRequests(thread ThreadID) int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.readers.Find(thread); ok {
		return rec.requests
	}
	return 0
}
