package client

import (
	"io"
	"sync/atomic"
)

// ProgressFunc receives the bytes transferred so far and the expected total
// (-1 when unknown). It is called from the transfer goroutine.
type ProgressFunc func(done, total int64)

type progressReader struct {
	r     io.Reader
	total int64
	done  atomic.Int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.fn(p.done.Add(int64(n)), p.total)
	}
	return n, err
}

type progressWriter struct {
	w     io.Writer
	total int64
	done  int64
	fn    ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if n > 0 && p.fn != nil {
		p.fn(p.done, p.total)
	}
	return n, err
}
