package outbound

import (
	"fmt"
	"io"
)

// progressReader reports loaded/total*100 after every read.
type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	report func(pct float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		p.emit()
	}
	return n, err
}

func (p *progressReader) emit() {
	if p.report == nil || p.total <= 0 {
		return
	}
	p.report(float64(p.loaded) / float64(p.total) * 100)
}

// progressReadSeeker reports the furthest offset read. A rewind for a
// retry does not move progress back.
type progressReadSeeker struct {
	progressReader
	s   io.ReadSeeker
	pos int64
}

func newProgressReadSeeker(s io.ReadSeeker, total int64, report func(pct float64)) *progressReadSeeker {
	return &progressReadSeeker{
		progressReader: progressReader{r: s, total: total, report: report},
		s:              s,
	}
}

func (p *progressReadSeeker) Read(b []byte) (int, error) {
	n, err := p.s.Read(b)
	p.pos += int64(n)
	if p.pos > p.loaded {
		p.loaded = p.pos
		p.emit()
	}
	return n, err
}

func (p *progressReadSeeker) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.s.Seek(offset, whence)
	if err == nil {
		p.pos = pos
	}
	return pos, err
}

// contentSize prefers the admitted size and falls back to seeking.
func contentSize(s io.Seeker, size int64) (int64, error) {
	if size > 0 {
		return size, nil
	}

	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("measure content: %w", err)
	}
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind content: %w", err)
	}
	return end, nil
}
