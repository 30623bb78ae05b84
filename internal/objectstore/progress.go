package objectstore

import "io"

// progressReader wraps an upload body and reports cumulative progress as a
// 0-100 percentage. 100 is only reported once the backend has acknowledged
// the write, via finish.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	lastPct  int
	progress ProgressFunc
}

func newProgressReader(r io.Reader, total int64, progress ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, progress: progress, lastPct: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 && p.progress != nil {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		if pct != p.lastPct {
			p.lastPct = pct
			p.progress(pct)
		}
	}
	return n, err
}

func (p *progressReader) finish() {
	if p.progress != nil && p.lastPct != 100 {
		p.lastPct = 100
		p.progress(100)
	}
}
