package num

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ryukinkou/scenelabeling/stats"
)

// profiling functions
type profile struct {
	prof    map[string]*profileRec
	enabled bool
	sync.Mutex
}

type profileRec struct {
	name   string
	msec   stats.Average
	recent stats.EMA
}

func newProfile() *profile {
	return &profile{prof: make(map[string]*profileRec)}
}

func (p *profile) Profiling(on bool) {
	p.Lock()
	p.enabled = on
	p.Unlock()
}

// record the elapsed time for op, called via defer at the start of each device function
func (p *profile) record(op string, start time.Time) {
	p.Lock()
	defer p.Unlock()
	if !p.enabled {
		return
	}
	msec := float64(time.Since(start)) / float64(time.Millisecond)
	r, ok := p.prof[op]
	if !ok {
		r = &profileRec{name: op}
		p.prof[op] = r
	}
	r.msec.Add(msec)
	r.recent = stats.EMA(r.recent.Add(msec, 10))
}

// calls returns the number of times op has been recorded
func (p *profile) calls(op string) int {
	p.Lock()
	defer p.Unlock()
	if r, ok := p.prof[op]; ok {
		return int(r.msec.Count)
	}
	return 0
}

func (p *profile) PrintProfile(w io.Writer) {
	p.Lock()
	defer p.Unlock()
	fmt.Fprintln(w, "== Profile ==")
	list := make([]*profileRec, 0, len(p.prof))
	for _, v := range p.prof {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[j].msec.Total < list[i].msec.Total })
	totalCalls := 0
	totalMsec := 0.0
	for _, r := range list {
		fmt.Fprintf(w, "%-15s %8d calls %10.3f msec  mean %s  recent %.3f\n",
			r.name, int(r.msec.Count), r.msec.Total, r.msec.String(), float64(r.recent))
		totalCalls += int(r.msec.Count)
		totalMsec += r.msec.Total
	}
	fmt.Fprintf(w, "%-15s %8d calls %10.3f msec\n", "TOTAL", totalCalls, totalMsec)
}
