// Package monitoring turns a controller run into a small web server
// that reports the simulated clock, the process table, launch
// progress, and resource usage of the controller and its workers.
package monitoring

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"

	"github.com/sarchlab/ossim/ptable"
	"github.com/sarchlab/ossim/sched"
)

// Monitor observes the scheduler through its hooks and serves the
// observed state over HTTP.
type Monitor struct {
	portNumber  int
	openBrowser bool

	stateLock sync.Mutex
	now       clockRsp
	entries   []ptable.PCB
	occupied  int
	state     string

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{state: sched.StateRunning.String()}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber > 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor in a browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true

	return m
}

// Func updates the monitor's cached state from scheduler hooks. It is
// safe to call from the controller loop while HTTP handlers read.
func (m *Monitor) Func(ctx sched.HookCtx) {
	switch ctx.Pos {
	case sched.HookPosTableReport:
		report := ctx.Item.(sched.TableReport)

		m.stateLock.Lock()
		m.now = clockRsp{Seconds: report.Now.Seconds, Nanos: report.Now.Nanos}
		m.entries = report.Entries
		m.occupied = report.Occupied
		m.stateLock.Unlock()
	case sched.HookPosAfterSpawn:
		m.withBars(func(b *ProgressBar) { b.IncrementInProgress(1) })
	case sched.HookPosAfterReap:
		m.withBars(func(b *ProgressBar) { b.MoveInProgressToFinished(1) })
	case sched.HookPosTerminate:
		m.stateLock.Lock()
		m.state = ctx.Item.(sched.State).String()
		m.stateLock.Unlock()
	}
}

func (m *Monitor) withBars(f func(*ProgressBar)) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	for _, b := range m.progressBars {
		f(b)
	}
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        strconv.FormatInt(time.Now().UnixNano(), 16),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.nowHandler)
	r.HandleFunc("/api/table", m.tableHandler)
	r.HandleFunc("/api/state", m.stateHandler)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/workers", m.listWorkerResources)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring scheduler with %s\n", url)

	if m.openBrowser {
		_ = browser.OpenURL(url)
	}

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

type clockRsp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int64 `json:"nanos"`
}

func (m *Monitor) nowHandler(w http.ResponseWriter, _ *http.Request) {
	m.stateLock.Lock()
	now := m.now
	m.stateLock.Unlock()

	writeJSON(w, now)
}

type tableEntryRsp struct {
	Slot     int   `json:"slot"`
	Occupied bool  `json:"occupied"`
	Pid      int   `json:"pid"`
	StartSec int64 `json:"start_sec"`
	StartNs  int64 `json:"start_nanos"`
}

type tableRsp struct {
	Occupied int             `json:"occupied"`
	Entries  []tableEntryRsp `json:"entries"`
}

func (m *Monitor) tableHandler(w http.ResponseWriter, _ *http.Request) {
	m.stateLock.Lock()
	rsp := tableRsp{Occupied: m.occupied}
	for i, e := range m.entries {
		rsp.Entries = append(rsp.Entries, tableEntryRsp{
			Slot:     i,
			Occupied: e.Occupied,
			Pid:      e.Pid,
			StartSec: e.Start.Seconds,
			StartNs:  e.Start.Nanos,
		})
	}
	m.stateLock.Unlock()

	writeJSON(w, rsp)
}

func (m *Monitor) stateHandler(w http.ResponseWriter, _ *http.Request) {
	m.stateLock.Lock()
	state := m.state
	m.stateLock.Unlock()

	writeJSON(w, map[string]string{"state": state})
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	Pid        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	rsp, err := resourcesOf(os.Getpid())
	dieOnErr(err)

	writeJSON(w, rsp)
}

func (m *Monitor) listWorkerResources(w http.ResponseWriter, _ *http.Request) {
	m.stateLock.Lock()
	entries := m.entries
	m.stateLock.Unlock()

	rsps := make([]resourceRsp, 0, len(entries))
	for _, e := range entries {
		if !e.Occupied {
			continue
		}

		// Workers can exit between the report and this query; skip the
		// ones that are gone.
		rsp, err := resourcesOf(e.Pid)
		if err != nil {
			continue
		}

		rsps = append(rsps, rsp)
	}

	writeJSON(w, rsps)
}

func resourcesOf(pid int) (resourceRsp, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return resourceRsp{}, err
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return resourceRsp{}, err
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		return resourceRsp{}, err
	}

	return resourceRsp{
		Pid:        pid,
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	}, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
