package simulation

import (
	"log"
	"os"

	"github.com/rs/xid"

	"github.com/sarchlab/ossim/datarecording"
	"github.com/sarchlab/ossim/monitoring"
	"github.com/sarchlab/ossim/ratectrl"
	"github.com/sarchlab/ossim/sched"
	"github.com/sarchlab/ossim/shmclock"
)

// Builder can be used to build a controller run.
type Builder struct {
	cfg            sched.Config
	rateCfg        ratectrl.Config
	shmKey         int
	workerPath     string
	monitorOn      bool
	monitorPort    int
	openBrowser    bool
	recordingOn    bool
	outputFileName string
}

// MakeBuilder creates a new builder with monitoring and recording on.
func MakeBuilder() Builder {
	return Builder{
		rateCfg:     ratectrl.DefaultConfig(),
		shmKey:      shmclock.DefaultKey,
		monitorOn:   true,
		recordingOn: true,
	}
}

// WithConfig sets the scheduling configuration.
func (b Builder) WithConfig(cfg sched.Config) Builder {
	b.cfg = cfg
	return b
}

// WithRateConfig overrides the adaptive rate controller tuning.
func (b Builder) WithRateConfig(cfg ratectrl.Config) Builder {
	b.rateCfg = cfg
	return b
}

// WithShmKey sets the shared-clock key.
func (b Builder) WithShmKey(key int) Builder {
	b.shmKey = key
	return b
}

// WithWorkerPath sets the worker executable to launch.
func (b Builder) WithWorkerPath(path string) Builder {
	b.workerPath = path
	return b
}

// WithoutMonitoring sets the run to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowser opens the monitor in a browser once the server starts.
func (b Builder) WithBrowser() Builder {
	b.openBrowser = true
	return b
}

// WithoutRecording sets the run to not record into SQLite.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the data
// recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if b.workerPath == "" {
		panic("a worker executable path is required")
	}
}

// Build acquires the shared clock, wires the scheduler, monitor and
// recorder together, and returns the run.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{id: xid.New().String()}

	segment, err := shmclock.Create(b.shmKey)
	if err != nil {
		log.Panic(err)
	}
	s.segment = segment

	view, err := segment.AttachReadWrite()
	if err != nil {
		_ = segment.Destroy()
		log.Panic(err)
	}
	s.view = view

	spawner := &sched.ExecSpawner{
		WorkerPath: b.workerPath,
		ShmKey:     b.shmKey,
	}

	s.scheduler = sched.New(
		b.cfg, view, spawner, sched.UnixReaper{}, ratectrl.New(b.rateCfg))

	reportLogger := sched.NewTableReportLogger(
		log.New(os.Stdout, "", 0), os.Getpid())
	s.scheduler.AcceptHook(reportLogger)

	if b.recordingOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "ossim_run_" + s.id
		}

		s.recorder = datarecording.New(outputPath)
		s.scheduler.AcceptHook(datarecording.NewSchedulerHook(s.recorder))
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		if b.openBrowser {
			s.monitor.WithBrowser()
		}

		s.monitor.CreateProgressBar(
			"Workers", uint64(b.cfg.TotalWorkers))
		s.scheduler.AcceptHook(s.monitor)
		s.monitor.StartServer()
	}

	return s
}
