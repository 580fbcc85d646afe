package main

import (
	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
)

// profileLogger routes profiler messages to the process log; debug output is dropped.
type profileLogger struct{}

func (profileLogger) Infof(format string, args ...any)  { logs.Infof("pyroscope: "+format, args...) }
func (profileLogger) Debugf(string, ...any)             {}
func (profileLogger) Errorf(format string, args ...any) { logs.Errorf("pyroscope: "+format, args...) }

func startProfiler(addr string) (func(), error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "lobsim.simulate",
		ServerAddress:   addr,
		Logger:          profileLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = profiler.Stop() }, nil
}
