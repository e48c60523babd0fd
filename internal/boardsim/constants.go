package boardsim

// Defaults applied by normalize.
const (
	defaultBaseURL   = "http://localhost:9080"
	defaultNumEvents = 1000
	defaultBuses     = 8
	defaultWorkers   = 16
	imageSize        = 256
	kiosksPerBus     = 2
	channelFactor    = 2
	percent          = 100
)
